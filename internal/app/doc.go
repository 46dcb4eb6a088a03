// Package app wires the terminal's components and runs them.
//
// # Initialization Flow
//
// New builds everything in dependency order without touching the network:
//
//	1. Logging and the hardware identity
//	2. OpenTelemetry providers and metric instruments
//	3. The SQLite store, then the persisted tenant context
//	4. The license manager, restored from its sealed cache
//	5. The sync outbox, status broadcaster and worker
//	6. The WebSocket hub and the domain services
//	7. HTTP handlers, router and server
//
// Run starts the hub, the license re-validation loop, the sync worker (when
// enabled) and the HTTP server under one errgroup. Cancelling the context
// shuts the server down within Server.ShutdownTimeout and stops the loops.
//
// # Usage
//
//	application, err := app.New(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer application.Close()
//	return application.Run(ctx)
package app
