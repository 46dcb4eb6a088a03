// Package http implements the local HTTP surface of the terminal: health
// probes, license and tenant administration, the catalogue, staff and sales
// endpoints used by the terminal UI, and sync status and dead-letter
// inspection.
//
// # Architecture Principles
//
// Handlers are thin. They decode and validate a request, call a service and
// render the result:
//
//	HTTP Request → Chi Router → Middleware → Handler → Service → Store
//	                                              ↓
//	HTTP Response ← Handler ← Service Response ←─┘
//
// Every failure is rendered as an RFC 7807 problem by errors.WriteError, so
// sentinel errors from the services map onto status codes in one place.
//
// # Routes
//
//	GET  /healthz, /healthz/ready, /healthz/live, /healthz/version
//	GET  /api/license
//	POST /api/license/activate, /validate, /branch, /reset
//	GET  /api/tenant
//	     /api/products, /api/staff, /api/transactions (license required)
//	GET  /api/sync/status, /api/sync/dead-letters, /api/sync/dead-letters/export
//	POST /api/sync/run
//	GET  /metrics, /ws
//
// Domain routes sit behind middleware.RequireLicense; the license, tenant,
// sync and health routes stay reachable so an unlicensed terminal can be
// activated and inspected.
package http
