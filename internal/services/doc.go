// Package services implements the business logic layer of the terminal.
// It sits between the HTTP handlers and the local store, and keeps the
// write rules of the POS in one place.
//
// # Write Path
//
// Every domain mutation follows the same sequence:
//
//	1. Require a fully configured tenant (business and branch bound)
//	2. Validate the entity
//	3. Stamp the tenant scope onto the entity
//	4. Inside one store transaction, write the row and enqueue its sync record
//
// Step 4 means a row never exists without its outbox record and an outbox
// record never describes a row that was rolled back.
//
// # Plan Limits
//
// Product and staff creation consult the license plan limits through the
// LimitChecker interface. The license manager satisfies it; tests inject a
// fixed implementation.
//
// # Common Service Pattern
//
//	type ServiceName struct {
//	    base
//	}
//
//	func (s *ServiceName) Create(ctx context.Context, in Input) (Output, error) {
//	    scope, err := s.tenant.RequireConfigured()
//	    if err != nil {
//	        return Output{}, err
//	    }
//	    err = s.store.WithTx(ctx, func(tx *store.Tx) error {
//	        ...
//	        return s.enqueue(ctx, tx, entry)
//	    })
//	    return out, err
//	}
package services
