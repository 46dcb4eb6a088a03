// Package tenant holds the business, branch and staff identity that scopes
// every record the terminal writes. A single Context is created at the
// composition root and injected wherever writes are stamped.
package tenant

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "poscore/internal/errors"
	"poscore/pkg/contracts/domain"
)

const persistedVersion = 1

// Persister stores the serialized context. The settings repository of the
// store satisfies it.
type Persister interface {
	LoadTenant(ctx context.Context) ([]byte, error)
	SaveTenant(ctx context.Context, data []byte) error
}

// State is a point-in-time copy of the context.
type State struct {
	BusinessID *uuid.UUID
	Branch     Binding
	StaffID    *uuid.UUID
	StaffName  string
}

// FullyConfigured reports whether business and branch are both bound.
func (s State) FullyConfigured() bool {
	_, bound := BranchOf(s.Branch)
	return s.BusinessID != nil && bound
}

type persistedState struct {
	Version       int        `json:"version"`
	BusinessID    *uuid.UUID `json:"business_id,omitempty"`
	BranchID      *uuid.UUID `json:"branch_id,omitempty"`
	BranchName    string     `json:"branch_name,omitempty"`
	BranchBoundAt *time.Time `json:"branch_bound_at,omitempty"`
	StaffID       *uuid.UUID `json:"staff_id,omitempty"`
	StaffName     string     `json:"staff_name,omitempty"`
}

// Context is the in-memory tenant identity backed by the settings row.
// Every setter persists before it changes memory.
type Context struct {
	mu      sync.RWMutex
	state   State
	loaded  bool
	persist Persister
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Context.
type Option func(*Context)

// WithClock overrides the time source used for branch binding timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Context) { c.now = now }
}

// New creates an empty, not yet loaded context.
func New(p Persister, logger *slog.Logger, opts ...Option) *Context {
	c := &Context{
		state:   State{Branch: Unbound{}},
		persist: p,
		logger:  logger.With(slog.String("component", "tenant")),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LoadPersistedContext rebuilds the in-memory state from storage. It reports
// false when no business binding was persisted, as on a fresh install.
func (c *Context) LoadPersistedContext(ctx context.Context) (bool, error) {
	data, err := c.persist.LoadTenant(ctx)
	if err != nil {
		return false, fmt.Errorf("load tenant context: %w", err)
	}

	state := State{Branch: Unbound{}}
	if data != nil {
		var p persistedState
		if err := json.Unmarshal(data, &p); err != nil {
			return false, fmt.Errorf("decode tenant context: %w", err)
		}
		state = fromPersisted(p)
	}

	c.mu.Lock()
	c.state = state
	c.loaded = true
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "tenant context loaded",
		slog.String("action", "load"),
		slog.Bool("business_bound", state.BusinessID != nil),
		slog.Bool("fully_configured", state.FullyConfigured()))

	return state.BusinessID != nil, nil
}

// SetBusinessContext binds the business. Changing to a different business
// is refused while a branch is bound; a different business also clears the
// signed-in staff member.
func (c *Context) SetBusinessContext(ctx context.Context, businessID uuid.UUID) error {
	return c.update(ctx, "set_business", func(s *State) error {
		if s.BusinessID != nil && *s.BusinessID == businessID {
			return nil
		}
		if _, bound := BranchOf(s.Branch); bound {
			return apperrors.ErrBusinessLocked
		}
		id := businessID
		s.BusinessID = &id
		s.StaffID = nil
		s.StaffName = ""
		return nil
	})
}

// SetBranchContext binds the branch. A business must already be bound.
// Irreversibility is enforced by the license manager, not here.
func (c *Context) SetBranchContext(ctx context.Context, branchID uuid.UUID, branchName string) error {
	return c.update(ctx, "set_branch", func(s *State) error {
		if s.BusinessID == nil {
			return apperrors.ErrBusinessNotBound
		}
		s.Branch = Bound{ID: branchID, Name: branchName, BoundAt: c.now().UTC()}
		return nil
	})
}

// SetStaffContext records the staff member who signed in with a PIN.
func (c *Context) SetStaffContext(ctx context.Context, staffID uuid.UUID, staffName string) error {
	return c.update(ctx, "set_staff", func(s *State) error {
		if !s.FullyConfigured() {
			return apperrors.ErrTenantNotConfigured
		}
		id := staffID
		s.StaffID = &id
		s.StaffName = staffName
		return nil
	})
}

// ClearStaffContext forgets the signed-in staff member on logout or lock.
func (c *Context) ClearStaffContext(ctx context.Context) error {
	return c.update(ctx, "clear_staff", func(s *State) error {
		s.StaffID = nil
		s.StaffName = ""
		return nil
	})
}

func (c *Context) update(ctx context.Context, action string, mutate func(*State) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.state
	if err := mutate(&next); err != nil {
		c.logger.WarnContext(ctx, "tenant context change refused",
			slog.String("action", action),
			slog.String("result", "rejected"),
			slog.String("error", err.Error()))
		return fmt.Errorf("%s: %w", action, err)
	}

	data, err := json.Marshal(toPersisted(next))
	if err != nil {
		return fmt.Errorf("%s: encode tenant context: %w", action, err)
	}
	if err := c.persist.SaveTenant(ctx, data); err != nil {
		return fmt.Errorf("%s: persist tenant context: %w", action, err)
	}

	c.state = next
	c.loaded = true
	c.logger.InfoContext(ctx, "tenant context updated",
		slog.String("action", action),
		slog.String("result", "success"),
		slog.Bool("fully_configured", next.FullyConfigured()))
	return nil
}

// Snapshot returns a copy of the current state.
func (c *Context) Snapshot() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// BusinessID returns the bound business.
func (c *Context) BusinessID() (uuid.UUID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state.BusinessID == nil {
		return uuid.Nil, false
	}
	return *c.state.BusinessID, true
}

// Branch returns the branch binding.
func (c *Context) Branch() Binding {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Branch
}

// IsBranchBound reports whether a branch is bound.
func (c *Context) IsBranchBound() bool {
	_, bound := BranchOf(c.Branch())
	return bound
}

// IsFullyConfigured reports whether business and branch are both bound.
func (c *Context) IsFullyConfigured() bool {
	return c.Snapshot().FullyConfigured()
}

// Scope returns the tenant scope that stamps new writes.
func (c *Context) Scope() domain.TenantScope {
	s := c.Snapshot()
	scope := domain.TenantScope{}
	if s.BusinessID != nil {
		id := *s.BusinessID
		scope.BusinessID = &id
	}
	if b, ok := BranchOf(s.Branch); ok {
		id := b.ID
		scope.BranchID = &id
	}
	return scope
}

// Stamp fills the business and branch of entity where they are nil.
// Explicitly supplied values are never overwritten.
func (c *Context) Stamp(entity domain.Scoped) {
	current := c.Scope()
	target := entity.Scope()
	if target.BusinessID == nil {
		target.BusinessID = current.BusinessID
	}
	if target.BranchID == nil {
		target.BranchID = current.BranchID
	}
}

// RequireConfigured returns the scope for a domain write, or
// ErrTenantNotConfigured before the context is loaded and fully bound.
func (c *Context) RequireConfigured() (domain.TenantScope, error) {
	c.mu.RLock()
	loaded, configured := c.loaded, c.state.FullyConfigured()
	c.mu.RUnlock()

	if !loaded {
		return domain.TenantScope{}, fmt.Errorf("%w: context not loaded", apperrors.ErrTenantNotConfigured)
	}
	if !configured {
		return domain.TenantScope{}, apperrors.ErrTenantNotConfigured
	}
	return c.Scope(), nil
}

func toPersisted(s State) persistedState {
	p := persistedState{
		Version:    persistedVersion,
		BusinessID: s.BusinessID,
		StaffID:    s.StaffID,
		StaffName:  s.StaffName,
	}
	if b, ok := BranchOf(s.Branch); ok {
		id, at := b.ID, b.BoundAt
		p.BranchID = &id
		p.BranchName = b.Name
		p.BranchBoundAt = &at
	}
	return p
}

func fromPersisted(p persistedState) State {
	s := State{
		BusinessID: p.BusinessID,
		Branch:     Unbound{},
		StaffID:    p.StaffID,
		StaffName:  p.StaffName,
	}
	if p.BranchID != nil && p.BusinessID != nil {
		b := Bound{ID: *p.BranchID, Name: p.BranchName}
		if p.BranchBoundAt != nil {
			b.BoundAt = *p.BranchBoundAt
		}
		s.Branch = b
	}
	return s
}
