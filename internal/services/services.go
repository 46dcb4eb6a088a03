package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	apperrors "poscore/internal/errors"
	"poscore/internal/outbox"
	"poscore/internal/store"
	"poscore/internal/tenant"
	"poscore/pkg/contracts/domain"
)

// LimitChecker reports whether a plan allows one more of a counted entity.
type LimitChecker interface {
	WithinLimit(limit string, current int) bool
}

// Deps are the collaborators shared by every domain service.
type Deps struct {
	Store  *store.Store
	Outbox *outbox.Outbox
	Tenant *tenant.Context
	Limits LimitChecker
	Logger *slog.Logger
	Now    func() time.Time
}

type base struct {
	store    *store.Store
	outbox   *outbox.Outbox
	tenant   *tenant.Context
	limits   LimitChecker
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

func newBase(d Deps, component string) base {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return base{
		store:    d.Store,
		outbox:   d.Outbox,
		tenant:   d.Tenant,
		limits:   d.Limits,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.With(slog.String("component", component)),
		now:      func() time.Time { return now().UTC() },
	}
}

// check runs the struct validation tags and folds failures into
// ErrInvalidEntity.
func (b *base) check(entity any) error {
	err := b.validate.Struct(entity)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
		}
		return fmt.Errorf("%w: %s", apperrors.ErrInvalidEntity, strings.Join(fields, ", "))
	}
	return fmt.Errorf("%w: %v", apperrors.ErrInvalidEntity, err)
}

// allow consults the plan limit. A missing checker allows everything.
func (b *base) allow(limit string, current int) error {
	if b.limits == nil || b.limits.WithinLimit(limit, current) {
		return nil
	}
	return fmt.Errorf("%w: %s (%d in use)", apperrors.ErrLimitReached, limit, current)
}

// owns reports whether a row stored under s belongs to the bound business
// and branch. Rows left on disk by an earlier binding are treated as absent.
func owns(bound, s domain.TenantScope) bool {
	return sameID(bound.BusinessID, s.BusinessID) && sameID(bound.BranchID, s.BranchID)
}

func sameID(a, b *uuid.UUID) bool {
	return a != nil && b != nil && *a == *b
}

// enqueue records the mutation in the outbox inside tx.
func (b *base) enqueue(ctx context.Context, tx *store.Tx, e outbox.Entry) error {
	if _, err := b.outbox.EnqueueWith(ctx, tx.Outbox(), e); err != nil {
		return fmt.Errorf("enqueue %s %s: %w", e.EntityType, e.Operation, err)
	}
	return nil
}

func (b *base) logAction(ctx context.Context, action string, err error, attrs ...slog.Attr) {
	if err != nil {
		attrs = append(attrs,
			slog.String("action", action),
			slog.String("result", "failure"),
			slog.String("error", err.Error()))
		b.logger.LogAttrs(ctx, slog.LevelWarn, action+" failed", attrs...)
		return
	}
	attrs = append(attrs, slog.String("action", action), slog.String("result", "success"))
	b.logger.LogAttrs(ctx, slog.LevelInfo, action, attrs...)
}
