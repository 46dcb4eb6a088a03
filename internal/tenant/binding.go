package tenant

import (
	"time"

	"github.com/google/uuid"
)

// Binding is the branch binding of the installation: either Unbound or
// Bound. The set of variants is closed.
type Binding interface {
	isBinding()
}

// Unbound means no branch has been chosen yet.
type Unbound struct{}

// Bound records the branch the terminal is locked to.
type Bound struct {
	ID      uuid.UUID
	Name    string
	BoundAt time.Time
}

func (Unbound) isBinding() {}
func (Bound) isBinding() {}

// BranchOf returns the bound branch, if any.
func BranchOf(b Binding) (Bound, bool) {
	bound, ok := b.(Bound)
	return bound, ok
}
