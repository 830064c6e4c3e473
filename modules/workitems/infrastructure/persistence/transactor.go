package persistence

import (
	"context"

	"github.com/drydock-pm/drydock/modules/workitems/services"
	"github.com/drydock-pm/drydock/pkg/composables"
)

// Transactor opens transactions on the pool carried by the context.
type Transactor struct{}

func NewTransactor() *Transactor {
	return &Transactor{}
}

func (Transactor) InTx(ctx context.Context, fn func(context.Context) error) error {
	return composables.InTx(ctx, fn)
}

func (Transactor) InSavepoint(ctx context.Context, fn func(context.Context) error) error {
	return composables.InSavepoint(ctx, fn)
}

var _ services.Transactor = (*Transactor)(nil)
