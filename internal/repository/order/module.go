package order

import (
	"go.uber.org/fx"

	"github.com/Additional-Code/beacon/internal/sync"
)

// Module provides the order repository to Fx, both as the concrete type and
// as the sync engine's store boundary.
var Module = fx.Options(
	fx.Provide(NewRepository),
	fx.Provide(func(r *Repository) sync.Store { return r }),
)
