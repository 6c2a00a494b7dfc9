package order

import (
	"go.uber.org/fx"
)

// Module mounts the order sync endpoints on the shared Echo instance.
var Module = fx.Options(
	fx.Provide(NewHandler),
	fx.Invoke(Register),
)
