package capacity

import "go.uber.org/fx"

var Module = fx.Module("capacity.ledger",
	fx.Provide(ProvideLocker),
	fx.Provide(New),
)
