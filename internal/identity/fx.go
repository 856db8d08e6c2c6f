package identity

import (
	"github.com/smallbiznis/eventreg/internal/identity/repository"
	"github.com/smallbiznis/eventreg/internal/identity/service"
	"go.uber.org/fx"
)

var Module = fx.Module("identity.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
