package registration

import (
	"github.com/smallbiznis/eventreg/internal/registration/repository"
	"github.com/smallbiznis/eventreg/internal/registration/service"
	"go.uber.org/fx"
)

var Module = fx.Module("registration.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
