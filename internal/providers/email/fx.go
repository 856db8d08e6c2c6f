package email

import (
	"strings"

	"github.com/smallbiznis/eventreg/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("providers.email",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config) Provider {
	if strings.TrimSpace(cfg.SMTP.Host) == "" {
		return Discard{}
	}
	return NewSMTP(Config(cfg.SMTP))
}
