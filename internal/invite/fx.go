package invite

import (
	"github.com/smallbiznis/invites/internal/config"
	"github.com/smallbiznis/invites/internal/invite/code"
	"github.com/smallbiznis/invites/internal/invite/repository"
	"github.com/smallbiznis/invites/internal/invite/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invite.service",
	fx.Provide(provideGenerator),
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)

func provideGenerator(cfg config.Config) (*code.Generator, error) {
	return code.NewGenerator(cfg.Invites.CodeFormat, cfg.Invites.SnowflakeNode)
}
