package auth

import (
	"go.uber.org/fx"

	"github.com/dodamlabs/dodam/internal/auth/oauth"
	"github.com/dodamlabs/dodam/internal/auth/repository"
	"github.com/dodamlabs/dodam/internal/auth/service"
	"github.com/dodamlabs/dodam/internal/auth/session"
)

var Module = fx.Module("auth",
	session.Module,
	fx.Provide(repository.New),
	fx.Provide(service.New),
	fx.Provide(oauth.ParseProvidersFromEnv),
	fx.Provide(oauth.BuildRegistry),
	fx.Provide(oauth.New),
)
