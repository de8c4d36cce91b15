package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/dodamlabs/dodam/internal/auth"
	"github.com/dodamlabs/dodam/internal/clock"
	"github.com/dodamlabs/dodam/internal/config"
	"github.com/dodamlabs/dodam/internal/identity"
	"github.com/dodamlabs/dodam/internal/migration"
	"github.com/dodamlabs/dodam/internal/observability"
	"github.com/dodamlabs/dodam/internal/server"
	"github.com/dodamlabs/dodam/pkg/db"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// Functional domains
		auth.Module,
		identity.Module,
		migration.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
