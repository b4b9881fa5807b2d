package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/coverview/creditd/internal/clock"
	"github.com/coverview/creditd/internal/config"
	"github.com/coverview/creditd/internal/logger"
	"github.com/coverview/creditd/internal/migration"
	"github.com/coverview/creditd/internal/server"
	"github.com/coverview/creditd/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
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
