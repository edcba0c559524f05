package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/soundhaven/soundhaven/internal/server"
	"github.com/soundhaven/soundhaven/pkg/db"
	"github.com/soundhaven/soundhaven/pkg/log"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		log.Module,
		db.Module,
		fx.Provide(RegisterSnowflake),
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
