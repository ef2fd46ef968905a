package main

import (
	"github.com/Sofia-Mohammed/Evangadi-Forum/internal/chat"
	"github.com/Sofia-Mohammed/Evangadi-Forum/internal/config"
	"github.com/Sofia-Mohammed/Evangadi-Forum/internal/db"
	clog "github.com/Sofia-Mohammed/Evangadi-Forum/internal/log"
	"github.com/Sofia-Mohammed/Evangadi-Forum/internal/presence"
	"github.com/Sofia-Mohammed/Evangadi-Forum/internal/server"
	"github.com/Sofia-Mohammed/Evangadi-Forum/internal/ws"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	// main 函数负责加载配置、初始化日志、连接数据库并启动 Gin 服务。
	_ = godotenv.Load()
	cfg := config.Load()
	clog.Init(cfg.Env)
	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("config validate")
	}

	gdb, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatal().Err(err).Msg("db migrate")
	}

	registry := presence.NewRegistry()
	hub := ws.NewHub(chat.NewStore(gdb), registry)
	go hub.Run()
	defer hub.Shutdown()

	r := server.SetupRouter(cfg, gdb, hub)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server run")
	}
}
