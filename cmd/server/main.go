package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/fenggwsx/StudyChat/internal/config"
	"github.com/fenggwsx/StudyChat/internal/server"
	"github.com/fenggwsx/StudyChat/internal/storage"
	"github.com/fenggwsx/StudyChat/internal/storage/memory"
	"github.com/fenggwsx/StudyChat/internal/storage/sqlite"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file loaded")
	}

	cfg := config.LoadServerConfig()

	var store storage.Store
	if cfg.Database.Path == "" {
		log.Println("no database path configured, using in-process store")
		store = memory.NewStore()
	} else {
		sqliteStore, err := sqlite.NewStore(cfg.Database)
		if err != nil {
			log.Fatalf("init storage: %v", err)
		}
		store = sqliteStore
	}
	defer store.Close()

	app := server.NewApp(cfg, store)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		log.Fatalf("server shutdown: %v", err)
	}
}
