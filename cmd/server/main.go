package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"

	"github.com/terravista/terraplan/internal/server"
	"github.com/terravista/terraplan/internal/server/config"
)

func main() {

	// A missing .env is fine; explicit env vars and flags still apply.
	_ = godotenv.Load()

	ctx := context.Background()
	cfg := config.LoadConfig()

	app, err := server.NewApp(ctx, cfg)
	if err != nil {
		log.Printf("%v", err)
		return
	}

	app.Run(ctx)
}
