package main

import (
	"context"
	"log"
	"os"
	"time"

	"beresin/internal/api"
	"beresin/internal/auth"
	"beresin/internal/config"
	"beresin/internal/redis"
	"beresin/internal/service/marketplace"
	"beresin/internal/storage"

	"github.com/gin-gonic/gin"
)

func main() {
	cfgPath := os.Getenv("BERESIN_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	dbType := os.Getenv("BERESIN_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	log.Printf("dbType: %s\n", dbType)
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	// Create necessary tables: users, user_tokens, messages, bookings
	if err := storage.Migrate(db, dbType); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	rdb, err := redis.NewClient(cfg)
	if err != nil {
		log.Printf("redis unavailable, token cache disabled: %v", err)
		rdb = nil
	} else {
		defer rdb.Close()
	}

	tokenTTL := time.Duration(cfg.BasicConfig.TokenTTLHours) * time.Hour
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	authService := auth.NewService(db, rdb, tokenTTL)

	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()
	authService.StartTokenSweeper(sweepCtx, auth.DefaultTokenSweepInterval)

	service := marketplace.NewService(db)
	handlers := api.NewHandler(service, authService)

	router := gin.Default()
	handlers.RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	if addr == "" {
		addr = ":8090"
	}

	if err := router.Run(addr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
