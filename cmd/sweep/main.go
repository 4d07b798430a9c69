package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"cartengine/internal/config"
	"cartengine/internal/db"
	"cartengine/internal/storage"
)

// sweep deletes carts that have not been touched within the abandonment
// window. Run it from cron; redis carts expire via TTL and need no sweep.
func main() {
	_ = godotenv.Load()

	cfg := config.FromEnv()
	logger := log.New(os.Stdout, "[sweep] ", log.LstdFlags|log.LUTC|log.Lshortfile)

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DBConnString)
	if err != nil {
		logger.Fatalf("connect db: %v", err)
	}
	defer pool.Close()

	store := storage.NewPostgres(pool, storage.PostgresOptions{})
	cutoff := time.Now().UTC().Add(-cfg.AbandonedAfter)

	deleted, err := store.DeleteAbandoned(ctx, cutoff)
	if err != nil {
		logger.Fatalf("delete abandoned carts: %v", err)
	}

	logger.Printf("deleted %d carts untouched since %s", deleted, cutoff.Format(time.RFC3339))
}
