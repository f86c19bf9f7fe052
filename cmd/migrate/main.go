package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"qazna.org/authservice/internal/store/pg"
)

func main() {
	log.SetFlags(0)
	_ = godotenv.Load()

	dsn := flag.String("dsn", os.Getenv("DB_DSN"), "PostgreSQL DSN")
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or DB_DSN")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|status]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := pg.Open(*dsn, pg.PoolOptions{MaxOpenConns: 2})
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	switch flag.Arg(0) {
	case "up":
		err = pg.Migrate(ctx, store.DB())
	case "down":
		err = pg.MigrateDown(ctx, store.DB())
	case "status":
		err = pg.MigrationStatus(ctx, store.DB())
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", flag.Arg(0), err)
	}
}
