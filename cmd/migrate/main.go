package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	dbpkg "github.com/tunnelkit/support/internal/db"
)

func main() {
	_ = godotenv.Load()

	down := flag.Int("down", 0, "roll back this many migrations instead of applying")
	flag.Parse()

	dbURL := envOr("DATABASE_URL", "file:support.db")
	driver := dbpkg.DriverFor(dbURL)

	conn, err := sql.Open(driver, dbURL)
	if err != nil {
		slog.Error("failed to open database", "err", err)
		os.Exit(1)
	}
	defer conn.Close()

	if err := conn.PingContext(context.Background()); err != nil {
		slog.Error("failed to connect", "err", err)
		os.Exit(1)
	}

	if *down > 0 {
		err = dbpkg.Rollback(conn, driver, *down)
	} else {
		err = dbpkg.Migrate(conn, driver)
	}
	if err != nil {
		slog.Error("migration failed", "err", err)
		os.Exit(1)
	}

	version, dirty, err := dbpkg.Version(conn, driver)
	if err != nil {
		slog.Error("failed to read schema version", "err", err)
		os.Exit(1)
	}
	fmt.Printf("schema version: %d (dirty=%t)\n", version, dirty)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
