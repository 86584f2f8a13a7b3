// Command unenroll deactivates the course enrollments listed in a CSV file.
//
// Usage:
//
//	unenroll [-p|--csv_path PATH] [--report PATH]
//
// Without a path the CSV attached to the newest stored bulk unenroll
// configuration is used. Settings come from the environment (and .env).
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
)

func main() {
	// Values already set in the environment win over .env.
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("unenroll failed", "error", err)
		stop()
		os.Exit(1)
	}
}
