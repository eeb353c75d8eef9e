/*
main.go - Application entry point

PURPOSE:
  The archive CLI. Serves the HTTP API with periodic ingest, imports
  scraped month files, and lists what is archived.

COMMANDS:
  archive serve              HTTP API, optional scheduled ingest
  archive import <file...>   Ingest YAML/JSON month files (or directories)
  archive list               Print archived months and games

CONFIGURATION:
  Flags > ARCHIVE_* environment > .env files > archive.yaml > defaults.
  See config/config.go for the keys.

EXAMPLES:
  # Serve on :3000 with the pure Go SQLite driver
  archive serve --port 3000 --driver sqlite

  # Import a directory of scrapes into a specific database
  archive import --db ./data/archive.db ./scrapes

SEE ALSO:
  - api/server.go: Router configuration
  - ingest/scheduler.go: Periodic ingest
*/
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cmd, a := newRootCmd()
	err := cmd.ExecuteContext(ctx)
	if cerr := a.close(); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
