package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"leadtrack.io/internal/migrate"
	"leadtrack.io/internal/obs"
	"leadtrack.io/internal/store/pg"
)

func main() {
	log := obs.Logger()
	dsn := flag.String("dsn", os.Getenv("LEADTRACK_PG_DSN"), "PostgreSQL DSN")
	flag.Parse()

	if *dsn == "" {
		log.Fatal().Msg("missing DSN: provide via -dsn or LEADTRACK_PG_DSN")
	}
	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: migrate [-dsn DSN] up|down|status|version|seed|files")
		os.Exit(2)
	}

	store, err := pg.Open(*dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("open db")
	}
	// The manager owns the handle from here and closes it.
	mgr := migrate.NewManager(store.DB())
	defer mgr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cmd := flag.Arg(0)
	switch cmd {
	case "up":
		err = mgr.Up()
	case "down":
		err = mgr.Down()
	case "seed":
		err = mgr.Seed(ctx)
	case "status", "version":
		var (
			v     uint
			dirty bool
		)
		v, dirty, err = mgr.Status()
		if err == nil {
			fmt.Printf("version=%d dirty=%t\n", v, dirty)
		}
	case "files":
		var files []string
		files, err = migrate.MigrationFiles()
		for _, f := range files {
			fmt.Println(f)
		}
	default:
		log.Fatal().Str("command", cmd).Msg("unknown command")
	}
	if err != nil {
		log.Fatal().Err(err).Str("command", cmd).Msg("migrate failed")
	}
	log.Info().Str("command", cmd).Msg("migrate done")
}
