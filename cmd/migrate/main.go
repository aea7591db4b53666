package main

import (
	"errors"
	"flag"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Clark-Hu/smart-ratings/internal/store"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	var (
		command     string
		steps       int
		databaseURL string
	)
	flag.StringVar(&command, "command", "up", "Migration command: up, down, force, version")
	flag.IntVar(&steps, "steps", 0, "Number of migrations to run (0 = all), or the version for force")
	flag.StringVar(&databaseURL, "database", "", "Database URL (overrides DB_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DB_URL")
	}
	if databaseURL == "" {
		log.Fatal().Msg("DB_URL environment variable or -database flag is required")
	}

	log.Info().Str("command", command).Int("steps", steps).Msg("Starting migration")

	m, err := store.NewMigrator(databaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create migrate instance")
	}
	defer m.Close()

	switch command {
	case "up":
		err = runUp(m, steps)
	case "down":
		err = runDown(m, steps)
	case "force":
		if steps == 0 {
			log.Fatal().Msg("Force command requires -steps flag with version number")
		}
		err = m.Force(steps)
	case "version":
		version, dirty, verr := m.Version()
		if verr != nil {
			if errors.Is(verr, migrate.ErrNilVersion) {
				log.Info().Msg("No migrations have been applied yet")
				return
			}
			log.Fatal().Err(verr).Msg("Failed to get version")
		}
		log.Info().Uint("version", version).Bool("dirty", dirty).Msg("Current migration version")
		return
	default:
		log.Fatal().Str("command", command).Msg("Unknown command")
	}

	if err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info().Msg("No migrations to apply")
			return
		}
		log.Fatal().Err(err).Msg("Migration failed")
	}
	log.Info().Msg("Migration completed successfully")
}

func runUp(m *migrate.Migrate, steps int) error {
	if steps > 0 {
		return m.Steps(steps)
	}
	return m.Up()
}

func runDown(m *migrate.Migrate, steps int) error {
	if steps > 0 {
		return m.Steps(-steps)
	}
	return m.Down()
}
