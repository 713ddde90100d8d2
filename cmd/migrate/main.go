package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/Ced-Maker4352/luxe-mobile/internal/config"
	"github.com/Ced-Maker4352/luxe-mobile/migrations"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/joho/godotenv"
)

var errUsage = errors.New("usage")

func main() {
	_ = godotenv.Load()

	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, errUsage) {
			printUsage()
		}
		log.Printf("level=error component=migrate msg=\"migration command failed\" err=%v", err)
		os.Exit(1)
	}
}

// run executes one command. Arguments are validated before any connection is
// opened, and the migrator is always closed before returning.
func run(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("%w: missing command", errUsage)
	}
	command := args[0]

	var target uint
	switch command {
	case "up", "down", "status":
	case "goto":
		if len(args) < 2 {
			return fmt.Errorf("%w: goto requires a version", errUsage)
		}
		version, parseErr := strconv.ParseUint(args[1], 10, 64)
		if parseErr != nil {
			return fmt.Errorf("%w: invalid version %q", errUsage, args[1])
		}
		target = uint(version)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, command)
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return errors.New("DATABASE_URL is required")
	}

	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, migrateURL(cfg.DatabaseURL))
	if err != nil {
		return fmt.Errorf("failed to initialise migrations: %w", err)
	}
	defer func() {
		if sourceErr, dbErr := m.Close(); sourceErr != nil || dbErr != nil {
			log.Printf("level=warn component=migrate msg=\"failed to close migration resources\" source_err=%v db_err=%v", sourceErr, dbErr)
		}
	}()

	switch command {
	case "up":
		if err := m.Up(); err != nil {
			if !errors.Is(err, migrate.ErrNoChange) {
				return fmt.Errorf("migration up failed: %w", err)
			}
			log.Println("level=info component=migrate msg=\"no change; schema is current\"")
			return nil
		}
		log.Println("level=info component=migrate msg=\"migrations applied\"")

	case "down":
		if err := m.Steps(-1); err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}
		log.Println("level=info component=migrate msg=\"rolled back one migration\"")

	case "goto":
		if err := m.Migrate(target); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migrate to version %d failed: %w", target, err)
		}
		log.Printf("level=info component=migrate msg=\"schema at version\" version=%d", target)

	case "status":
		version, dirty, err := m.Version()
		if err != nil {
			if errors.Is(err, migrate.ErrNilVersion) {
				log.Println("level=info component=migrate msg=\"no migrations applied\"")
				return nil
			}
			return fmt.Errorf("failed to read version: %w", err)
		}
		log.Printf("level=info component=migrate msg=\"current version\" version=%d dirty=%t", version, dirty)
	}
	return nil
}

// migrateURL rewrites a postgres DSN to the pgx/v5 driver scheme.
func migrateURL(databaseURL string) string {
	for _, prefix := range []string{"postgresql://", "postgres://"} {
		if strings.HasPrefix(databaseURL, prefix) {
			return "pgx5://" + strings.TrimPrefix(databaseURL, prefix)
		}
	}
	return databaseURL
}

func printUsage() {
	fmt.Println("Usage: migrate [command]")
	fmt.Println("Commands:")
	fmt.Println("  up     - apply all pending migrations")
	fmt.Println("  down   - roll back the last migration")
	fmt.Println("  goto N - migrate to version N")
	fmt.Println("  status - print the current version")
}
