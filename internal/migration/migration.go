package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

var ErrNoDatabase = errors.New("migration database handle is required")

// Version is one embedded schema step with both directions present.
type Version struct {
	Number uint
	Name   string
	Up     string
	Down   string
}

// Versions returns the embedded schema steps in apply order. A step missing
// either direction is an error.
func Versions() ([]Version, error) {
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	if err != nil {
		return nil, err
	}

	byNumber := map[uint]*Version{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		file := entry.Name()
		base, direction, ok := cutDirection(file)
		if !ok {
			return nil, fmt.Errorf("unexpected migration file %s", file)
		}
		prefix, name, _ := strings.Cut(base, "_")
		n, err := strconv.ParseUint(prefix, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("migration %s: bad version: %w", file, err)
		}
		v := byNumber[uint(n)]
		if v == nil {
			v = &Version{Number: uint(n), Name: name}
			byNumber[uint(n)] = v
		}
		if direction == "up" {
			v.Up = file
		} else {
			v.Down = file
		}
	}

	out := make([]Version, 0, len(byNumber))
	for _, v := range byNumber {
		if v.Up == "" || v.Down == "" {
			return nil, fmt.Errorf("migration %06d_%s is missing a direction", v.Number, v.Name)
		}
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func cutDirection(file string) (string, string, bool) {
	for _, direction := range []string{"up", "down"} {
		if base, ok := strings.CutSuffix(file, "."+direction+".sql"); ok {
			return base, direction, true
		}
	}
	return "", "", false
}

// Runner applies the embedded Postgres schema.
type Runner struct {
	log *zap.Logger
}

func NewRunner(log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{log: log.Named("migration")}
}

// Up migrates to the newest embedded version and reports where the schema
// ended. The migrator is not closed since that would close db.
func (r *Runner) Up(db *sql.DB) (uint, error) {
	if db == nil {
		return 0, ErrNoDatabase
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return 0, fmt.Errorf("open migrations: %w", err)
	}
	source, err := iofs.New(sub, ".")
	if err != nil {
		return 0, fmt.Errorf("migration source: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return 0, fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return 0, fmt.Errorf("migrator: %w", err)
	}
	m.Log = migrateLogger{r.log}

	before, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
	case err != nil:
		return 0, fmt.Errorf("read schema version: %w", err)
	case dirty:
		return before, fmt.Errorf("schema version %d is dirty", before)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return before, fmt.Errorf("apply migrations: %w", err)
	}
	after, _, err := m.Version()
	if err != nil {
		return before, fmt.Errorf("read schema version: %w", err)
	}

	if after == before {
		r.log.Info("schema up to date", zap.Uint("version", after))
	} else {
		r.log.Info("schema migrated", zap.Uint("from", before), zap.Uint("to", after))
	}
	return after, nil
}

type migrateLogger struct {
	log *zap.Logger
}

func (l migrateLogger) Printf(format string, v ...any) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l migrateLogger) Verbose() bool {
	return l.log.Core().Enabled(zap.DebugLevel)
}
