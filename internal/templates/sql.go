package templates

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "embed"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/beforest-co/supportbot/internal/store"
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

//go:embed migrations_postgres.sql
var postgresMigrations string

// SQLSource reads templates from a message_templates table in Postgres or
// SQLite, selected by DSN shape.
type SQLSource struct {
	db     *sql.DB
	driver string
}

// NewSQLSource opens the template database and applies migrations.
func NewSQLSource(dsn string) (*SQLSource, error) {
	if dsn == "" {
		slog.Error("SQLSource DSN not set")
		return nil, fmt.Errorf("template database DSN not set")
	}

	driver := store.DetectDSNType(dsn)
	slog.Debug("Opening template database", "driver", driver)

	db, err := sql.Open(driver, dsn)
	if err != nil {
		slog.Error("Failed to open template database", "error", err, "driver", driver)
		return nil, fmt.Errorf("open template database: %w", err)
	}
	if err := db.Ping(); err != nil {
		slog.Error("Template database ping failed", "error", err, "driver", driver)
		return nil, fmt.Errorf("template database ping: %w", err)
	}

	migrations := sqliteMigrations
	if driver == "postgres" {
		migrations = postgresMigrations
	}
	if _, err := db.Exec(migrations); err != nil {
		slog.Error("Failed to run template migrations", "error", err, "driver", driver)
		return nil, fmt.Errorf("run template migrations: %w", err)
	}

	slog.Info("Template database opened", "driver", driver)
	return &SQLSource{db: db, driver: driver}, nil
}

// LoadActive returns every active template ordered by category then title,
// matching how the admin dashboard lists them.
func (s *SQLSource) LoadActive(ctx context.Context) ([]Template, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, title, category, content, is_active FROM message_templates WHERE is_active = TRUE ORDER BY category, title`)
	if err != nil {
		slog.Error("SQLSource LoadActive query failed", "error", err)
		return nil, fmt.Errorf("query message_templates: %w", err)
	}
	defer rows.Close()

	var all []Template
	for rows.Next() {
		var tmpl Template
		if err := rows.Scan(&tmpl.Key, &tmpl.Title, &tmpl.Category, &tmpl.Content, &tmpl.IsActive); err != nil {
			slog.Error("SQLSource LoadActive scan failed", "error", err)
			return nil, fmt.Errorf("scan message_templates row: %w", err)
		}
		all = append(all, tmpl)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLSource LoadActive rows iteration failed", "error", err)
		return nil, fmt.Errorf("iterate message_templates rows: %w", err)
	}

	slog.Debug("SQLSource LoadActive succeeded", "count", len(all))
	return all, nil
}

// Close closes the database handle.
func (s *SQLSource) Close() error {
	slog.Debug("Closing template database", "driver", s.driver)
	return s.db.Close()
}
