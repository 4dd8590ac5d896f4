package migrate

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const downMarker = "-- +migrate Down"

// DB is the subset of *sqlx.DB the runner needs.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	GetContext(ctx context.Context, dest any, query string, args ...any) error
}

// Up applies every *.sql file in dir that schema_migrations has not seen,
// in filename order, and returns the files it applied.
func Up(ctx context.Context, db DB, dir string, logger *slog.Logger) ([]string, error) {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (filename TEXT PRIMARY KEY, applied_at TIMESTAMPTZ DEFAULT NOW())`); err != nil {
		return nil, fmt.Errorf("ensure schema_migrations: %w", err)
	}
	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	sort.Strings(files)

	var applied []string
	for _, file := range files {
		filename := filepath.Base(file)
		var exists bool
		if err := db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)`, filename); err != nil {
			return applied, fmt.Errorf("read migration state: %w", err)
		}
		if exists {
			continue
		}
		content, err := os.ReadFile(file)
		if err != nil {
			return applied, err
		}
		for _, stmt := range Statements(string(content)) {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return applied, fmt.Errorf("apply %s: %w", filename, err)
			}
		}
		if _, err := db.ExecContext(ctx, `INSERT INTO schema_migrations (filename) VALUES ($1)`, filename); err != nil {
			return applied, fmt.Errorf("record migration %s: %w", filename, err)
		}
		logger.Info("migration applied", "file", filename)
		applied = append(applied, filename)
	}
	return applied, nil
}

// Statements returns the up section of a migration split into statements.
// Comment lines are dropped and a statement ends at a line containing ";".
func Statements(sqlText string) []string {
	up, _, _ := strings.Cut(sqlText, downMarker)
	var statements []string
	var current strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(up))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		current.WriteString(line)
		current.WriteRune('\n')
		if strings.Contains(line, ";") {
			statements = append(statements, current.String())
			current.Reset()
		}
	}
	if strings.TrimSpace(current.String()) != "" {
		statements = append(statements, current.String())
	}
	out := statements[:0]
	for _, stmt := range statements {
		if strings.TrimSpace(stmt) != "" {
			out = append(out, stmt)
		}
	}
	return out
}
