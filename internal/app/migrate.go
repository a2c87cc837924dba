package app

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sort"

	"github.com/sirupsen/logrus"
)

// Migrate applies every .sql file in fsys, in lexical order, inside one transaction.
// The schema files are idempotent, so running it on every start is safe.
func Migrate(ctx context.Context, db *sql.DB, fsys fs.FS, log logrus.FieldLogger) (err error) {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(names)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, name := range names {
		script, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, string(script)); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
		log.WithField("migration", name).Info("migration applied")
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	return nil
}
