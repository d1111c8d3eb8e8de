package directory

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SchemaSQL creates the personnel table when missing.
const SchemaSQL = `
CREATE TABLE IF NOT EXISTS personnel (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	date_of_birth TEXT,
	active INTEGER NOT NULL DEFAULT 1
);
`

// OpenSQLite opens the roster database at path and ensures the schema exists.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open roster database: %w", err)
	}
	if _, err := db.Exec(SchemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create roster schema: %w", err)
	}
	return db, nil
}

// SQLiteDirectory lists personnel from a SQLite database.
type SQLiteDirectory struct {
	db *sql.DB
}

// NewSQLiteDirectory creates a directory over an open database.
func NewSQLiteDirectory(db *sql.DB) *SQLiteDirectory {
	return &SQLiteDirectory{db: db}
}

// ListActive returns active personnel sorted by id.
func (d *SQLiteDirectory) ListActive(ctx context.Context) ([]Person, error) {
	rows, err := d.db.QueryContext(ctx,
		"SELECT id, name, date_of_birth FROM personnel WHERE active = 1 ORDER BY id",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list personnel: %w", err)
	}
	defer rows.Close()

	var people []Person
	for rows.Next() {
		var (
			p   Person
			dob sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.Name, &dob); err != nil {
			return nil, fmt.Errorf("failed to scan personnel: %w", err)
		}
		if dob.Valid {
			parsed, err := parseDate(dob.String)
			if err != nil {
				return nil, fmt.Errorf("personnel %q: %w", p.ID, err)
			}
			p.DateOfBirth = parsed
		}
		people = append(people, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list personnel: %w", err)
	}

	return people, nil
}
