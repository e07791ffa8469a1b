package sqlite

import (
	"database/sql"
	"net/url"
	"os"
	"path/filepath"

	"github.com/samber/oops"
	_ "modernc.org/sqlite"
)

// pragmas are applied by the driver to every new connection.
var pragmas = []string{
	"foreign_keys(1)",
	"busy_timeout(5000)",
	"journal_mode(WAL)",
}

// Open opens (or creates) the SQLite database at path, creating parent directories as needed.
func Open(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, oops.Code("STORAGE_OPEN_FAILED").
			With("operation", "create db dir").
			With("path", path).
			Wrap(err)
	}

	query := url.Values{}
	for _, p := range pragmas {
		query.Add("_pragma", p)
	}

	db, err := sql.Open("sqlite", "file:"+path+"?"+query.Encode())
	if err != nil {
		return nil, oops.Code("STORAGE_OPEN_FAILED").
			With("operation", "open sqlite db").
			With("path", path).
			Wrap(err)
	}

	// one connection: statements are serialized and uniqueness is left to the UNIQUE constraint
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, oops.Code("STORAGE_OPEN_FAILED").
			With("operation", "ping sqlite db").
			With("path", path).
			Wrap(err)
	}
	return db, nil
}
