package sqlite

import (
	"database/sql"

	// Import the SQLite driver.
	_ "github.com/mattn/go-sqlite3"
)

// InitDB opens the SQLite database and creates the transfers table if it
// doesn't exist.
func InitDB(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS transfers (
		id INTEGER PRIMARY KEY,
		session_id TEXT UNIQUE,
		owner_id TEXT,
		url TEXT,
		filename TEXT,
		category TEXT,
		bytes INTEGER,
		status TEXT,
		reason TEXT,
		started_at DATETIME,
		finished_at DATETIME
	)`)

	if err != nil {
		return nil, err
	}

	return db, nil
}
