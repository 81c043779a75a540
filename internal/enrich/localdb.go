package enrich

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteLocalDB is the default LocalLookup implementation: a read-only
// lookup against a local copy of the FAA serial-number database (spec §4.6
// "local-DB-only lookup"). It is a pure-Go driver so the binary needs no
// cgo toolchain on the kit.
type SQLiteLocalDB struct {
	db *sql.DB
}

// OpenSQLiteLocalDB opens the local enrichment database at path. It returns
// an error only if the database cannot be opened or pinged. A later failed
// LookupLocal call is not fatal either: Service.FastPathResolve skips the
// fast path for that serial and hands it to the async queue.
func OpenSQLiteLocalDB(path string) (*SQLiteLocalDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("enrich: opening local db %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("enrich: local db %s unreachable: %w", path, err)
	}
	return &SQLiteLocalDB{db: db}, nil
}

// LookupLocal implements LocalLookup.
func (l *SQLiteLocalDB) LookupLocal(serial string) (Result, bool, error) {
	row := l.db.QueryRow(
		`SELECT tracking_id, status, make, model FROM serials WHERE serial = ?`,
		serial,
	)
	var res Result
	err := row.Scan(&res.TrackingID, &res.Status, &res.Make, &res.Model)
	switch {
	case err == sql.ErrNoRows:
		return Result{}, true, nil
	case err != nil:
		return Result{}, false, err
	}
	res.Found = true
	res.Source = "local"
	return res, true, nil
}

// Close releases the underlying database handle.
func (l *SQLiteLocalDB) Close() error {
	return l.db.Close()
}
