// Package database provides support for access the database.
package database

import (
	"fmt"
	"net/url"

	_ "github.com/jackc/pgx/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverSQLite opens a per agency sqlite schedule file
	DriverSQLite = "sqlite3"
	// DriverPostgres opens a postgres schedule database through pgx
	DriverPostgres = "pgx"
)

// Config is the required properties to use the database.
// Path is only used by DriverSQLite, the remaining fields only by DriverPostgres.
type Config struct {
	Driver     string
	Path       string
	User       string
	Password   string
	Host       string
	Name       string
	DisableTLS bool
}

// Open knows how to open a database connection based on the configuration.
// The connection is not verified, schedule stores that are missing surface as errors on first query
// so a single broken agency does not prevent the others from starting.
func Open(cfg Config) (*sqlx.DB, error) {
	switch cfg.Driver {
	case DriverSQLite:
		return openSQLite(cfg)
	case DriverPostgres, "":
		return sqlx.Open(DriverPostgres, postgresURL(cfg))
	}
	return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
}

func openSQLite(cfg Config) (*sqlx.DB, error) {
	if len(cfg.Path) == 0 {
		return nil, fmt.Errorf("sqlite schedule store requires a path")
	}
	dsn := cfg.Path
	if dsn != ":memory:" {
		// read only, the store is built by the offline import and must never be created here
		dsn = "file:" + cfg.Path + "?mode=ro"
	}
	db, err := sqlx.Open(DriverSQLite, dsn)
	if err != nil {
		return nil, err
	}
	if dsn == ":memory:" {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

func postgresURL(cfg Config) string {
	sslMode := "require"
	if cfg.DisableTLS {
		sslMode = "disable"
	}

	q := make(url.Values)
	q.Set("sslmode", sslMode)
	q.Set("timezone", "utc")

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     cfg.Host,
		Path:     cfg.Name,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// PrepareNamedQueryFromMap wraps boilerplate sqlx to prepare named query from map of ddl parameters
// returns rebound query string and arguments slice
func PrepareNamedQueryFromMap(
	statementString string,
	db *sqlx.DB,
	sqlArgMap map[string]interface{}) (string, []interface{}, error) {

	query, args, err := sqlx.Named(statementString, sqlArgMap)
	if err != nil {
		return query, nil, err
	}
	query, args, err = sqlx.In(query, args...)
	if err != nil {
		return query, nil, err
	}
	query = db.Rebind(query)
	return query, args, nil
}
