package db_client

import (
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func Open(host, port, user, pass, database string, maxOpen int) (*sql.DB, error) {
	return OpenDSN(DSN(host, port, user, pass, database), maxOpen)
}

// DSN builds a postgres URL; credentials are escaped.
func DSN(host, port, user, pass, database string) string {
	return fmt.Sprintf("postgres://%s@%s:%s/%s",
		url.UserPassword(user, pass).String(), host, port, database,
	)
}

func OpenDSN(dsn string, maxOpen int) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetConnMaxIdleTime(time.Minute)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
