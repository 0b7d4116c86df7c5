package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// Dialect selects the SQL flavour spoken by the credential store.
type Dialect uint8

const (
	MySQL Dialect = iota + 1
	SQLite
)

func (d Dialect) String() string {
	switch d {
	case MySQL:
		return "mysql"
	case SQLite:
		return "sqlite"
	}
	return "unknown"
}

// Open connects to the SQL store named by url and verifies the connection.
// Accepted forms are "mysql://<go-sql-driver DSN>" and "sqlite://<path>".
func Open(url string) (*sql.DB, Dialect, error) {
	var (
		dialect Dialect
		driver  string
		dsn     string
	)
	switch {
	case strings.HasPrefix(url, "mysql://"):
		dialect, driver = MySQL, "mysql"
		dsn = withMySQLDefaults(strings.TrimPrefix(url, "mysql://"))
	case strings.HasPrefix(url, "sqlite://"):
		dialect, driver = SQLite, "sqlite"
		dsn = strings.TrimPrefix(url, "sqlite://")
	default:
		return nil, 0, fmt.Errorf("unsupported sql store url %q", redact(url))
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, 0, err
	}

	// Pool settings
	if dialect == SQLite {
		// one writer; also keeps ":memory:" databases on a single connection
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	// Ping with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, 0, err
	}
	return db, dialect, nil
}

// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
func withMySQLDefaults(dsn string) string {
	params := []string{"parseTime=true", "loc=UTC", "charset=utf8mb4"}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	for _, p := range params {
		key := p[:strings.Index(p, "=")+1]
		if strings.Contains(dsn, key) {
			continue
		}
		dsn += sep + p
		sep = "&"
	}
	return dsn
}

// redact hides the password part of a DSN for log output.
func redact(url string) string {
	at := strings.LastIndex(url, "@")
	if at < 0 {
		return url
	}
	head := url[:at]
	if i := strings.LastIndex(head, ":"); i >= 0 && !strings.HasPrefix(head[i:], "://") {
		return head[:i+1] + "****" + url[at:]
	}
	return url
}
