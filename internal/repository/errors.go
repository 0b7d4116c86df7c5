// Package repository implements the credential store on top of database/sql.
// These sentinel values let the session layer distinguish a missing record
// from a unique-constraint violation without knowing which backend is in
// use; the document store in mongostore returns the same values.
package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when no record matches the lookup.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert violates a unique constraint
// (users.email or refresh_tokens.token_hash).
var ErrDuplicate = errors.New("duplicate")

// isDuplicate recognises unique violations from both SQL drivers.
func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
