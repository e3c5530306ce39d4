package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
)

func TestIsDuplicateEntry(t *testing.T) {
	dup := &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'alice@example.org' for key 'uq_users_email'"}
	if !isDuplicateEntry(dup) {
		t.Error("1062 not recognized as duplicate entry")
	}
	if !isDuplicateEntry(fmt.Errorf("insert user: %w", dup)) {
		t.Error("wrapped 1062 not recognized")
	}
	if isDuplicateEntry(&mysql.MySQLError{Number: 1213}) {
		t.Error("deadlock mistaken for duplicate entry")
	}
	if isDuplicateEntry(errors.New("plain error")) {
		t.Error("plain error mistaken for duplicate entry")
	}
	if isDuplicateEntry(nil) {
		t.Error("nil mistaken for duplicate entry")
	}
}
