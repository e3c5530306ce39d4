package audit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"mailgate/entity"
)

type memAuditStore struct {
	entries []*entity.AuditEntry
	fail    error
}

func (m *memAuditStore) AppendAudit(_ context.Context, e *entity.AuditEntry) error {
	if m.fail != nil {
		return m.fail
	}
	m.entries = append(m.entries, e)
	return nil
}

type memJournal struct {
	entries []*entity.AuditEntry
	fail    error
}

func (m *memJournal) SaveAuditEntry(e *entity.AuditEntry) error {
	if m.fail != nil {
		return m.fail
	}
	m.entries = append(m.entries, e)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRecordAssignsIdentityAndTimestamp(t *testing.T) {
	store := &memAuditStore{}
	journal := &memJournal{}
	rec := New(store, journal, discardLogger())

	entry := &entity.AuditEntry{
		Actor:  "alice@example.org",
		Action: entity.AuditActionRegister,
		Target: "user-1",
		Result: "ok",
	}
	rec.Record(context.Background(), entry)

	if entry.ID == "" {
		t.Error("entry ID not assigned")
	}
	if entry.TS == "" {
		t.Error("entry timestamp not assigned")
	}
	if len(store.entries) != 1 {
		t.Fatalf("store entries = %d", len(store.entries))
	}
	if len(journal.entries) != 1 {
		t.Fatalf("journal entries = %d", len(journal.entries))
	}
}

func TestRecordSwallowsFailures(t *testing.T) {
	store := &memAuditStore{fail: errors.New("store down")}
	journal := &memJournal{fail: errors.New("journal down")}
	rec := New(store, journal, discardLogger())

	// must not panic or propagate anything
	rec.Record(context.Background(), &entity.AuditEntry{
		Actor:  "alice@example.org",
		Action: entity.AuditActionRegister,
		Result: "ok",
	})
}

func TestRecordWithoutJournal(t *testing.T) {
	store := &memAuditStore{}
	rec := New(store, nil, discardLogger())

	rec.Record(context.Background(), &entity.AuditEntry{
		Actor:  "bob@example.org",
		Action: entity.AuditActionRegister,
		Result: "user_exists",
	})
	if len(store.entries) != 1 {
		t.Fatalf("store entries = %d", len(store.entries))
	}
	if store.entries[0].Result != "user_exists" {
		t.Errorf("result = %q", store.entries[0].Result)
	}
}
