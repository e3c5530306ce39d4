// Package audit appends registration outcomes to the durable audit table and
// mirrors them to the optional journal. Recording is best-effort: a failed
// audit write is reported on the alert channel but never fails the operation
// that produced it.
package audit

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"mailgate/entity"
	"mailgate/lib/clock"
	"mailgate/lib/sl"
)

type Store interface {
	AppendAudit(ctx context.Context, e *entity.AuditEntry) error
}

type Journal interface {
	SaveAuditEntry(e *entity.AuditEntry) error
}

type Recorder struct {
	store   Store
	journal Journal
	log     *slog.Logger
}

func New(store Store, journal Journal, log *slog.Logger) *Recorder {
	return &Recorder{
		store:   store,
		journal: journal,
		log:     log.With(sl.Module("audit")),
	}
}

// Record appends one entry. The ID and timestamp are assigned here so
// callers only describe the outcome.
func (r *Recorder) Record(ctx context.Context, e *entity.AuditEntry) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.TS == "" {
		e.TS = clock.Now()
	}

	log := r.log.With(
		slog.String("actor", e.Actor),
		slog.String("action", e.Action),
		slog.String("result", e.Result),
	)

	if err := r.store.AppendAudit(ctx, e); err != nil {
		log.Error("append audit entry", sl.Err(err))
	}
	if r.journal != nil {
		if err := r.journal.SaveAuditEntry(e); err != nil {
			log.Error("mirror audit entry", sl.Err(err))
		}
	}
}
