package service

import (
	"context"
	"fmt"
	"time"

	"kasirledger/internal/domain"
	"kasirledger/internal/store"
	"kasirledger/internal/xid"
)

type AuditEntry struct {
	Action     string
	ActorID    string
	OutletID   string
	EntityType string
	EntityID   string
	Details    map[string]any
	At         time.Time
}

// AuditWriter appends audit rows inside the caller's transaction. A write
// error is returned to the caller and must abort the enclosing transaction.
type AuditWriter struct {
	now func() time.Time
}

func NewAuditWriter(now func() time.Time) *AuditWriter {
	return &AuditWriter{now: now}
}

func (w *AuditWriter) Write(ctx context.Context, tx store.Tx, entry AuditEntry) error {
	if entry.Action == "" || entry.EntityType == "" || entry.EntityID == "" {
		return fmt.Errorf("%w: audit action and entity required", store.ErrInvalidTransaction)
	}
	at := entry.At
	if at.IsZero() {
		at = w.now()
	}
	actorID := entry.ActorID
	if actorID == "" {
		actorID = "system"
	}
	details := entry.Details
	if details == nil {
		details = map[string]any{}
	}

	err := tx.CreateAuditLog(ctx, domain.AuditLog{
		ID:         xid.New("audit"),
		Action:     entry.Action,
		ActorID:    actorID,
		OutletID:   entry.OutletID,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Details:    details,
		CreatedAt:  at.UTC(),
	})
	if err != nil {
		return fmt.Errorf("write audit %s %s/%s: %w", entry.Action, entry.EntityType, entry.EntityID, err)
	}
	return nil
}
