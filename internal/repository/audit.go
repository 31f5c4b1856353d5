package repository

import (
	"context"
	"fmt"

	"github.com/ayo6706/wallet-ledger/internal/models"
)

const insertAuditLog = `
INSERT INTO audit_log (entity_type, entity_id, actor_id, action, prev_state, next_state, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

func (q *Queries) InsertAuditLog(ctx context.Context, entry models.AuditEntry) error {
	_, err := q.db.Exec(ctx, insertAuditLog,
		entry.EntityType, entry.EntityID, entry.ActorID, entry.Action,
		textOrNull(entry.PrevState), textOrNull(entry.NextState), jsonOrNull(entry.Metadata),
	)
	if err != nil {
		return fmt.Errorf("%w: insert audit log: %w", models.ErrStorage, err)
	}
	return nil
}

func textOrNull(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func jsonOrNull(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
