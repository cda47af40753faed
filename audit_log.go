package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/guregu/null/v5"
)

const AuditActionNotificationSent = "notification.sent"

type AuditEntry struct {
	ID        string            `json:"id"`
	TargetID  string            `json:"target_id"`
	Action    string            `json:"action"`
	Provider  null.String       `json:"provider"`
	ChannelID null.String       `json:"channel_id"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

func monitorAuditTarget(monitorID string) string {
	return "monitor:" + monitorID
}

// AuditLogger records side effects of the pipeline for compliance and
// debugging.
type AuditLogger interface {
	Publish(ctx context.Context, entry AuditEntry) error
}

type DatabaseAuditLog struct {
	db *sql.DB
}

func NewDatabaseAuditLog(db *sql.DB) *DatabaseAuditLog {
	return &DatabaseAuditLog{db: db}
}

func (a *DatabaseAuditLog) Publish(ctx context.Context, entry AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	var metadata null.String
	if len(entry.Metadata) > 0 {
		encoded, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling audit metadata: %w", err)
		}
		metadata = null.StringFrom(string(encoded))
	}

	conn, err := a.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("getting db connection: %w", err)
	}
	defer conn.Close()

	_, err = conn.ExecContext(ctx, `
		INSERT INTO audit_log (id, target_id, action, provider, channel_id, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.TargetID, entry.Action, entry.Provider, entry.ChannelID, metadata, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}

	return nil
}

// ListByTarget returns the entries of one target, oldest first.
func (a *DatabaseAuditLog) ListByTarget(ctx context.Context, targetID string) ([]AuditEntry, error) {
	conn, err := a.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting db connection: %w", err)
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, `
		SELECT id, target_id, action, provider, channel_id, metadata, created_at
		FROM audit_log
		WHERE target_id = ?
		ORDER BY created_at ASC
	`, targetID)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var entry AuditEntry
		var metadata null.String
		if err := rows.Scan(&entry.ID, &entry.TargetID, &entry.Action, &entry.Provider, &entry.ChannelID, &metadata, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		if metadata.Valid {
			if err := json.Unmarshal([]byte(metadata.String), &entry.Metadata); err != nil {
				return nil, fmt.Errorf("decoding audit metadata: %w", err)
			}
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}
