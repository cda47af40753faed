package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/guregu/null/v5"
)

// CheckHistorical is one accepted check result as kept in check_historical.
type CheckHistorical struct {
	MonitorID     string      `db:"monitor_id" json:"monitor_id"`
	WorkspaceID   string      `db:"workspace_id" json:"workspace_id"`
	Region        string      `db:"region" json:"region"`
	Status        string      `db:"status" json:"status"`
	StatusCode    null.Int    `db:"status_code" json:"status_code"`
	Message       null.String `db:"message" json:"message"`
	Url           string      `db:"url" json:"url"`
	Method        string      `db:"method" json:"method"`
	CronTimestamp int64       `db:"cron_timestamp" json:"cron_timestamp"`
	Exhausted     bool        `db:"exhausted" json:"exhausted"`
	CreatedAt     time.Time   `db:"created_at" json:"created_at"`
}

func checkHistoricalFromResult(result CheckResult) CheckHistorical {
	return CheckHistorical{
		MonitorID:     result.MonitorID,
		WorkspaceID:   result.WorkspaceID,
		Region:        result.Region,
		Status:        string(result.Status),
		StatusCode:    result.StatusCode,
		Message:       result.Message,
		Url:           result.Url,
		Method:        result.Method,
		CronTimestamp: result.CronTimestamp,
		Exhausted:     result.Exhausted,
		CreatedAt:     result.CheckedAt(),
	}
}

func insertCheckHistorical(ctx context.Context, db *sql.DB, entry CheckHistorical) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("getting db connection: %w", err)
	}
	defer conn.Close()

	_, err = conn.ExecContext(ctx, `
		INSERT INTO
			check_historical
			(
				monitor_id,
				workspace_id,
				region,
				status,
				status_code,
				message,
				url,
				method,
				cron_timestamp,
				exhausted,
				created_at
			)
		VALUES
			(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.MonitorID,
		entry.WorkspaceID,
		entry.Region,
		entry.Status,
		entry.StatusCode,
		entry.Message,
		entry.Url,
		entry.Method,
		entry.CronTimestamp,
		entry.Exhausted,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting check historical: %w", err)
	}

	return nil
}

// listCheckHistorical returns the results of a monitor recorded at or after
// since, newest first.
func listCheckHistorical(ctx context.Context, db *sql.DB, monitorID string, since time.Time) ([]CheckHistorical, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting db connection: %w", err)
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, `
		SELECT monitor_id, workspace_id, region, status, status_code, message, url, method, cron_timestamp, exhausted, created_at
		FROM check_historical
		WHERE monitor_id = ? AND created_at >= ?
		ORDER BY created_at DESC
	`, monitorID, since)
	if err != nil {
		return nil, fmt.Errorf("querying check historical: %w", err)
	}
	defer rows.Close()

	var results []CheckHistorical
	for rows.Next() {
		var ch CheckHistorical
		if err := rows.Scan(&ch.MonitorID, &ch.WorkspaceID, &ch.Region, &ch.Status, &ch.StatusCode, &ch.Message, &ch.Url, &ch.Method, &ch.CronTimestamp, &ch.Exhausted, &ch.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning check historical: %w", err)
		}
		results = append(results, ch)
	}

	return results, rows.Err()
}

// pruneCheckHistorical deletes every result recorded before cutoff and
// returns the number of deleted rows.
func pruneCheckHistorical(ctx context.Context, db *sql.DB, cutoff time.Time) (int64, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return 0, fmt.Errorf("getting db connection: %w", err)
	}
	defer conn.Close()

	res, err := conn.ExecContext(ctx, `DELETE FROM check_historical WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting check historical: %w", err)
	}

	return res.RowsAffected()
}
