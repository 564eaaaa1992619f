package sqlite

import (
	"context"
	"database/sql"

	"github.com/mwaiseghegift/tg-utils-bot/internal/storage"
)

// TransferRepository stores terminal transfer outcomes in SQLite.
type TransferRepository struct {
	db *sql.DB
}

func NewTransferRepository(dbConn *sql.DB) *TransferRepository {
	return &TransferRepository{db: dbConn}
}

func (r *TransferRepository) RecordTransfer(ctx context.Context, rec *storage.TransferRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO transfers (session_id, owner_id, url, filename, category, bytes, status, reason, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.OwnerID, rec.URL, rec.Filename, rec.Category,
		rec.Bytes, rec.Status, rec.Reason, rec.StartedAt, rec.FinishedAt,
	)

	return err
}

// GetTransfers returns the owner's most recent terminal outcomes.
func (r *TransferRepository) GetTransfers(ctx context.Context, ownerID string, limit int) ([]storage.TransferRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT session_id, owner_id, url, filename, category, bytes, status, reason, started_at, finished_at
		 FROM transfers WHERE owner_id = ? ORDER BY finished_at DESC LIMIT ?`,
		ownerID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []storage.TransferRecord

	for rows.Next() {
		var rec storage.TransferRecord

		var reason sql.NullString

		if err := rows.Scan(
			&rec.SessionID, &rec.OwnerID, &rec.URL, &rec.Filename, &rec.Category,
			&rec.Bytes, &rec.Status, &reason, &rec.StartedAt, &rec.FinishedAt,
		); err != nil {
			return nil, err
		}

		if reason.Valid {
			rec.Reason = reason.String
		}

		records = append(records, rec)
	}

	return records, rows.Err()
}
