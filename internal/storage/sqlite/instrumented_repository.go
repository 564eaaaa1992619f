package sqlite

import (
	"context"
	"database/sql"

	"github.com/mwaiseghegift/tg-utils-bot/internal/storage"
	"github.com/mwaiseghegift/tg-utils-bot/internal/telemetry"
)

// InstrumentedTransferRepository wraps TransferRepository with telemetry.
type InstrumentedTransferRepository struct {
	repo      *TransferRepository
	telemetry *telemetry.Telemetry
}

func NewInstrumentedTransferRepository(dbConn *sql.DB, tel *telemetry.Telemetry) *InstrumentedTransferRepository {
	return &InstrumentedTransferRepository{
		repo:      NewTransferRepository(dbConn),
		telemetry: tel,
	}
}

// RecordTransfer records a terminal outcome with telemetry.
func (r *InstrumentedTransferRepository) RecordTransfer(ctx context.Context, rec *storage.TransferRecord) error {
	return r.telemetry.InstrumentDBOperation(ctx, "record_transfer", func(ctx context.Context) error {
		return r.repo.RecordTransfer(ctx, rec)
	})
}

// GetTransfers retrieves the owner's history with telemetry.
func (r *InstrumentedTransferRepository) GetTransfers(ctx context.Context, ownerID string, limit int) ([]storage.TransferRecord, error) {
	var result []storage.TransferRecord

	var err error

	instrumentedErr := r.telemetry.InstrumentDBOperation(ctx, "get_transfers", func(ctx context.Context) error {
		result, err = r.repo.GetTransfers(ctx, ownerID, limit)

		return err
	})

	if instrumentedErr != nil {
		return nil, instrumentedErr
	}

	return result, nil
}
