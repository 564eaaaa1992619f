// Package storage defines the transfer history log. Only terminal outcomes
// are recorded; transferred content is never persisted.
package storage

import "context"

// TransferRecord is one terminal transfer outcome.
type TransferRecord struct {
	SessionID  string `json:"session_id"`
	OwnerID    string `json:"owner_id"`
	URL        string `json:"url"`
	Filename   string `json:"filename"`
	Category   string `json:"category"`
	Bytes      int64  `json:"bytes"`
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at"`
}

type TransferWriteRepository interface {
	RecordTransfer(ctx context.Context, rec *TransferRecord) error
}

type TransferReadRepository interface {
	GetTransfers(ctx context.Context, ownerID string, limit int) ([]TransferRecord, error)
}
