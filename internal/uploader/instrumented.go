// Package uploader provides telemetry wrapping for upload destinations.
package uploader

import (
	"context"

	"github.com/mwaiseghegift/tg-utils-bot/internal/relay"
	"github.com/mwaiseghegift/tg-utils-bot/internal/telemetry"
)

// InstrumentedUploader wraps an Uploader with telemetry.
type InstrumentedUploader struct {
	uploader   relay.Uploader
	telemetry  *telemetry.Telemetry
	clientType string
}

func NewInstrumentedUploader(up relay.Uploader, tel *telemetry.Telemetry, clientType string) *InstrumentedUploader {
	return &InstrumentedUploader{
		uploader:   up,
		telemetry:  tel,
		clientType: clientType,
	}
}

// Upload delegates to the wrapped uploader with telemetry.
func (u *InstrumentedUploader) Upload(ctx context.Context, req *relay.UploadRequest) error {
	return u.telemetry.InstrumentClientOperation(ctx, u.clientType, "upload", func(ctx context.Context) error {
		return u.uploader.Upload(ctx, req)
	})
}
