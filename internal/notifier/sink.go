package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mwaiseghegift/tg-utils-bot/internal/fileinfo"
	"github.com/mwaiseghegift/tg-utils-bot/internal/logctx"
	"github.com/mwaiseghegift/tg-utils-bot/internal/relay"
)

// ProgressSink logs transfer progress and pushes terminal outcomes to an
// optional Notifier. It is safe with a nil Notifier.
type ProgressSink struct {
	notifier Notifier
}

func NewProgressSink(n Notifier) *ProgressSink {
	return &ProgressSink{notifier: n}
}

func (ps *ProgressSink) OnProgress(ctx context.Context, snap *relay.Snapshot) {
	logger := logctx.LoggerFromContext(ctx)

	attrs := []any{
		"session_id", snap.SessionID,
		"owner_id", snap.OwnerID,
		"filename", snap.Filename,
		"transferred", humanize.Bytes(uint64(snap.BytesTransferred)),
		"speed", fmt.Sprintf("%s/s", humanize.Bytes(uint64(snap.Speed))),
	}

	if snap.SizeKnown() {
		attrs = append(attrs,
			"total", humanize.Bytes(uint64(snap.DeclaredSize)),
			"eta", snap.ETA.String(),
		)
	}

	logger.InfoContext(ctx, "transfer progress", attrs...)
}

func (ps *ProgressSink) OnTerminal(ctx context.Context, out *relay.Outcome) {
	logger := logctx.LoggerFromContext(ctx)

	if ps.notifier == nil {
		return
	}

	if err := ps.notifier.Notify(ctx, terminalMessage(out)); err != nil {
		logger.WarnContext(ctx, "failed to deliver notification", "error", err)
	}
}

func terminalMessage(out *relay.Outcome) string {
	switch out.State {
	case relay.StateCompleted:
		return fmt.Sprintf("✅ %s (%s) delivered for %s in %s",
			out.Filename, fileinfo.FormatSize(out.BytesTransferred), out.OwnerID, out.Elapsed.Round(time.Second))
	case relay.StateCancelled:
		return fmt.Sprintf("🚫 transfer of %s cancelled by %s after %s",
			out.Filename, out.OwnerID, fileinfo.FormatSize(out.BytesTransferred))
	case relay.StateRejected:
		return fmt.Sprintf("⛔ transfer for %s rejected: %s", out.OwnerID, out.Reason)
	default:
		return fmt.Sprintf("❌ transfer of %s for %s failed: %s", out.Filename, out.OwnerID, out.Reason)
	}
}
