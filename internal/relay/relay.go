// Package relay implements the streaming relay core: it admits one transfer
// per owner, fetches the remote resource in bounded chunks into memory,
// reports progress, observes cooperative cancellation, and hands the
// completed buffer to an uploader. Content never touches disk.
package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/mwaiseghegift/tg-utils-bot/internal/fileinfo"
	"github.com/mwaiseghegift/tg-utils-bot/internal/logctx"
	"github.com/mwaiseghegift/tg-utils-bot/internal/probe"
	"github.com/mwaiseghegift/tg-utils-bot/internal/storage"
	"github.com/mwaiseghegift/tg-utils-bot/internal/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var urlPattern = regexp.MustCompile(`^https?://.+`)

// errCancelled is internal control flow for the streaming loop; cancellation
// is a terminal state, not an error surfaced to callers.
var errCancelled = errors.New("cancel requested")

// Prober learns a resource's size and type before the transfer commits.
type Prober interface {
	Probe(ctx context.Context, url string) (*probe.Result, error)
}

// Uploader receives the completed in-memory buffer.
type Uploader interface {
	Upload(ctx context.Context, req *UploadRequest) error
}

// UploadRequest carries a finished transfer to its destination.
type UploadRequest struct {
	Data     []byte
	Filename string
	Category fileinfo.Category
	Caption  string
}

// Sink receives progress and terminal notifications. Implementations belong
// to the presentation layer; the relay ignores anything that goes wrong in
// them, including panics.
type Sink interface {
	OnProgress(ctx context.Context, snap *Snapshot)
	OnTerminal(ctx context.Context, out *Outcome)
}

// Outcome describes a session that reached a terminal state.
type Outcome struct {
	*Snapshot

	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// ServiceConfig are the fixed transfer limits, set once at process start.
type ServiceConfig struct {
	MaxTransferSize  int64
	ChunkSize        int
	ProgressInterval time.Duration
	StreamTimeout    time.Duration
}

// Service owns the registry and runs one goroutine per admitted transfer.
type Service struct {
	cfg          ServiceConfig
	registry     *Registry
	prober       Prober
	uploader     Uploader
	sink         Sink
	repo         storage.TransferWriteRepository
	tel          *telemetry.Telemetry
	streamClient *http.Client
}

func NewService(
	cfg ServiceConfig,
	prober Prober,
	uploader Uploader,
	repo storage.TransferWriteRepository,
	sink Sink,
	tel *telemetry.Telemetry,
) *Service {
	return &Service{
		cfg:      cfg,
		registry: NewRegistry(),
		prober:   prober,
		uploader: uploader,
		repo:     repo,
		sink:     sink,
		tel:      tel,
		streamClient: &http.Client{
			Timeout:   cfg.StreamTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Registry exposes the session registry for status lookups.
func (svc *Service) Registry() *Registry {
	return svc.registry
}

// Submit validates the URL, admits the owner and starts the transfer loop.
// It returns the session handle immediately; progress is delivered through
// the sink and via Status.
func (svc *Service) Submit(ctx context.Context, ownerID, url string) (*Session, error) {
	if !urlPattern.MatchString(url) {
		return nil, &InvalidInputError{URL: url, Reason: "url must start with http:// or https://"}
	}

	s := newSession(uuid.New().String(), ownerID, url)

	if !svc.registry.Admit(ownerID, s) {
		return nil, &AlreadyActiveError{OwnerID: ownerID}
	}

	logger := logctx.LoggerFromContext(ctx).With("session_id", s.ID, "owner_id", ownerID)
	logger.Info("transfer admitted", "url", url)

	go svc.run(logctx.WithLogger(context.WithoutCancel(ctx), logger), s)

	return s, nil
}

// Cancel flags the owner's active session for cooperative cancellation.
// Requesters may only cancel their own transfers.
func (svc *Service) Cancel(ownerID, requesterID string) error {
	return svc.registry.RequestCancel(ownerID, requesterID)
}

// Status returns the current snapshot for the owner's active session.
func (svc *Service) Status(ownerID string) (*Snapshot, bool) {
	s, ok := svc.registry.Get(ownerID)
	if !ok {
		return nil, false
	}

	return s.Snapshot(), true
}

// run drives the session through its states. Every path out of here releases
// the registry entry exactly once and notifies the sink.
func (svc *Service) run(ctx context.Context, s *Session) {
	logger := logctx.LoggerFromContext(ctx)

	svc.tel.IncrementActiveTransfers()

	state, runErr := svc.execute(ctx, s)

	reason := describeOutcome(state, runErr)
	s.finish(state, reason)
	svc.registry.Release(s.OwnerID)
	svc.tel.DecrementActiveTransfers()

	snap := s.Snapshot()
	out := &Outcome{
		Snapshot:   snap,
		Err:        runErr,
		StartedAt:  s.startedAt,
		FinishedAt: time.Now(),
	}

	svc.tel.RecordTransfer(state.String(), out.FinishedAt.Sub(out.StartedAt))
	svc.tel.RecordTransferBytes(snap.BytesTransferred)

	if runErr != nil {
		logger.Error("transfer finished", "state", state.String(), "bytes", snap.BytesTransferred, "err", runErr)
	} else {
		logger.Info("transfer finished",
			"state", state.String(),
			"bytes", humanize.Bytes(uint64(snap.BytesTransferred)),
			"duration", out.FinishedAt.Sub(out.StartedAt).String(),
		)
	}

	svc.recordOutcome(ctx, out)
	svc.emitTerminal(ctx, out)
}

// execute runs the non-terminal states and reports which terminal state was
// reached. The buffer is discarded on every path except a successful upload.
func (svc *Service) execute(ctx context.Context, s *Session) (State, error) {
	logger := logctx.LoggerFromContext(ctx)

	// Probing
	s.setState(StateProbing)

	result, err := svc.prober.Probe(ctx, s.URL)
	if err != nil {
		return StateFailed, &ProbeError{URL: s.URL, Err: err}
	}

	filename := fileinfo.ResolveFilename(result.ResolvedURL)
	category := fileinfo.Classify(filename, result.ContentType)
	s.setMetadata(filename, category, result.Size)

	logger.Info("resolved file metadata",
		"filename", filename,
		"category", category.String(),
		"declared_size", result.Size,
		"content_type", result.ContentType,
	)

	// SizeCheck
	s.setState(StateSizeCheck)

	if result.SizeKnown() && result.Size > svc.cfg.MaxTransferSize {
		return StateRejected, &SizeLimitError{DeclaredSize: result.Size, Limit: svc.cfg.MaxTransferSize}
	}

	// Streaming
	s.setState(StateStreaming)

	buf, err := svc.stream(ctx, s, result.ResolvedURL)
	if err != nil {
		if errors.Is(err, errCancelled) {
			return StateCancelled, nil
		}

		return StateFailed, err
	}

	// Uploading
	s.setState(StateUploading)

	caption := fmt.Sprintf("%s (%s)", filename, fileinfo.FormatSize(int64(buf.Len())))

	if err := svc.uploader.Upload(ctx, &UploadRequest{
		Data:     buf.Bytes(),
		Filename: filename,
		Category: category,
		Caption:  caption,
	}); err != nil {
		return StateFailed, &NetworkError{Operation: "upload", Err: err}
	}

	return StateCompleted, nil
}

// stream reads the body in fixed-size chunks into memory, checking the cancel
// flag before and after appending each chunk. An empty body is a valid
// completed transfer.
func (svc *Service) stream(ctx context.Context, s *Session, url string) (*bytes.Buffer, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &NetworkError{Operation: "stream", Err: err}
	}

	resp, err := svc.streamClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Operation: "stream", Err: err}
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)

		return nil, &NetworkError{Operation: "stream", StatusCode: resp.StatusCode}
	}

	var buf bytes.Buffer

	chunk := make([]byte, svc.cfg.ChunkSize)

	for {
		n, readErr := resp.Body.Read(chunk)

		if n > 0 {
			if s.cancelRequested() {
				return nil, errCancelled
			}

			buf.Write(chunk[:n])
			s.addBytes(n)

			if s.cancelRequested() {
				return nil, errCancelled
			}

			if s.shouldEmitProgress(svc.cfg.ProgressInterval) {
				svc.emitProgress(ctx, s.Snapshot())
			}
		}

		if readErr == io.EOF {
			break
		}

		if readErr != nil {
			return nil, &NetworkError{Operation: "stream", Err: readErr}
		}
	}

	if s.cancelRequested() {
		return nil, errCancelled
	}

	// Final snapshot regardless of pacing, so the caller sees 100%.
	svc.emitProgress(ctx, s.Snapshot())

	return &buf, nil
}

// emitProgress notifies the sink, swallowing anything it throws back. A
// presentation failure must never abort the transfer.
func (svc *Service) emitProgress(ctx context.Context, snap *Snapshot) {
	if svc.sink == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			logctx.LoggerFromContext(ctx).Warn("progress sink panicked", "panic", r)
		}
	}()

	svc.sink.OnProgress(ctx, snap)
}

func (svc *Service) emitTerminal(ctx context.Context, out *Outcome) {
	if svc.sink == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			logctx.LoggerFromContext(ctx).Warn("terminal sink panicked", "panic", r)
		}
	}()

	svc.sink.OnTerminal(ctx, out)
}

func (svc *Service) recordOutcome(ctx context.Context, out *Outcome) {
	if svc.repo == nil {
		return
	}

	rec := &storage.TransferRecord{
		SessionID:  out.SessionID,
		OwnerID:    out.OwnerID,
		URL:        out.URL,
		Filename:   out.Filename,
		Category:   out.Category.String(),
		Bytes:      out.BytesTransferred,
		Status:     out.State.String(),
		Reason:     out.Reason,
		StartedAt:  out.StartedAt.Format(time.RFC3339),
		FinishedAt: out.FinishedAt.Format(time.RFC3339),
	}

	if err := svc.repo.RecordTransfer(ctx, rec); err != nil {
		logctx.LoggerFromContext(ctx).Error("failed to record transfer outcome", "err", err)
	}
}

func describeOutcome(state State, err error) string {
	switch state {
	case StateCompleted:
		return "transfer completed"
	case StateCancelled:
		return "cancelled by owner"
	case StateRejected:
		var sizeErr *SizeLimitError
		if errors.As(err, &sizeErr) {
			return fmt.Sprintf("file too large: %s exceeds the %s limit",
				fileinfo.FormatSize(sizeErr.DeclaredSize), fileinfo.FormatSize(sizeErr.Limit))
		}

		return "rejected"
	default:
		if err != nil {
			return err.Error()
		}

		return "failed"
	}
}
