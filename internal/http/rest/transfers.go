package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mwaiseghegift/tg-utils-bot/internal/fileinfo"
	"github.com/mwaiseghegift/tg-utils-bot/internal/logctx"
	"github.com/mwaiseghegift/tg-utils-bot/internal/probe"
	"github.com/mwaiseghegift/tg-utils-bot/internal/relay"
	"github.com/mwaiseghegift/tg-utils-bot/internal/storage"
	"github.com/mwaiseghegift/tg-utils-bot/internal/telemetry"
)

const (
	requesterHeader     = "X-Requester-ID"
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

type submitRequest struct {
	OwnerID string `json:"owner_id"`
	URL     string `json:"url"`
}

type transferResponse struct {
	SessionID        string  `json:"session_id"`
	OwnerID          string  `json:"owner_id"`
	URL              string  `json:"url"`
	Filename         string  `json:"filename,omitempty"`
	Category         string  `json:"category,omitempty"`
	State            string  `json:"state"`
	DeclaredSize     *int64  `json:"declared_size,omitempty"`
	BytesTransferred int64   `json:"bytes_transferred"`
	Speed            float64 `json:"speed_bps"`
	ETASeconds       *int64  `json:"eta_seconds,omitempty"`
	ElapsedSeconds   float64 `json:"elapsed_seconds"`
	Reason           string  `json:"reason,omitempty"`
}

type inspectResponse struct {
	ResolvedURL string `json:"resolved_url"`
	Filename    string `json:"filename"`
	Category    string `json:"category"`
	Size        *int64 `json:"size,omitempty"`
	SizeHuman   string `json:"size_human,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// TransferHandler exposes the relay over HTTP.
type TransferHandler struct {
	username  string
	password  string
	svc       *relay.Service
	prober    *probe.Client
	history   storage.TransferReadRepository
	telemetry *telemetry.Telemetry
}

// NewTransferHandler creates a new transfer handler.
func NewTransferHandler(username, password string, svc *relay.Service, prober *probe.Client, history storage.TransferReadRepository, t *telemetry.Telemetry) *TransferHandler {
	return &TransferHandler{
		username:  username,
		password:  password,
		svc:       svc,
		prober:    prober,
		history:   history,
		telemetry: t,
	}
}

func (h *TransferHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(h.basicAuthMiddleware)

	r.Post("/transfers", h.HandleSubmit)
	r.Get("/transfers/{ownerID}", h.HandleStatus)
	r.Delete("/transfers/{ownerID}", h.HandleCancel)
	r.Get("/transfers/{ownerID}/history", h.HandleHistory)
	r.Get("/inspect", h.HandleInspect)

	return r
}

// HandleSubmit starts a transfer for the owner in the request body.
func (h *TransferHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")

		return
	}

	if req.OwnerID == "" {
		writeError(w, http.StatusBadRequest, "owner_id is required")

		return
	}

	session, err := h.svc.Submit(r.Context(), req.OwnerID, req.URL)
	if err != nil {
		logger.Warn("submit rejected", "owner_id", req.OwnerID, "err", err)
		writeRelayError(w, err)

		return
	}

	writeJSON(w, http.StatusAccepted, snapshotResponse(session.Snapshot()))
}

// HandleStatus returns the live snapshot of the owner's active transfer.
func (h *TransferHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerID")

	snap, ok := h.svc.Status(ownerID)
	if !ok {
		writeError(w, http.StatusNotFound, "no active transfer for owner")

		return
	}

	writeJSON(w, http.StatusOK, snapshotResponse(snap))
}

// HandleCancel requests cancellation of the owner's active transfer. The
// requester is taken from the X-Requester-ID header and must match the owner.
func (h *TransferHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	ownerID := chi.URLParam(r, "ownerID")

	requesterID := r.Header.Get(requesterHeader)
	if requesterID == "" {
		requesterID = ownerID
	}

	if err := h.svc.Cancel(ownerID, requesterID); err != nil {
		logger.Warn("cancel denied", "owner_id", ownerID, "requester_id", requesterID, "err", err)
		writeRelayError(w, err)

		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancellation requested"})
}

// HandleHistory lists recently finished transfers for the owner.
func (h *TransferHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	ownerID := chi.URLParam(r, "ownerID")

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")

			return
		}

		limit = min(parsed, maxHistoryLimit)
	}

	records, err := h.history.GetTransfers(r.Context(), ownerID, limit)
	if err != nil {
		logger.Error("failed to load transfer history", "owner_id", ownerID, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load history")

		return
	}

	if records == nil {
		records = []storage.TransferRecord{}
	}

	writeJSON(w, http.StatusOK, records)
}

// HandleInspect probes a URL without starting a transfer.
func (h *TransferHandler) HandleInspect(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	url := r.URL.Query().Get("url")
	if url == "" {
		writeError(w, http.StatusBadRequest, "url query parameter is required")

		return
	}

	result, err := h.prober.Probe(r.Context(), url)
	if err != nil {
		logger.Warn("inspect probe failed", "url", url, "err", err)
		writeError(w, http.StatusBadGateway, "unable to inspect url")

		return
	}

	filename := fileinfo.ResolveFilename(result.ResolvedURL)

	resp := inspectResponse{
		ResolvedURL: result.ResolvedURL,
		Filename:    filename,
		Category:    fileinfo.Classify(filename, result.ContentType).String(),
		ContentType: result.ContentType,
	}

	if result.SizeKnown() {
		size := result.Size
		resp.Size = &size
		resp.SizeHuman = fileinfo.FormatSize(size)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *TransferHandler) basicAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok {
			http.Error(w, "invalid authorization format", http.StatusUnauthorized)

			return
		}

		if username != h.username || password != h.password {
			http.Error(w, "invalid username or password", http.StatusUnauthorized)

			return
		}

		next.ServeHTTP(w, r)
	})
}

func snapshotResponse(snap *relay.Snapshot) transferResponse {
	resp := transferResponse{
		SessionID:        snap.SessionID,
		OwnerID:          snap.OwnerID,
		URL:              snap.URL,
		Filename:         snap.Filename,
		State:            snap.State.String(),
		BytesTransferred: snap.BytesTransferred,
		Speed:            snap.Speed,
		ElapsedSeconds:   snap.Elapsed.Seconds(),
		Reason:           snap.Reason,
	}

	if snap.Filename != "" {
		resp.Category = snap.Category.String()
	}

	if snap.SizeKnown() {
		size := snap.DeclaredSize
		resp.DeclaredSize = &size

		if snap.ETA > 0 {
			eta := int64(snap.ETA / time.Second)
			resp.ETASeconds = &eta
		}
	}

	return resp
}

func writeRelayError(w http.ResponseWriter, err error) {
	var (
		invalidInput *relay.InvalidInputError
		active       *relay.AlreadyActiveError
		denied       *relay.CancelDeniedError
	)

	switch {
	case errors.As(err, &invalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &active):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &denied):
		if denied.Reason == relay.CancelDeniedUnauthorized {
			writeError(w, http.StatusForbidden, err.Error())
		} else {
			writeError(w, http.StatusNotFound, err.Error())
		}
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
