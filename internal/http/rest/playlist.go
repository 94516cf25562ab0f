package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/italolelis/playlist_archiver/internal/archiver"
	"github.com/italolelis/playlist_archiver/internal/logctx"
	"github.com/italolelis/playlist_archiver/internal/playlist"
	"github.com/italolelis/playlist_archiver/internal/session"
)

// ReferenceParam is the query parameter carrying the playlist reference.
const ReferenceParam = "url"

type SessionGate interface {
	IsReady(ctx context.Context) bool
	BeginAuthorization(ctx context.Context) (string, error)
	CompleteAuthorization(ctx context.Context, code string) error
	Logout(ctx context.Context) error
	State() session.State
}

type JobRunner interface {
	Run(ctx context.Context, reference string) (*archiver.Archive, error)
}

type ArchiveDeliverer interface {
	Deliver(ctx context.Context, w http.ResponseWriter, archive *archiver.Archive) error
}

type authRequiredResponse struct {
	URL string `json:"url"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status  string `json:"status"`
	Session string `json:"session"`
}

type PlaylistHandler struct {
	gate       SessionGate
	runner     JobRunner
	deliverer  ArchiveDeliverer
	clientHost string
}

// NewPlaylistHandler creates the handler for the download and login endpoints.
// clientHost is where the browser lands after a successful login.
func NewPlaylistHandler(gate SessionGate, runner JobRunner, deliverer ArchiveDeliverer, clientHost string) *PlaylistHandler {
	return &PlaylistHandler{
		gate:       gate,
		runner:     runner,
		deliverer:  deliverer,
		clientHost: clientHost,
	}
}

func (h *PlaylistHandler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/playlist/mp3", h.HandleDownload)
	r.Get("/login/start", h.HandleLoginStart)
	r.Get("/login", h.HandleLoginCallback)
	r.Get("/logout", h.HandleLogout)
	r.Get("/healthz", h.HandleHealth)

	return r
}

// HandleDownload runs a full playlist job and streams the archive back.
func (h *PlaylistHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logctx.LoggerFromContext(ctx)

	if !h.gate.IsReady(ctx) {
		h.requireLogin(w, r)

		return
	}

	reference := r.URL.Query().Get(ReferenceParam)
	if reference == "" {
		writeJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: "missing url query parameter"})

		return
	}

	archive, err := h.runner.Run(ctx, reference)
	if err != nil {
		writeJSON(ctx, w, statusForError(err), errorResponse{Error: err.Error()})

		return
	}

	tw := &trackingWriter{ResponseWriter: w}

	if err := h.deliverer.Deliver(ctx, tw, archive); err != nil {
		logger.Error("failed to deliver archive", "archive", archive.UniqueName, "err", err)

		if !tw.wroteHeader {
			writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		}
	}
}

// HandleLoginStart redirects the browser to the provider consent page.
func (h *PlaylistHandler) HandleLoginStart(w http.ResponseWriter, r *http.Request) {
	url, err := h.gate.BeginAuthorization(r.Context())
	if err != nil {
		writeJSON(r.Context(), w, statusForError(err), errorResponse{Error: err.Error()})

		return
	}

	http.Redirect(w, r, url, http.StatusFound)
}

// HandleLoginCallback finishes the OAuth flow and sends the browser back to the client app.
func (h *PlaylistHandler) HandleLoginCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	code := r.URL.Query().Get("code")
	if code == "" {
		writeJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: "missing code query parameter"})

		return
	}

	if err := h.gate.CompleteAuthorization(ctx, code); err != nil {
		logctx.LoggerFromContext(ctx).Error("failed to complete authorization", "err", err)

		status := http.StatusBadGateway

		var cfgErr *playlist.ConfigurationError
		if errors.As(err, &cfgErr) {
			status = http.StatusInternalServerError
		}

		writeJSON(ctx, w, status, errorResponse{Error: err.Error()})

		return
	}

	http.Redirect(w, r, h.clientHost, http.StatusFound)
}

// HandleLogout forgets the provider session.
func (h *PlaylistHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.gate.Logout(r.Context()); err != nil {
		writeJSON(r.Context(), w, http.StatusInternalServerError, errorResponse{Error: err.Error()})

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleHealth reports liveness and the session state without probing the provider.
func (h *PlaylistHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, healthResponse{Status: "ok", Session: h.gate.State().String()})
}

func (h *PlaylistHandler) requireLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	url, err := h.gate.BeginAuthorization(ctx)
	if err != nil {
		logctx.LoggerFromContext(ctx).Error("failed to build consent url", "err", err)
		writeJSON(ctx, w, statusForError(err), errorResponse{Error: err.Error()})

		return
	}

	writeJSON(ctx, w, http.StatusUnauthorized, authRequiredResponse{URL: url})
}

// statusForError maps job errors to HTTP status codes.
func statusForError(err error) int {
	var (
		invalidErr     *playlist.InvalidReferenceError
		unsupportedErr *playlist.UnsupportedPlaylistKindError
		notFoundErr    *playlist.NotFoundError
		yieldErr       *playlist.InsufficientYieldError
	)

	switch {
	case errors.As(err, &invalidErr):
		return http.StatusBadRequest
	case errors.As(err, &unsupportedErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &notFoundErr):
		return http.StatusNotFound
	case errors.As(err, &yieldErr):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled):
		// client went away; nobody reads this status
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		logctx.LoggerFromContext(ctx).Error("failed to encode response", "err", err)
	}
}

// trackingWriter records whether the response has started.
type trackingWriter struct {
	http.ResponseWriter
	wroteHeader bool
}

func (t *trackingWriter) WriteHeader(code int) {
	t.wroteHeader = true
	t.ResponseWriter.WriteHeader(code)
}

func (t *trackingWriter) Write(b []byte) (int, error) {
	t.wroteHeader = true

	return t.ResponseWriter.Write(b)
}

func (t *trackingWriter) Flush() {
	if f, ok := t.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
