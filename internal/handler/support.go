package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/tunnelkit/support/internal/support"
)

type sessionRegistry interface {
	Create() (string, *support.Workflow)
	Get(id string) (*support.Workflow, error)
	Discard(id string) error
}

type bundleOpener interface {
	Open(h support.Handle) (io.ReadCloser, error)
}

// SupportHandler exposes problem-report sessions over JSON.
type SupportHandler struct {
	BaseHandler
	sessions sessionRegistry
	bundles  bundleOpener
}

func NewSupportHandler(logger *slog.Logger, sessions sessionRegistry, bundles bundleOpener) *SupportHandler {
	return &SupportHandler{BaseHandler: BaseHandler{Logger: logger}, sessions: sessions, bundles: bundles}
}

// Create starts a new session with an empty draft.
func (h *SupportHandler) Create(w http.ResponseWriter, r *http.Request) {
	id, wf := h.sessions.Create()
	h.Logger.Info("support: session created", "session", id)

	headers := http.Header{}
	headers.Set("Location", "/api/support/sessions/"+id)
	err := h.writeJSON(w, http.StatusCreated, envelope{"id": id, "session": wf.Snapshot()}, headers)
	if err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

// Get returns the session state and draft.
func (h *SupportHandler) Get(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.workflow(w, r)
	if !ok {
		return
	}
	h.respond(w, r, http.StatusOK, wf)
}

// UpdateDraft replaces the fields present in the body. Edits are accepted in
// every state; they only affect the next submission.
func (h *SupportHandler) UpdateDraft(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.workflow(w, r)
	if !ok {
		return
	}

	var input struct {
		Email   *string `json:"email"`
		Message *string `json:"message"`
	}
	if err := h.readJSON(w, r, &input); err != nil {
		h.badRequestResponse(w, r, err)
		return
	}

	if input.Email != nil {
		wf.SetEmail(*input.Email)
	}
	if input.Message != nil {
		wf.SetMessage(*input.Message)
	}
	h.respond(w, r, http.StatusOK, wf)
}

// Submit starts sending the draft. The response reflects the LOADING state;
// clients poll Get for the outcome.
func (h *SupportHandler) Submit(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.workflow(w, r)
	if !ok {
		return
	}
	h.startAttempt(w, r, wf, wf.TrySubmit)
}

// Retry re-sends a failed report with the same draft.
func (h *SupportHandler) Retry(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.workflow(w, r)
	if !ok {
		return
	}
	h.startAttempt(w, r, wf, wf.TryRetry)
}

// Edit returns a failed session to editing.
func (h *SupportHandler) Edit(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.workflow(w, r)
	if !ok {
		return
	}
	if !wf.EditAgain() {
		h.conflictResponse(w, r, fmt.Sprintf("cannot edit a report in state %s", wf.State()))
		return
	}
	h.respond(w, r, http.StatusOK, wf)
}

// ViewLog collects the log bundle if needed and returns its name.
func (h *SupportHandler) ViewLog(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.workflow(w, r)
	if !ok {
		return
	}

	handle, err := wf.ViewLog(r.Context())
	if err != nil {
		h.serverErrorResponse(w, r, fmt.Errorf("view log: %w", err))
		return
	}
	if err := h.writeJSON(w, http.StatusOK, envelope{"handle": filepath.Base(string(handle))}, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

// DownloadLog streams the session's log bundle as a zip file.
func (h *SupportHandler) DownloadLog(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.workflow(w, r)
	if !ok {
		return
	}

	handle, err := wf.ViewLog(r.Context())
	if err != nil {
		h.serverErrorResponse(w, r, fmt.Errorf("view log: %w", err))
		return
	}
	rc, err := h.bundles.Open(handle)
	if err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(string(handle))))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logError(r, fmt.Errorf("stream bundle: %w", err))
	}
}

// Delete discards the session. An attempt in flight still finishes.
func (h *SupportHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.sessions.Discard(id); err != nil {
		if errors.Is(err, support.ErrSessionNotFound) {
			h.notFoundResponse(w, r, "session not found")
			return
		}
		h.serverErrorResponse(w, r, err)
		return
	}
	h.Logger.Info("support: session discarded", "session", id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *SupportHandler) startAttempt(w http.ResponseWriter, r *http.Request, wf *support.Workflow, start func(context.Context) (<-chan support.State, error)) {
	if _, err := start(r.Context()); err != nil {
		switch {
		case errors.Is(err, support.ErrInvalidDraft):
			h.unprocessableResponse(w, r, err.Error())
		case errors.Is(err, support.ErrNotAccepted):
			h.conflictResponse(w, r, fmt.Sprintf("cannot send a report in state %s", wf.State()))
		default:
			h.serverErrorResponse(w, r, err)
		}
		return
	}
	h.respond(w, r, http.StatusAccepted, wf)
}

func (h *SupportHandler) workflow(w http.ResponseWriter, r *http.Request) (*support.Workflow, bool) {
	wf, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, support.ErrSessionNotFound) {
			h.notFoundResponse(w, r, "session not found")
			return nil, false
		}
		h.serverErrorResponse(w, r, err)
		return nil, false
	}
	return wf, true
}

func (h *SupportHandler) respond(w http.ResponseWriter, r *http.Request, status int, wf *support.Workflow) {
	if err := h.writeJSON(w, status, wf.Snapshot(), nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}
