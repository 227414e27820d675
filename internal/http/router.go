// Package http exposes the evaluation service over HTTP.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"speech-practice-evaluator/internal/app"
	"speech-practice-evaluator/internal/service/evaluation"
	"speech-practice-evaluator/internal/service/session"
)

// LearnerHeader carries the learner ID on evaluation uploads.
const LearnerHeader = "X-Learner-ID"

const defaultMaxUploadBytes = 10 << 20

// Evaluator is the part of evaluation.Service the router needs.
type Evaluator interface {
	Evaluate(ctx context.Context, learnerID, target string, audio []byte) (evaluation.Outcome, error)
	Lookup(sessionID string) (evaluation.Outcome, error)
}

type handler struct {
	app       *app.Application
	evaluator Evaluator
	maxUpload int64
}

// NewRouter constructs the HTTP router for the service.
func NewRouter(application *app.Application, evaluator Evaluator) http.Handler {
	h := &handler{
		app:       application,
		evaluator: evaluator,
		maxUpload: application.Cfg.Session.MaxUploadBytes,
	}
	if h.maxUpload <= 0 {
		h.maxUpload = defaultMaxUploadBytes
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		if !application.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	r.Route("/v1/evaluations", func(r chi.Router) {
		r.Post("/", h.evaluate)
		r.Get("/{sessionID}", h.result)
		r.Get("/{sessionID}/transcript", h.transcript)
		r.Get("/{sessionID}/recording", h.recording)
	})

	return r
}

func (h *handler) evaluate(w http.ResponseWriter, r *http.Request) {
	learnerID := r.Header.Get(LearnerHeader)
	target := r.URL.Query().Get("target")

	audio, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxUpload))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, err)
			return
		}
		writeError(w, http.StatusBadRequest, err)
		return
	}

	out, err := h.evaluator.Evaluate(r.Context(), learnerID, target, audio)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.app.Logger.Error().Err(err).
				Str("learnerId", learnerID).
				Str("requestId", middleware.GetReqID(r.Context())).
				Msg("Evaluation failed")
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, out.Result)
}

func (h *handler) result(w http.ResponseWriter, r *http.Request) {
	out, ok := h.lookup(w, r)
	if ok {
		writeJSON(w, http.StatusOK, out.Result)
	}
}

func (h *handler) transcript(w http.ResponseWriter, r *http.Request) {
	out, ok := h.lookup(w, r)
	if ok {
		writeJSON(w, http.StatusOK, out.Transcript)
	}
}

func (h *handler) recording(w http.ResponseWriter, r *http.Request) {
	out, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if len(out.Recording) == 0 {
		writeError(w, http.StatusNotFound, errors.New("no recording for session"))
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out.Recording)
}

func (h *handler) lookup(w http.ResponseWriter, r *http.Request) (evaluation.Outcome, bool) {
	out, err := h.evaluator.Lookup(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return evaluation.Outcome{}, false
	}
	return out, true
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrAlreadyRecording):
		return http.StatusConflict
	case errors.Is(err, evaluation.ErrInvalidAudio),
		errors.Is(err, evaluation.ErrEmptyTarget),
		errors.Is(err, evaluation.ErrMissingLearner):
		return http.StatusBadRequest
	case errors.Is(err, evaluation.ErrCaptureUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, evaluation.ErrUnknownSession):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
