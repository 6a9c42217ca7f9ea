package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/merchly-ai/attest/internal/model"
	"github.com/merchly-ai/attest/internal/progress"
)

const keepaliveInterval = 15 * time.Second

// HandleGenerateTestsStream handles POST /v1/tests/generate/stream (SSE).
// The pipeline runs detached from the request context: a client disconnect
// stops the stream but never aborts the generation.
func (h *Handlers) HandleGenerateTestsStream(w http.ResponseWriter, r *http.Request) {
	var req model.StreamRequest[model.TestGenerationRequest]
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := model.ValidateTestGenerationRequest(req.Request); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	req.Request.CallerID = callerID(r.Context())

	h.runStream(w, r, req.CorrelationID, "test_generation", func(ctx context.Context, id uuid.UUID) error {
		_, err := h.testGen.Generate(ctx, req.Request, id)
		return err
	})
}

// HandleValidateRuleStream handles POST /v1/rules/validate/stream (SSE).
func (h *Handlers) HandleValidateRuleStream(w http.ResponseWriter, r *http.Request) {
	var req model.StreamRequest[model.RuleValidationRequest]
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := model.ValidateRuleValidationRequest(req.Request); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	req.Request.CallerID = callerID(r.Context())

	h.runStream(w, r, req.CorrelationID, "rule_validation", func(ctx context.Context, id uuid.UUID) error {
		_, err := h.ruleSvc.Validate(ctx, req.Request, id)
		return err
	})
}

// runStream starts a pipeline in the background and streams its progress
// events over SSE until a terminal event arrives or the client disconnects.
func (h *Handlers) runStream(w http.ResponseWriter, r *http.Request, id uuid.UUID, kind string, run func(ctx context.Context, id uuid.UUID) error) {
	if id == uuid.Nil {
		id = uuid.New()
	}

	// Register the session before spawning so the subscription below
	// replays from the Started event. Start is idempotent, so the pipeline
	// calling it again is a no-op.
	h.hub.Start(id)
	events, cancel := h.hub.Subscribe(id)
	defer cancel()

	// The pipeline and its bookkeeping outlive the request.
	bg := context.WithoutCancel(r.Context())

	sessionID, err := h.db.OpenProgressSession(bg, id, callerID(r.Context()), kind)
	if err != nil {
		h.logger.Warn("open progress session", "error", err, "correlation_id", id)
	}

	go func() {
		terminal := "completed"
		if runErr := run(bg, id); runErr != nil {
			terminal = "failed"
		}
		if sessionID != 0 {
			if closeErr := h.db.CloseProgressSession(bg, sessionID, terminal); closeErr != nil {
				h.logger.Warn("close progress session", "error", closeErr, "correlation_id", id)
			}
		}
	}()

	h.streamEvents(w, r, events)
}

// HandleSubscribe handles GET /v1/subscribe?correlation_id=<uuid> (SSE).
// Re-attaches to an in-flight or recently finished session; the full event
// history is replayed before live events.
func (h *Handlers) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	idStr := r.URL.Query().Get("correlation_id")
	if idStr == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "correlation_id is required")
		return
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid correlation_id: "+idStr)
		return
	}
	if !h.hub.Known(id) {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "unknown correlation_id: "+idStr)
		return
	}

	events, cancel := h.hub.Subscribe(id)
	defer cancel()

	h.streamEvents(w, r, events)
}

// streamEvents writes progress events as SSE until the channel closes
// (terminal event delivered) or the client goes away.
func (h *Handlers) streamEvents(w http.ResponseWriter, r *http.Request, events <-chan progress.Event) {
	// The response controller reaches the underlying writer through the
	// middleware wrappers via Unwrap.
	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "streaming not supported")
		return
	}

	// Disable the server's WriteTimeout for this long-lived connection.
	// Without this, idle SSE connections are killed after WriteTimeout.
	_ = rc.SetWriteDeadline(time.Time{})

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-keepalive.C:
			if _, err := w.Write([]byte(":keepalive\n\n")); err != nil {
				return
			}
			_ = rc.Flush()
		case ev, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				h.logger.Error("marshal progress event", "error", err)
				continue
			}
			if _, err := w.Write(formatSSE(string(ev.Type), string(payload))); err != nil {
				return
			}
			_ = rc.Flush()
			if ev.Type.Terminal() {
				return
			}
		}
	}
}

// formatSSE formats a payload as a Server-Sent Events message.
func formatSSE(eventType, data string) []byte {
	// SSE format: "event: <type>\ndata: <payload>\n\n"
	return []byte("event: " + eventType + "\ndata: " + data + "\n\n")
}
