package webchat

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/go-go-golems/parley/pkg/auth"
)

// requestCeiling is the hard wall-clock budget for one chat request. The
// retry schedule inside the agent client fits under it by construction.
const requestCeiling = 60 * time.Second

// streamWriter writes caller-facing frames to the HTTP response. Streaming
// headers go out with the first frame, so pre-stream failures can still pick
// their own status code.
type streamWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

var _ FrameWriter = &streamWriter{}

func newStreamWriter(w http.ResponseWriter) *streamWriter {
	flusher, _ := w.(http.Flusher)
	return &streamWriter{w: w, flusher: flusher}
}

func (sw *streamWriter) WriteFrame(text string) error {
	if !sw.started {
		h := sw.w.Header()
		h.Set("Content-Type", "text/plain; charset=utf-8")
		h.Set("x-vercel-ai-data-stream", "v1")
		h.Set("Cache-Control", "no-cache")
		sw.w.WriteHeader(http.StatusOK)
		sw.started = true
	}
	frame, err := EncodeFrame(text)
	if err != nil {
		return err
	}
	if _, err := sw.w.Write(frame); err != nil {
		return errors.Wrap(err, "write response frame")
	}
	if sw.flusher != nil {
		sw.flusher.Flush()
	}
	return nil
}

// NewChatHandler serves the chat route: POST streams an answer, GET is a
// no-op, DELETE removes a conversation.
func NewChatHandler(svc *ChatService, logger zerolog.Logger) http.HandlerFunc {
	logger = logger.With().Str("component", "chat_handler").Logger()
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.WriteHeader(http.StatusNoContent)
		case http.MethodPost:
			handleChatPost(svc, logger, w, r)
		case http.MethodDelete:
			handleChatDelete(svc, logger, w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

func handleChatPost(svc *ChatService, logger zerolog.Logger, w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestCeiling)
	defer cancel()

	var body ChatRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeRequestError(w, badRequest("invalid request body"))
		return
	}

	sw := newStreamWriter(w)
	err := svc.HandleTurn(ctx, auth.SessionFromContext(r.Context()), body, sw)
	if err == nil {
		if !sw.started {
			// Backend closed without usable content; deliver an empty
			// 200 stream rather than an error after a successful call.
			_ = sw.WriteFrame("")
		}
		return
	}
	if sw.started {
		// Bytes are already out; the status cannot change.
		logger.Warn().Err(err).Str("conv_id", body.ID).Msg("chat turn failed mid-stream")
		return
	}
	logger.Warn().Err(err).Str("conv_id", body.ID).Msg("chat turn failed")
	writeRequestError(w, err)
}

func handleChatDelete(svc *ChatService, logger zerolog.Logger, w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		writeRequestError(w, badRequest("missing id query parameter"))
		return
	}
	session := auth.SessionFromContext(r.Context())
	if session == nil {
		writeRequestError(w, unauthorized())
		return
	}
	if err := svc.DeleteConversation(r.Context(), session, id); err != nil {
		logger.Warn().Err(err).Str("conv_id", id).Msg("conversation delete failed")
		writeRequestError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]bool{"success": true})
}

func writeRequestError(w http.ResponseWriter, err error) {
	var re *RequestError
	if !errors.As(err, &re) {
		re = internalError()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(re.Status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"code":    re.Code,
		"message": re.Msg,
	})
}
