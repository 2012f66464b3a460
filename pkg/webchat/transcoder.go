// Package webchat is the HTTP chat surface: request types, the turn
// orchestrator, and the transcoder that rewrites agent SSE events into the
// caller-facing frame protocol.
package webchat

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/go-go-golems/parley/pkg/agent"
)

// FrameWriter receives the transcoded answer frames bound for the caller.
type FrameWriter interface {
	WriteFrame(text string) error
}

// FrameWriterFunc adapts a function to FrameWriter.
type FrameWriterFunc func(text string) error

func (f FrameWriterFunc) WriteFrame(text string) error { return f(text) }

// EncodeFrame renders one text frame in the caller-facing wire format: a
// `0:` prefix, the JSON-encoded string, and a trailing newline.
func EncodeFrame(text string) ([]byte, error) {
	encoded, err := json.Marshal(text)
	if err != nil {
		return nil, errors.Wrap(err, "encode frame")
	}
	frame := make([]byte, 0, len(encoded)+3)
	frame = append(frame, '0', ':')
	frame = append(frame, encoded...)
	frame = append(frame, '\n')
	return frame, nil
}

const (
	// diagnosticMarker flags internal agent payloads that must never reach
	// the caller.
	diagnosticMarker = "contextual_insights"
	minContentLen    = 10
)

// usableContent reports whether message content is a real answer rather than
// a diagnostic fragment or a trivially short placeholder.
func usableContent(content string) bool {
	if strings.Contains(content, diagnosticMarker) {
		return false
	}
	return len(strings.TrimSpace(content)) > minContentLen
}

// Transcoder consumes an agent SSE stream and forwards the answer to a
// FrameWriter. Reasoning, tool, and token events are dropped; only usable
// message content is emitted.
type Transcoder struct {
	logger zerolog.Logger
}

func NewTranscoder(logger zerolog.Logger) *Transcoder {
	return &Transcoder{logger: logger.With().Str("component", "transcoder").Logger()}
}

// Run reads the stream to completion and returns the final answer text. The
// first usable message is written to w as it arrives; later usable messages
// supersede it in the returned answer without being re-emitted. If the stream
// ends without an emitted frame but an answer was collected, it is flushed.
//
// Run always closes body.
func (t *Transcoder) Run(body io.ReadCloser, w FrameWriter) (string, error) {
	defer func() { _ = body.Close() }()

	reader := agent.NewSSEReader(body)
	var answer string
	emitted := false

	flush := func() error {
		if emitted || strings.TrimSpace(answer) == "" {
			return nil
		}
		if err := w.WriteFrame(answer); err != nil {
			return errors.Wrap(err, "write answer frame")
		}
		emitted = true
		return nil
	}

	for {
		data, err := reader.ReadData()
		if err != nil {
			if err == io.EOF {
				return answer, flush()
			}
			if ferr := flush(); ferr != nil {
				return answer, ferr
			}
			return answer, errors.Wrap(err, "read agent stream")
		}
		if string(data) == agent.DoneSentinel {
			continue
		}

		event, err := agent.ParseEvent(data)
		if err != nil {
			t.logger.Debug().Err(err).Str("payload", string(data)).Msg("skipping undecodable event")
			continue
		}

		switch ev := event.(type) {
		case agent.MessageEvent:
			if !usableContent(ev.Content) {
				continue
			}
			answer = ev.Content
			if err := flush(); err != nil {
				return answer, err
			}
		case agent.ErrorEvent:
			t.logger.Warn().Str("content", ev.Content).Msg("agent reported stream error")
		default:
			// Reasoning, tool, and token events stay internal.
		}
	}
}
