package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/go-go-golems/parley/pkg/chat"
)

// ErrBackendUnavailable is returned when the agent service stayed unreachable
// or rate-limited through every retry attempt.
var ErrBackendUnavailable = errors.New("agent: backend unavailable")

const (
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 2 * time.Second
)

// sharedHTTPClient is the process-wide transport for agent calls. Constructed
// once; individual requests carry their own deadlines via context.
var sharedHTTPClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        16,
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     90 * time.Second,
	},
}

// HistoryMessage is one prior turn in the agent's wire format.
type HistoryMessage struct {
	Type    string `json:"type"` // "human" or "ai"
	Content string `json:"content"`
}

// HistoryFromTurns converts prior conversation turns to the agent's history
// format. Only user and assistant turns are sent upstream.
func HistoryFromTurns(turns []chat.Turn) []HistoryMessage {
	history := make([]HistoryMessage, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case chat.RoleUser:
			history = append(history, HistoryMessage{Type: "human", Content: t.Text()})
		case chat.RoleAssistant:
			history = append(history, HistoryMessage{Type: "ai", Content: t.Text()})
		}
	}
	return history
}

type agentConfig struct {
	MessageHistory []HistoryMessage `json:"message_history"`
	ShowReasoning  bool             `json:"show_reasoning"`
}

type streamRequest struct {
	Message     string      `json:"message"`
	AgentConfig agentConfig `json:"agent_config"`
}

type invokeResponse struct {
	Content string `json:"content"`
}

// Config parameterizes the client. Token authenticates against the agent
// service; RetryBaseDelay exists so tests can compress the backoff schedule.
type Config struct {
	BaseURL        string
	Agent          string
	Token          string
	MaxAttempts    int
	RetryBaseDelay time.Duration
	HTTPClient     *http.Client
}

// Client talks to the remote agent service. Construct once at startup and
// share across requests; it holds no per-request state.
type Client struct {
	baseURL     string
	agent       string
	token       string
	maxAttempts int
	baseDelay   time.Duration
	httpClient  *http.Client
	logger      zerolog.Logger
}

func NewClient(cfg Config, logger zerolog.Logger) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("agent client: empty base url")
	}
	agentName := strings.TrimSpace(cfg.Agent)
	if agentName == "" {
		return nil, errors.New("agent client: empty agent name")
	}
	c := &Client{
		baseURL:     baseURL,
		agent:       agentName,
		token:       cfg.Token,
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.RetryBaseDelay,
		httpClient:  cfg.HTTPClient,
		logger:      logger.With().Str("component", "agent_client").Logger(),
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = defaultMaxAttempts
	}
	if c.baseDelay <= 0 {
		c.baseDelay = defaultRetryBaseDelay
	}
	if c.httpClient == nil {
		c.httpClient = sharedHTTPClient
	}
	return c, nil
}

// Stream sends the question plus prior history and returns the raw SSE body.
// The caller owns the returned reader and must close it.
//
// Rate limiting (429) and transport failures are retried with exponential
// backoff (base delay doubled per attempt) up to the attempt cap; any other
// non-2xx status is terminal. Exhausting the cap yields ErrBackendUnavailable.
func (c *Client) Stream(ctx context.Context, question string, history []HistoryMessage) (io.ReadCloser, error) {
	body, err := c.marshalRequest(question, history)
	if err != nil {
		return nil, err
	}
	endpoint := fmt.Sprintf("%s/%s/stream", c.baseURL, c.agent)

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		resp, err := c.post(ctx, endpoint, body, "text/event-stream")
		if err != nil {
			lastErr = err
		} else if resp.StatusCode == http.StatusTooManyRequests {
			_ = resp.Body.Close()
			lastErr = errors.Errorf("agent returned status %d", resp.StatusCode)
		} else if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			_ = resp.Body.Close()
			return nil, errors.Errorf("agent returned status %d", resp.StatusCode)
		} else {
			return resp.Body, nil
		}

		delay := c.baseDelay << (attempt - 1)
		c.logger.Warn().Err(lastErr).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("agent request failed, backing off")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, errors.Wrapf(ErrBackendUnavailable, "after %d attempts: %v", c.maxAttempts, lastErr)
}

// Invoke asks the agent for a complete, non-streamed answer. Same retry
// policy as Stream.
func (c *Client) Invoke(ctx context.Context, question string, history []HistoryMessage) (string, error) {
	body, err := c.marshalRequest(question, history)
	if err != nil {
		return "", err
	}
	endpoint := fmt.Sprintf("%s/%s/invoke", c.baseURL, c.agent)

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		resp, err := c.post(ctx, endpoint, body, "application/json")
		if err != nil {
			lastErr = err
		} else if resp.StatusCode == http.StatusTooManyRequests {
			_ = resp.Body.Close()
			lastErr = errors.Errorf("agent returned status %d", resp.StatusCode)
		} else if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			_ = resp.Body.Close()
			return "", errors.Errorf("agent returned status %d", resp.StatusCode)
		} else {
			defer func() { _ = resp.Body.Close() }()
			var decoded invokeResponse
			if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
				return "", errors.Wrap(err, "decode invoke response")
			}
			return decoded.Content, nil
		}

		delay := c.baseDelay << (attempt - 1)
		c.logger.Warn().Err(lastErr).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("agent request failed, backing off")
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}
	return "", errors.Wrapf(ErrBackendUnavailable, "after %d attempts: %v", c.maxAttempts, lastErr)
}

func (c *Client) marshalRequest(question string, history []HistoryMessage) ([]byte, error) {
	if history == nil {
		history = []HistoryMessage{}
	}
	body, err := json.Marshal(streamRequest{
		Message: question,
		AgentConfig: agentConfig{
			MessageHistory: history,
			ShowReasoning:  true,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "marshal agent request")
	}
	return body, nil
}

func (c *Client) post(ctx context.Context, endpoint string, body []byte, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build agent request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "agent request")
	}
	return resp, nil
}
