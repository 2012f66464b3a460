package webchat

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/go-go-golems/parley/pkg/agent"
	"github.com/go-go-golems/parley/pkg/auth"
	"github.com/go-go-golems/parley/pkg/chat"
	"github.com/go-go-golems/parley/pkg/persistence/chatstore"
)

// AgentStreamer is the outbound surface the orchestrator drives on a cache
// miss. *agent.Client satisfies it.
type AgentStreamer interface {
	Stream(ctx context.Context, question string, history []agent.HistoryMessage) (io.ReadCloser, error)
}

const (
	defaultCacheTTL          = 24 * time.Hour
	sideEffectTimeout        = 15 * time.Second
	defaultConversationTitle = "New Chat"
)

// ChatServiceConfig wires the orchestrator's collaborators.
type ChatServiceConfig struct {
	Conversations chatstore.ConversationStore
	Turns         chatstore.TurnStore
	Cache         chatstore.QueryCacheStore
	Agent         AgentStreamer
	CacheTTL      time.Duration
	Logger        zerolog.Logger
}

// ChatService runs one chat turn end to end: session check, conversation
// bootstrap, inbound persistence, cache consult, and on a miss the backend
// stream plus detached post-stream persistence.
type ChatService struct {
	conversations chatstore.ConversationStore
	turns         chatstore.TurnStore
	cache         chatstore.QueryCacheStore
	agent         AgentStreamer
	transcoder    *Transcoder
	cacheTTL      time.Duration
	logger        zerolog.Logger
	now           func() time.Time

	sideEffects sync.WaitGroup
}

func NewChatService(cfg ChatServiceConfig) (*ChatService, error) {
	if cfg.Conversations == nil {
		return nil, errors.New("chat service: conversation store is nil")
	}
	if cfg.Turns == nil {
		return nil, errors.New("chat service: turn store is nil")
	}
	if cfg.Cache == nil {
		return nil, errors.New("chat service: cache store is nil")
	}
	if cfg.Agent == nil {
		return nil, errors.New("chat service: agent client is nil")
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	logger := cfg.Logger.With().Str("component", "chat_service").Logger()
	return &ChatService{
		conversations: cfg.Conversations,
		turns:         cfg.Turns,
		cache:         cfg.Cache,
		agent:         cfg.Agent,
		transcoder:    NewTranscoder(cfg.Logger),
		cacheTTL:      ttl,
		logger:        logger,
		now:           time.Now,
	}, nil
}

// SetNowFunc overrides the clock. Test hook.
func (s *ChatService) SetNowFunc(now func() time.Time) { s.now = now }

// HandleTurn processes one inbound chat turn, streaming the answer through w.
// Errors returned before the first frame carry an HTTP status; once a frame
// has been written, failures are logged only.
func (s *ChatService) HandleTurn(ctx context.Context, session *auth.Session, body ChatRequestBody, w FrameWriter) error {
	if session == nil {
		return unauthorized()
	}
	if err := body.validate(); err != nil {
		return err
	}
	question := body.Message.Question()
	logger := s.logger.With().
		Str("conv_id", body.ID).
		Str("user_id", session.UserID).
		Logger()

	if err := s.ensureConversation(ctx, session.UserID, body, question); err != nil {
		logger.Error().Err(err).Msg("ensure conversation failed")
		return internalError()
	}

	// The question is durably recorded before the cache or the backend is
	// consulted, even when everything downstream fails.
	inbound := chat.Turn{
		ID:             body.Message.ID,
		ConversationID: body.ID,
		Role:           chat.RoleUser,
		Parts:          body.Message.Parts,
		Attachments:    body.Message.ExperimentalAttachments,
		CreatedAt:      s.now(),
	}
	if err := s.turns.InsertTurn(ctx, inbound); err != nil {
		logger.Error().Err(err).Msg("persist inbound turn failed")
		return internalError()
	}

	questionHash := chatstore.Fingerprint(question)
	entry, err := s.cache.Lookup(ctx, questionHash, session.UserID, body.ID)
	if err != nil {
		// A broken cache must not take down the chat path.
		logger.Warn().Err(err).Msg("cache lookup failed, treating as miss")
	}
	if entry != nil {
		return s.replayFromCache(ctx, logger, session, body, entry, w)
	}
	return s.askBackend(ctx, logger, session, body, question, questionHash, w)
}

func (s *ChatService) ensureConversation(ctx context.Context, userID string, body ChatRequestBody, question string) error {
	conv, err := s.conversations.GetConversation(ctx, body.ID)
	if err != nil {
		return err
	}
	if conv != nil {
		return nil
	}
	return s.conversations.InsertConversation(ctx, chat.Conversation{
		ID:         body.ID,
		UserID:     userID,
		Title:      chat.TitleForQuestion(question),
		Visibility: chat.ParseVisibility(body.SelectedVisibilityType),
		CreatedAt:  s.now(),
	})
}

func (s *ChatService) replayFromCache(ctx context.Context, logger zerolog.Logger, session *auth.Session, body ChatRequestBody, entry *chat.CacheEntry, w FrameWriter) error {
	logger.Info().Msg("cache hit, replaying stored answer")

	assistant := chat.Turn{
		ID:             uuid.NewString(),
		ConversationID: body.ID,
		Role:           chat.RoleAssistant,
		Parts:          []chat.Part{{Type: "text", Text: entry.Answer}},
		CreatedAt:      s.now(),
	}
	if err := s.turns.InsertTurn(ctx, assistant); err != nil {
		logger.Error().Err(err).Msg("persist cached assistant turn failed")
		return internalError()
	}

	hash, userID, convID := entry.QuestionHash, session.UserID, body.ID
	s.detach(func(ctx context.Context) {
		if err := s.cache.RecordHit(ctx, hash, userID, convID); err != nil {
			logger.Warn().Err(err).Msg("record cache hit failed")
		}
	})

	if err := w.WriteFrame(entry.Answer); err != nil {
		return errors.Wrap(err, "write cached answer")
	}
	return nil
}

func (s *ChatService) askBackend(ctx context.Context, logger zerolog.Logger, session *auth.Session, body ChatRequestBody, question, questionHash string, w FrameWriter) error {
	logger.Info().Msg("cache miss, calling backend")

	history, err := s.historyForUpstream(ctx, body.ID, body.Message.ID)
	if err != nil {
		logger.Error().Err(err).Msg("load conversation history failed")
		return internalError()
	}

	stream, err := s.agent.Stream(ctx, question, history)
	if err != nil {
		if errors.Is(err, agent.ErrBackendUnavailable) {
			logger.Error().Err(err).Msg("backend unavailable after retries")
			return backendUnavailable()
		}
		logger.Error().Err(err).Msg("backend call failed")
		return backendUnavailable()
	}

	answer, streamErr := s.transcoder.Run(stream, w)
	if streamErr != nil {
		// The response may be partially written; nothing can change the
		// status now.
		logger.Warn().Err(streamErr).Msg("agent stream ended with error")
	}
	if strings.TrimSpace(answer) == "" {
		return nil
	}

	// Post-stream side effects run detached: the response is already
	// delivered, so neither persistence nor caching may fail the caller or
	// hold the stream open.
	userID, convID := session.UserID, body.ID
	expiresAt := s.now().Add(s.cacheTTL)
	s.detach(func(ctx context.Context) {
		assistant := chat.Turn{
			ID:             uuid.NewString(),
			ConversationID: convID,
			Role:           chat.RoleAssistant,
			Parts:          []chat.Part{{Type: "text", Text: answer}},
			CreatedAt:      s.now(),
		}
		if err := s.turns.InsertTurn(ctx, assistant); err != nil {
			logger.Error().Err(err).Msg("persist assistant turn failed")
		}
		if err := s.cache.Insert(ctx, chat.CacheEntry{
			ID:             uuid.NewString(),
			ConversationID: convID,
			UserID:         userID,
			QuestionHash:   questionHash,
			Question:       question,
			Answer:         answer,
			HitCount:       1,
			CreatedAt:      s.now(),
			ExpiresAt:      expiresAt,
		}); err != nil {
			logger.Error().Err(err).Msg("populate cache failed")
		}
	})
	return nil
}

// historyForUpstream loads the conversation's prior user/assistant turns,
// excluding the in-flight one, in the agent's wire format.
func (s *ChatService) historyForUpstream(ctx context.Context, conversationID, inFlightTurnID string) ([]agent.HistoryMessage, error) {
	turns, err := s.turns.ListTurns(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	prior := make([]chat.Turn, 0, len(turns))
	for _, t := range turns {
		if t.ID == inFlightTurnID {
			continue
		}
		prior = append(prior, t)
	}
	return agent.HistoryFromTurns(prior), nil
}

// DeleteConversation removes a conversation and everything hanging off it.
func (s *ChatService) DeleteConversation(ctx context.Context, session *auth.Session, conversationID string) error {
	if session == nil {
		return unauthorized()
	}
	if strings.TrimSpace(conversationID) == "" {
		return badRequest("missing conversation id")
	}
	if err := s.conversations.DeleteConversation(ctx, conversationID); err != nil {
		s.logger.Error().Err(err).Str("conv_id", conversationID).Msg("delete conversation failed")
		return internalError()
	}
	return nil
}

// detach runs fn on a context decoupled from the client connection. Writes
// already scheduled complete even when the caller disconnects.
func (s *ChatService) detach(fn func(ctx context.Context)) {
	s.sideEffects.Add(1)
	go func() {
		defer s.sideEffects.Done()
		ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
		defer cancel()
		fn(ctx)
	}()
}

// WaitSideEffects blocks until in-flight detached writes finish. Used by
// graceful shutdown and by tests.
func (s *ChatService) WaitSideEffects() {
	s.sideEffects.Wait()
}
