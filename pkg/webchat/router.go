// Package webchat is the chat gateway's HTTP core: the turn orchestrator,
// the stream transcoder, and the handlers that tie them to the auth and
// storage collaborators.
package webchat

import (
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/go-go-golems/parley/pkg/agent"
	"github.com/go-go-golems/parley/pkg/auth"
	"github.com/go-go-golems/parley/pkg/config"
	"github.com/go-go-golems/parley/pkg/persistence/chatstore"
)

// Router wires stores, auth, agent client, and HTTP handlers into one mux.
type Router struct {
	mux         *http.ServeMux
	chatService *ChatService
	authService *auth.Service
	store       *chatstore.SQLiteStore
	logger      zerolog.Logger
}

// NewRouter builds the full gateway from configuration. The SQLite store
// backs users, conversations, and turns; the query cache is Redis when a
// redis address is configured, SQLite otherwise.
func NewRouter(cfg config.Config, logger zerolog.Logger) (*Router, error) {
	dsn, err := chatstore.SQLiteDSNForFile(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	store, err := chatstore.NewSQLiteStore(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open chat store")
	}

	var cache chatstore.QueryCacheStore = store
	if addr := strings.TrimSpace(cfg.RedisAddr); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		cache, err = chatstore.NewRedisQueryCache(rdb)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		logger.Info().Str("addr", addr).Msg("using redis query cache")
	}

	tokens, err := auth.NewTokenIssuer(cfg.JWTSecret, cfg.SessionTTL)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	authService, err := auth.NewService(store, tokens, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	agentClient, err := agent.NewClient(agent.Config{
		BaseURL: cfg.AgentBaseURL,
		Agent:   cfg.AgentName,
		Token:   cfg.AgentSecret,
	}, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	chatService, err := NewChatService(ChatServiceConfig{
		Conversations: store,
		Turns:         store,
		Cache:         cache,
		Agent:         agentClient,
		CacheTTL:      cfg.CacheTTL,
		Logger:        logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	r := &Router{
		mux:         http.NewServeMux(),
		chatService: chatService,
		authService: authService,
		store:       store,
		logger:      logger.With().Str("component", "webchat").Logger(),
	}
	r.registerHTTPHandlers()
	return r, nil
}

func (r *Router) registerHTTPHandlers() {
	r.authService.RegisterRoutes(r.mux)
	r.mux.Handle("/api/chat", r.authService.Middleware(NewChatHandler(r.chatService, r.logger)))
	r.mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

// Handler returns the assembled mux.
func (r *Router) Handler() http.Handler { return r.mux }

// ChatService exposes the orchestrator, mainly for shutdown coordination.
func (r *Router) ChatService() *ChatService { return r.chatService }

// Close flushes pending side effects and releases the store.
func (r *Router) Close() error {
	r.chatService.WaitSideEffects()
	return r.store.Close()
}

// Mount attaches the router under a prefix on a parent mux. http.ServeMux
// does not strip prefixes, so StripPrefix is applied explicitly.
func (r *Router) Mount(mux *http.ServeMux, prefix string) {
	if prefix == "" || prefix == "/" {
		mux.Handle("/", r.mux)
		return
	}
	prefix = strings.TrimRight(prefix, "/")
	mux.Handle(prefix+"/", http.StripPrefix(prefix, r.mux))
}

// BuildHTTPServer constructs the http.Server for the gateway. The write
// timeout enforces the per-request wall-clock ceiling.
func (r *Router) BuildHTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           r.mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      requestCeiling,
		IdleTimeout:       120 * time.Second,
	}
}
