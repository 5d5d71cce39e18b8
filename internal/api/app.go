package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"

	"github.com/teamtrack/chatrelay/internal/config"
	"github.com/teamtrack/chatrelay/internal/database"
	"github.com/teamtrack/chatrelay/internal/relay"
)

type ChatRelayApp struct {
	log            *log.Logger
	db             database.ChatRepository
	mux            *http.Server
	relay          *relay.RelayServer
	verifier       TokenVerifier
	members        MembershipAuthority
	allowedOrigins []string
	snapshotLimit  int
}

func NewChatRelayApp(mux *http.ServeMux, logger *log.Logger, rs *relay.RelayServer, db database.ChatRepository, cfg *config.Config) *ChatRelayApp {
	s := &ChatRelayApp{
		log:            logger,
		db:             db,
		relay:          rs,
		verifier:       NewJwtVerifier(cfg.SigningKey),
		members:        NewDbMembershipAuthority(db),
		allowedOrigins: cfg.AllowedOrigins,
		snapshotLimit:  cfg.SnapshotLimit,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.Handle("GET /api/snapshot", s.authMiddleware(s.getSnapshot))
	mux.HandleFunc("GET /ws", s.serveWs)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *ChatRelayApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *ChatRelayApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
