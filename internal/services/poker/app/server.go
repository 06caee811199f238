package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/net/websocket"

	i18ncatalog "github.com/louisbranch/pointing.space/internal/platform/i18n/catalog"
	"github.com/louisbranch/pointing.space/internal/platform/timeouts"
	"github.com/louisbranch/pointing.space/internal/poker/actor"
	"github.com/louisbranch/pointing.space/internal/poker/directory"
	"github.com/louisbranch/pointing.space/internal/poker/domain"
	"github.com/louisbranch/pointing.space/internal/poker/event"
	"github.com/louisbranch/pointing.space/internal/poker/pubsub"
)

const (
	maxFramePayloadBytes   = 16 * 1024
	maxFramesPerSecond     = 40
	maxDecodeErrorsPerConn = 3

	maxDisplayNameRunes = 64
	maxSessionNameRunes = 128
	maxStoryLabelRunes  = 200
)

// Config defines the inputs for the poker transport boundary.
//
// The settings intentionally couple the WebSocket layer to session actor
// lifecycle tuning without owning session state.
type Config struct {
	HTTPAddr          string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
	SweepInterval     time.Duration
	IdleGrace         time.Duration
}

// Server hosts the poker HTTP/WebSocket process.
//
// It delegates all session mutations to the directory's actors so the
// transport remains stateless between frames.
type Server struct {
	httpAddr        string
	shutdownTimeout time.Duration
	httpServer      *http.Server
	broker          *pubsub.Broker
	directory       *directory.Directory
}

type createSessionRequest struct {
	Name string `json:"name"`
	Deck string `json:"deck"`
}

type sessionEnvelope struct {
	Session event.SessionSnapshot `json:"session"`
}

type deckCatalogEnvelope struct {
	Decks []deckEntry `json:"decks"`
}

type deckEntry struct {
	Name  string      `json:"name"`
	Label string      `json:"label"`
	Cards []cardEntry `json:"cards"`
}

type cardEntry struct {
	Name  string `json:"name"`
	Label string `json:"label"`
}

type avatarCatalogEnvelope struct {
	Avatars []avatarEntry `json:"avatars"`
}

type avatarEntry struct {
	ID    int    `json:"id"`
	Asset string `json:"asset"`
}

// NewHandler creates poker routes backed by the given directory.
func NewHandler(dir *directory.Directory, broker *pubsub.Broker) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	mux.HandleFunc("/decks", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		locale := requestLocale(r)
		decks := make([]deckEntry, 0, 2)
		for _, deck := range []domain.Deck{domain.DeckFibonacci, domain.DeckShirtSize} {
			cards := deck.Cards()
			entries := make([]cardEntry, 0, len(cards))
			for _, card := range cards {
				entries = append(entries, cardEntry{Name: string(card), Label: cardLabel(locale, card)})
			}
			decks = append(decks, deckEntry{Name: string(deck), Label: deckLabel(locale, deck), Cards: entries})
		}
		writeJSON(w, http.StatusOK, deckCatalogEnvelope{Decks: decks})
	})

	mux.HandleFunc("/avatars", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		pool := domain.AvatarPool()
		avatars := make([]avatarEntry, 0, len(pool))
		for _, id := range pool {
			avatars = append(avatars, avatarEntry{ID: int(id), Asset: id.AssetPath()})
		}
		writeJSON(w, http.StatusOK, avatarCatalogEnvelope{Avatars: avatars})
	})

	mux.HandleFunc("/sessions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		handleCreateSession(w, r, dir)
	})

	mux.HandleFunc("/sessions/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		handleGetSession(w, r, dir)
	})

	wsHandler := websocket.Handler(func(conn *websocket.Conn) {
		handleWSConn(conn, dir, broker)
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		wsHandler.ServeHTTP(w, r)
	})

	return mux
}

func handleCreateSession(w http.ResponseWriter, r *http.Request, dir *directory.Directory) {
	ctx, span := otel.Tracer("pointing.space/poker").Start(r.Context(), "http.create_session")
	defer span.End()

	var payload createSessionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFramePayloadBytes)).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, httpErrorEnvelope{
			Error: httpError{Code: "INVALID_ARGUMENT", Message: "invalid request body"},
		})
		return
	}

	deck := domain.DeckFibonacci
	if strings.TrimSpace(payload.Deck) != "" {
		parsed, err := domain.ParseDeck(payload.Deck)
		if err != nil {
			writeHTTPError(w, r, err)
			return
		}
		deck = parsed
	}
	if runeCount(payload.Name) > maxSessionNameRunes {
		writeJSON(w, http.StatusBadRequest, httpErrorEnvelope{
			Error: httpError{Code: "INVALID_ARGUMENT", Message: "name must be at most 128 characters"},
		})
		return
	}

	session, err := dir.Create(ctx, domain.CreateSessionInput{Name: payload.Name, Deck: deck})
	if err != nil {
		writeHTTPError(w, r, err)
		return
	}
	span.SetAttributes(attribute.String("session.id", session.ID))
	writeJSON(w, http.StatusCreated, sessionEnvelope{Session: event.NewSessionSnapshot(session)})
}

func handleGetSession(w http.ResponseWriter, r *http.Request, dir *directory.Directory) {
	sessionID := strings.TrimPrefix(r.URL.Path, "/sessions/")
	if sessionID == "" || strings.Contains(sessionID, "/") {
		writeHTTPError(w, r, directory.ErrNotFound)
		return
	}

	a, err := dir.Lookup(sessionID)
	if err != nil {
		writeHTTPError(w, r, err)
		return
	}
	session, err := a.Snapshot()
	if err != nil {
		writeHTTPError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionEnvelope{Session: event.NewSessionSnapshot(session)})
}

// deckLabel resolves the localized display name for a deck, falling back to
// its wire name.
func deckLabel(locale string, deck domain.Deck) string {
	if label, ok := i18ncatalog.Default().Message(locale, "poker.deck."+string(deck)); ok {
		return label
	}
	return string(deck)
}

// cardLabel resolves the localized display name for a card. Numeric cards
// have no catalog entry and label as themselves.
func cardLabel(locale string, card domain.Card) string {
	if label, ok := i18ncatalog.Default().Message(locale, "poker.card."+string(card)); ok {
		return label
	}
	return string(card)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("poker: encode response: %v", err)
	}
}

// NewServer builds a configured poker server with its own broker and
// directory.
func NewServer(config Config) (*Server, error) {
	httpAddr := strings.TrimSpace(config.HTTPAddr)
	if httpAddr == "" {
		return nil, errors.New("http address is required")
	}
	if config.ReadHeaderTimeout <= 0 {
		config.ReadHeaderTimeout = timeouts.ReadHeader
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = timeouts.Shutdown
	}

	broker := pubsub.NewBroker()
	dir := directory.New(broker, actor.Config{
		SweepInterval: config.SweepInterval,
		IdleGrace:     config.IdleGrace,
	})

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           NewHandler(dir, broker),
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}

	return &Server{
		httpAddr:        httpAddr,
		shutdownTimeout: config.ShutdownTimeout,
		httpServer:      httpServer,
		broker:          broker,
		directory:       dir,
	}, nil
}

// Run creates and serves a poker server until the context ends.
//
// Operators can treat this as the lifecycle boundary for the real-time
// surface.
func Run(ctx context.Context, config Config) error {
	server, err := NewServer(config)
	if err != nil {
		return fmt.Errorf("init poker server: %w", err)
	}
	defer server.Close()

	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve poker: %w", err)
	}
	return nil
}

// ListenAndServe runs the HTTP server until the context ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("poker server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	serveErr := make(chan error, 1)
	log.Printf("poker server listening on %s", s.httpAddr)
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// Close releases server resources, terminating every live session.
func (s *Server) Close() {
	if s == nil {
		return
	}
	s.directory.Shutdown()
}

// Directory exposes the session directory for command wiring.
func (s *Server) Directory() *directory.Directory {
	return s.directory
}
