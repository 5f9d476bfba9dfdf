package httpserver

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/EchoPBX/nimbus/internal/config"
	"github.com/EchoPBX/nimbus/internal/engine"
	"github.com/EchoPBX/nimbus/internal/jwt"
	"github.com/EchoPBX/nimbus/pkg/sdk"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Catalog is the engine as seen by the admin API.
type Catalog interface {
	Plugins() []engine.PluginInfo
	StartTime() time.Time
	Username() string
}

// Subscriber streams bus notices.
type Subscriber interface {
	Subscribe(types ...string) chan sdk.Notice
	Unsubscribe(ch chan sdk.Notice)
}

type Server struct {
	log *zap.Logger
	bus Subscriber
	cat Catalog
	r   *chi.Mux
	jwt *jwt.Validator
}

func New(cfg *config.Config, log *zap.Logger, bus Subscriber, cat Catalog) (*Server, error) {
	v, err := jwt.NewValidator(cfg.Auth.JWTPublicKeys, cfg.Auth.Issuer, cfg.Auth.Audience)
	if err != nil {
		return nil, err
	}
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Authorization"},
	}))
	s := &Server{log: log.With(zap.String("component", "http")), bus: bus, cat: cat, r: r, jwt: v}
	s.routes()
	return s, nil
}

func (s *Server) Router() http.Handler { return s.r }

func (s *Server) routes() {
	s.r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	s.r.Get("/v1/info", s.auth(func(w http.ResponseWriter, r *http.Request) {
		started := s.cat.StartTime()
		writeJSON(w, map[string]any{
			"name":     "nimbus",
			"username": s.cat.Username(),
			"started":  started.UTC(),
			"uptime":   int64(time.Since(started).Seconds()),
			"plugins":  len(s.cat.Plugins()),
		})
	}))

	s.r.Get("/v1/plugins", s.auth(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, s.cat.Plugins())
	}))

	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	s.r.Get("/v1/events", s.auth(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			s.log.Warn("ws upgrade failed", zap.Error(err))
			return
		}

		// ?type=plugin.error&type=... narrows the stream
		ch := s.bus.Subscribe(r.URL.Query()["type"]...)
		go func() {
			defer func() {
				s.bus.Unsubscribe(ch)
				_ = conn.Close()
			}()
			for n := range ch {
				if err := conn.WriteJSON(n); err != nil {
					s.log.Debug("ws write error", zap.Error(err))
					return
				}
			}
		}()

		// reads only to notice the client going away
		conn.SetReadLimit(1024)
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.bus.Unsubscribe(ch)
				return
			}
		}
	}))
}

// auth accepts a bearer token, or access_token for websocket clients that
// cannot set headers.
func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if tok == "" {
			tok = r.URL.Query().Get("access_token")
		}
		if tok == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}
		if _, err := s.jwt.Verify(tok); err != nil {
			s.log.Debug("rejected token", zap.Error(err))
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
