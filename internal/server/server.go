// Package server accepts connections, runs one session per connection, and
// exposes an admin API over the live session set.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/wirelink/internal/auth"
	"github.com/danmuck/wirelink/internal/observability"
	"github.com/danmuck/wirelink/internal/protocol/dispatch"
	"github.com/danmuck/wirelink/internal/protocol/session"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	TransportTCP       = "tcp"
	TransportWebsocket = "websocket"

	shutdownGrace = 5 * time.Second
)

type Config struct {
	ListenAddr  string
	AdminAddr   string
	CORSOrigins []string
	// AdminToken guards mutating admin routes when set.
	AdminToken string
	Session    session.Config
}

func DefaultConfig() Config {
	return Config{
		ListenAddr: ":7777",
		AdminAddr:  "127.0.0.1:7780",
		Session:    session.DefaultConfig(),
	}
}

type Server struct {
	cfg      Config
	table    *dispatch.Table
	registry *Registry
	router   *gin.Engine
	upgrader websocket.Upgrader
	started  time.Time

	wg sync.WaitGroup
}

// New builds a server. table may be nil, in which case every frame is
// dropped after validation. reg may be nil; pass the registry the table's
// handlers were built with so they see the same session set.
func New(cfg Config, table *dispatch.Table, reg *Registry) *Server {
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		cfg.ListenAddr = DefaultConfig().ListenAddr
	}
	cfg.Session = cfg.Session.WithDefaults()
	if table == nil {
		table = dispatch.NewTable()
	}
	if reg == nil {
		reg = NewRegistry()
	}
	observability.RegisterMetrics()

	s := &Server{
		cfg:      cfg,
		table:    table,
		registry: reg,
		started:  time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin(cfg.CORSOrigins),
		},
	}
	s.router = s.newRouter()
	return s
}

func (s *Server) Registry() *Registry {
	return s.registry
}

// Router is the admin API handler.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) newRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.AdminMiddleware("wirelink", log.Logger))
	if len(s.cfg.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: s.cfg.CORSOrigins,
			AllowMethods: []string{"GET", "POST", "DELETE"},
			AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
			MaxAge:       12 * time.Hour,
		}))
	}
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})
	s.registerRoutes(r)
	return r
}

// Run listens on the session and admin addresses and blocks until ctx is
// cancelled or a listener fails.
func (s *Server) Run(ctx context.Context) error {
	if err := s.cfg.Session.Validate(); err != nil {
		return err
	}
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	log.Info().Str("addr", ln.Addr().String()).Bool("encryption", s.cfg.Session.Encryption).Msg("session listener ready")

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.Serve(ctx, ln)
	}()

	adminErr := make(chan error, 1)
	var admin *http.Server
	if addr := strings.TrimSpace(s.cfg.AdminAddr); addr != "" {
		admin = &http.Server{
			Addr:              addr,
			Handler:           s.router,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info().Str("addr", addr).Msg("admin api ready")
			if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				adminErr <- err
			}
		}()
	}

	var runErr error
	serveDone := false
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
		serveDone = true
	case runErr = <-adminErr:
	}
	if admin != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		_ = admin.Shutdown(shutdownCtx)
		cancel()
	}
	_ = ln.Close()
	if !serveDone {
		<-serveErr
	}
	s.registry.CloseAll()
	s.wg.Wait()
	return runErr
}

// Serve accepts connections on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			_ = s.ServeConn(ctx, conn, TransportTCP)
		}()
	}
}

// ServeConn runs one session over conn until it disconnects and returns the
// disconnect cause.
func (s *Server) ServeConn(ctx context.Context, conn net.Conn, transport string) error {
	sess, err := session.New(conn, s.cfg.Session, s.table, session.Hooks{})
	if err != nil {
		_ = conn.Close()
		log.Error().Err(err).Str("remote", addrString(conn.RemoteAddr())).Msg("session setup failed")
		return err
	}
	s.registry.Add(sess, transport)
	defer s.registry.Remove(sess.ID())
	return sess.Run(ctx)
}

func (s *Server) adminValidator() auth.Validator {
	if strings.TrimSpace(s.cfg.AdminToken) == "" {
		return nil
	}
	return auth.StaticToken{Token: s.cfg.AdminToken}
}

func checkOrigin(origins []string) func(*http.Request) bool {
	if len(origins) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range origins {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

func addrString(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	return addr.String()
}
