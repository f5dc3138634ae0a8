package realtime

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dmitrymomot/pushkit/pkg/broadcast"
	"github.com/dmitrymomot/pushkit/pkg/logger"
)

// Identity is who a connection belongs to.
type Identity struct {
	TenantID string
	UserID   string
}

// IdentifyFunc resolves the identity of an incoming connection. Returning an
// error rejects the upgrade with 401.
type IdentifyFunc func(r *http.Request) (Identity, error)

// HeaderIdentify reads the tenant from the X-Tenant-ID header or the
// tenant_id query parameter. It suits deployments where an upstream gateway
// has already authenticated the request.
func HeaderIdentify(r *http.Request) (Identity, error) {
	id := Identity{
		TenantID: r.Header.Get("X-Tenant-ID"),
		UserID:   r.Header.Get("X-User-ID"),
	}
	if id.TenantID == "" {
		id.TenantID = r.URL.Query().Get("tenant_id")
	}
	if id.TenantID == "" {
		return Identity{}, ErrUnauthorized
	}
	return id, nil
}

// Server upgrades requests to websockets and streams room events to them.
type Server struct {
	rooms    *broadcast.Rooms[Event]
	cfg      Config
	identify IdentifyFunc
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithIdentify sets how connections are identified. Defaults to HeaderIdentify.
func WithIdentify(fn IdentifyFunc) ServerOption {
	return func(s *Server) {
		s.identify = fn
	}
}

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = l
	}
}

// NewServer creates a websocket server fed by rooms.
func NewServer(rooms *broadcast.Rooms[Event], cfg Config, opts ...ServerOption) *Server {
	def := DefaultConfig()
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.PongWait <= cfg.PingInterval {
		cfg.PongWait = 2 * cfg.PingInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}

	s := &Server{
		rooms:    rooms,
		cfg:      cfg,
		identify: HeaderIdentify,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(s.cfg.AllowedOrigins, r.Header.Get("Origin"))
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, err := s.identify(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.logger.LogAttrs(r.Context(), slog.LevelWarn, "websocket upgrade failed",
			logger.TenantID(id.TenantID),
			logger.Error(err),
		)
		return
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	tenantSub, err := s.rooms.Subscribe(ctx, TenantRoom(id.TenantID))
	if err != nil {
		_ = conn.Close()
		return
	}
	defer tenantSub.Close()

	globalSub, err := s.rooms.Subscribe(ctx, GlobalRoom)
	if err != nil {
		_ = conn.Close()
		return
	}
	defer globalSub.Close()

	connID := uuid.NewString()
	log := s.logger.With(
		slog.String("conn_id", connID),
		logger.TenantID(id.TenantID),
		logger.UserID(id.UserID),
	)
	log.DebugContext(ctx, "websocket connected")

	go s.readLoop(conn, cancel, log)
	s.writeLoop(ctx, conn, id.UserID, tenantSub.Receive(ctx), globalSub.Receive(ctx), log)

	log.DebugContext(ctx, "websocket disconnected")
}

// readLoop only services control frames; clients never send data.
func (s *Server) readLoop(conn *websocket.Conn, cancel context.CancelFunc, log *slog.Logger) {
	defer cancel()

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Warn("websocket read failed", logger.Error(err))
			}
			return
		}
	}
}

func (s *Server) writeLoop(ctx context.Context, conn *websocket.Conn, userID string, tenant, global <-chan broadcast.Message[Event], log *slog.Logger) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		var (
			msg broadcast.Message[Event]
			ok  bool
		)
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(s.cfg.WriteTimeout))
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			continue
		case msg, ok = <-tenant:
		case msg, ok = <-global:
		}

		if !ok {
			// Dropped as a slow consumer or the rooms were closed.
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "reconnect"),
				time.Now().Add(s.cfg.WriteTimeout))
			return
		}
		if !msg.Data.visibleTo(userID) {
			continue
		}

		_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		if err := conn.WriteJSON(msg.Data); err != nil {
			log.Warn("websocket write failed", logger.Error(err))
			return
		}
	}
}
