package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Busskov/study-clock/internal/chat"
	"github.com/Busskov/study-clock/internal/dispatch"
	"github.com/Busskov/study-clock/internal/identity"
	"github.com/Busskov/study-clock/internal/server/middleware"
	"github.com/Busskov/study-clock/internal/store"
	"github.com/Busskov/study-clock/pkg/config"
	"github.com/Busskov/study-clock/pkg/registry"
	"github.com/Busskov/study-clock/pkg/registry/memregistry"
	"github.com/Busskov/study-clock/pkg/transport"
	"github.com/coder/websocket"
)

type App struct {
	logger     *slog.Logger
	reg        registry.Registry
	store      store.Store
	dispatcher *dispatch.Dispatcher
	wg         sync.WaitGroup
	http       *http.Server
	handler    http.Handler
	config     *config.Config

	ctx context.Context
}

func NewApp(logger *slog.Logger, rootCtx context.Context, cfg *config.Config, st store.Store, provider identity.Provider) *App {
	reg := memregistry.NewInMemoryRegistry(logger)
	dispatcher := dispatch.NewDispatcher(logger, reg)

	app := &App{
		logger:     logger,
		reg:        reg,
		store:      st,
		dispatcher: dispatcher,
		config:     cfg,
		ctx:        rootCtx,
	}

	// Create a cycler function that closes over the registry and logger.
	connCycler := func(userID int64) {
		oldest, found := reg.OldestUserMember(userID)
		if found {
			logger.Info("Cycling connection: closing oldest",
				slog.Int64("userID", userID),
				slog.String("memberID", oldest.ID.String()),
			)
			oldest.Transport.Close(errors.New("connection cycled by new connection"))
		}
	}

	mux := http.NewServeMux()
	mux.Handle("GET /ws/chat/{user_id}",
		middleware.Chain(http.HandlerFunc(app.chatHandler),
			middleware.RequestMetadataMiddleware(),
			middleware.NewRequestLogger(logger),
			middleware.NewAuthMiddleware(logger, provider),
			middleware.NewConnectionLimiter(
				logger,
				reg.UserConnectionCount,
				connCycler,
				cfg.Server.ConnectionLimit,
			),
		),
	)
	mux.Handle("GET /ws/support",
		middleware.Chain(http.HandlerFunc(app.supportHandler),
			middleware.RequestMetadataMiddleware(),
			middleware.NewRequestLogger(logger),
			middleware.NewOptionalAuthMiddleware(provider),
		),
	)
	mux.Handle("GET /api/messages/{user_id}",
		middleware.Chain(http.HandlerFunc(app.historyHandler),
			middleware.RequestMetadataMiddleware(),
			middleware.NewRequestLogger(logger),
			middleware.NewAuthMiddleware(logger, provider),
		),
	)
	mux.Handle("POST /api/messages",
		middleware.Chain(http.HandlerFunc(app.sendMessageHandler),
			middleware.RequestMetadataMiddleware(),
			middleware.NewRequestLogger(logger),
			middleware.NewAuthMiddleware(logger, provider),
		),
	)
	app.handler = mux

	app.http = &http.Server{Addr: cfg.Server.Address, Handler: mux, BaseContext: func(l net.Listener) context.Context {
		return app.ctx
	}}

	return app
}

// Handler exposes the routing tree, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Registry exposes the channel registry, mainly for tests.
func (a *App) Registry() registry.Registry {
	return a.reg
}

func (a *App) Run() error {
	go func() {
		a.logger.Info("Server starting", slog.String("addr", a.http.Addr))
		if err := a.http.ListenAndServe(); err != http.ErrServerClosed {
			a.logger.Error("HTTP server failed", slog.Any("error", err))
		}
	}()

	<-a.ctx.Done()
	return a.Shutdown()
}

// chatHandler upgrades an authenticated request into a pairwise chat
// session with the peer named in the path.
func (a *App) chatHandler(w http.ResponseWriter, r *http.Request) {
	reqMeta, ok := middleware.ReqMetadataFrom(r.Context())
	if !ok || reqMeta.User == nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	peer, err := strconv.ParseInt(r.PathValue("user_id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid peer user id", http.StatusBadRequest)
		return
	}

	connLogger := a.logger.With(
		slog.String("remoteAddr", reqMeta.IP),
		slog.Int64("userID", reqMeta.User.ID),
		slog.Int64("peerID", peer),
	)

	conn, ok := a.acceptConnection(w, r)
	if !ok {
		return
	}

	session := chat.NewPairSession(a.logger, a.reg, a.store, a.dispatcher, conn, *reqMeta.User, peer)
	if err := session.Start(); err != nil {
		connLogger.Error("Failed to start chat session", slog.Any("error", err))
		return
	}

	connLogger.Info("Chat session established", slog.String("roomKey", session.RoomKey()))
	<-conn.Done()
}

// supportHandler admits anyone into the shared support room; identity is
// attached when present but never required.
func (a *App) supportHandler(w http.ResponseWriter, r *http.Request) {
	reqMeta, _ := middleware.ReqMetadataFrom(r.Context())

	conn, ok := a.acceptConnection(w, r)
	if !ok {
		return
	}

	var user *identity.User
	if reqMeta != nil {
		user = reqMeta.User
	}
	session := chat.NewSupportSession(a.logger, a.reg, a.dispatcher, conn, user, a.config.Chat.AnonymousName)
	if err := session.Start(); err != nil {
		a.logger.Error("Failed to start support session", slog.Any("error", err))
		return
	}

	a.logger.Info("Support session established")
	<-conn.Done()
}

func (a *App) acceptConnection(w http.ResponseWriter, r *http.Request) (*transport.Connection, bool) {
	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		a.logger.Error("Failed to accept websocket connection", slog.Any("error", err))
		return nil, false
	}

	conn := transport.NewConnection(
		r.Context(),
		&a.wg,
		wsConn,
		transport.ConnectionConfig(a.config.Transport),
		a.logger,
	)
	return conn, true
}

// Shutdown runs the graceful shutdown sequence.
func (a *App) Shutdown() error {
	a.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.http.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// Close all active WebSocket connections.
	a.logger.Info("Closing all active connections...")
	for _, member := range a.reg.AllMembers() {
		member.Transport.Close(errors.New("graceful shutdown"))
	}

	// Wait for all connection goroutines to finish their cleanup.
	a.wg.Wait()
	a.logger.Info("Server shut down gracefully.")
	return nil
}
