package http_server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/abrar71/swaggerfilesv2" // swagger embed files

	"studyhubgo/internal/auth"
	"studyhubgo/internal/http/presencehandler"
	"studyhubgo/internal/ws"
)

type httpServer struct {
	listenPort uint16
	srv        http.Server
	ln         net.Listener
	wsSrv      *ws.WsServer
	auth       *auth.Authenticator
	history    presencehandler.History
	ctx        context.Context
}

// NewHttpServer wires the realtime endpoint and the REST views. history may
// be nil when no message store is configured.
func NewHttpServer(
	ctx context.Context,
	listenPort uint16,
	wsSrv *ws.WsServer,
	authenticator *auth.Authenticator,
	history presencehandler.History,
) *httpServer {
	return &httpServer{
		listenPort: listenPort,
		wsSrv:      wsSrv,
		auth:       authenticator,
		history:    history,
		ctx:        ctx,
	}
}

// Handler builds the gin engine. Split out of Start so tests can mount it on
// httptest.
func (h *httpServer) Handler() http.Handler {
	routerEngine := gin.New()

	routerEngine.Use(ginzap.Ginzap(zap.L(), time.RFC3339, true))
	routerEngine.Use(ginzap.RecoveryWithZap(zap.L(), true))

	// Swagger UI and API specs
	routerEngine.StaticFS("/swagger-apis", http.FS(swaggerfilesv2.FS))
	routerEngine.Static("/api-specs", "api_specs")

	routerEngine.GET("/healthz", presencehandler.Health)

	// websocket endpoint, authenticated by the ?token= query parameter
	routerEngine.GET("/ws", h.wsSrv.Handle)

	// REST views
	api := routerEngine.Group("/", auth.BearerMiddleware(h.auth))
	ph := presencehandler.New(h.wsSrv, h.history)
	ph.Register(api)

	return routerEngine
}

// Start blocks serving until Dispose is called.
func (h *httpServer) Start() error {
	var err error
	listenAddr := fmt.Sprintf(":%d", h.listenPort)
	h.ln, err = net.Listen("tcp", listenAddr)
	if err != nil {
		return err
	}

	h.srv = http.Server{
		Handler:           h.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	zap.L().Info("http.listen", zap.String("addr", listenAddr))
	if err := h.srv.Serve(h.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Dispose gracefully shuts the HTTP server down.
// It waits up to 10 s for in‑flight requests to finish. Hijacked websocket
// connections are not tracked here; the ws server closes those.
func (h *httpServer) Dispose() error {
	// h.ctx is usually already cancelled by the time we get here
	ctx, cancel := context.WithTimeout(context.WithoutCancel(h.ctx), 10*time.Second)
	defer cancel()

	if err := h.srv.Shutdown(ctx); err != nil {
		zap.L().Error("http_dispose", zap.Error(err))
		return err // e.g. active conns didn’t finish in time
	}
	return nil
}
