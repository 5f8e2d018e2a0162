// Package server exposes the bridge over HTTP on loopback: the /ws WebSocket
// channel clients speak the protocol on, and a /status health probe.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tillbridge/tillbridge/internal/dispatch"
	"github.com/tillbridge/tillbridge/internal/hub"
	"github.com/tillbridge/tillbridge/internal/model"
	"github.com/tillbridge/tillbridge/internal/scanner"
)

const (
	pongWait     = 90 * time.Second
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second
)

// Server wires the WebSocket endpoint to the dispatcher and the hub.
type Server struct {
	dispatcher *dispatch.Dispatcher
	hub        *hub.Hub
	upgrader   websocket.Upgrader
	log        zerolog.Logger
}

// New builds the server.
func New(dispatcher *dispatch.Dispatcher, h *hub.Hub, log zerolog.Logger) *Server {
	return &Server{
		dispatcher: dispatcher,
		hub:        h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The daemon binds loopback; browser pages of any origin may
			// connect to their local bridge.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log: log.With().Str("component", "server").Logger(),
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/status", s.handleStatus)
	return mux
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// PumpScans forwards detected barcodes to every attached client. Run it as a
// goroutine next to the server.
func (s *Server) PumpScans(ctx context.Context, results <-chan scanner.Result) {
	for {
		select {
		case <-ctx.Done():
			return
		case r := <-results:
			s.hub.Broadcast(model.NewBarcodeEvent(r.Value, r.Kind))
		}
	}
}

// handleWS upgrades the connection and runs its read loop. The status
// snapshot is sent before the client joins the broadcast set, so the client
// never sees a broadcast that predates its snapshot.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := newClient(conn)
	defer conn.Close()

	if err := c.Send(s.dispatcher.Status()); err != nil {
		s.log.Warn().Err(err).Str("conn_id", c.ID()).Msg("snapshot send failed")
		return
	}

	s.hub.Register(c)
	defer s.hub.Unregister(c)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go s.keepalive(ctx, conn)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug().Err(err).Str("conn_id", c.ID()).Msg("read loop ended")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))
		s.dispatcher.Handle(r.Context(), c, raw)
	}
}

// keepalive pings so half-dead connections are detected. Control frames may
// be written concurrently with data frames.
func (s *Server) keepalive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// handleStatus is the HTTP health probe: process liveness plus a summary of
// what the bridge currently sees.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.dispatcher.Status()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":         "ok",
		"version":        status.Version,
		"printer_count":  len(status.Printers),
		"scanner_active": status.Scanner,
		"client_count":   s.hub.Count(),
	})
}
