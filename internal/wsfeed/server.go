// Package wsfeed serves capture environments over websocket connections.
// Every connection owns one env.Environment for its lifetime.
package wsfeed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"go2tv.app/acapture/capture"
	"go2tv.app/acapture/env"
	"go2tv.app/acapture/frame"
	"go2tv.app/acapture/internal/logging"
)

const (
	maxRequestSize  = 4 << 10
	shutdownTimeout = 5 * time.Second
)

var log = logging.L("wsfeed")

type Server struct {
	backend  capture.Backend
	params   env.Params
	upgrader websocket.Upgrader
}

func New(b capture.Backend, p env.Params) *Server {
	return &Server{
		backend: b,
		params:  p,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 << 10,
		},
	}
}

// Handler routes GET /env to the websocket endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /env", s.serveEnv)
	return logRequests(mux)
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("websocket feed listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) serveEnv(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &client{conn: conn, remote: r.RemoteAddr}
	defer c.close()
	conn.SetReadLimit(maxRequestSize)

	e, err := env.New(s.backend, s.params, env.WithWarner(env.WarnFunc(c.warn)))
	if err != nil {
		_ = c.send(Message{Type: TypeError, Message: err.Error()})
		return
	}
	defer func() {
		if err := e.Release(); err != nil {
			log.Warn("release environment", zap.String("remote", c.remote), zap.Error(err))
		}
	}()

	log.Info("client connected", zap.String("remote", c.remote))
	for {
		var req Message
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("client read error", zap.String("remote", c.remote), zap.Error(err))
			}
			log.Info("client disconnected", zap.String("remote", c.remote))
			return
		}
		if err := s.dispatch(c, e, req); err != nil {
			log.Debug("client write error", zap.String("remote", c.remote), zap.Error(err))
			return
		}
	}
}

func (s *Server) dispatch(c *client, e *env.Environment, req Message) error {
	switch req.Type {
	case TypeReset:
		return c.sendObservation(e.Reset())
	case TypeStep:
		return c.sendObservation(e.Step())
	case TypeClose:
		e.Close()
		return c.send(Message{Type: TypeClosed})
	case TypeTargets:
		targets, err := env.ListTargets(s.backend)
		if err != nil {
			return c.send(Message{Type: TypeError, Message: err.Error()})
		}
		if targets == nil {
			targets = []env.TargetInfo{}
		}
		return c.send(Message{Type: TypeTargets, Targets: targets})
	default:
		return c.send(Message{Type: TypeError, Message: fmt.Sprintf("unknown request type %q", req.Type)})
	}
}

type client struct {
	conn   *websocket.Conn
	remote string
	mu     sync.Mutex
}

func (c *client) send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(msg)
}

func (c *client) warn(message string) {
	if err := c.send(Message{Type: TypeWarning, Message: message}); err != nil {
		log.Debug("dropping warning", zap.String("remote", c.remote), zap.Error(err))
	}
}

func (c *client) sendObservation(image frame.ImageArray, info env.Info, err error) error {
	if err != nil {
		return c.send(Message{Type: TypeError, Message: err.Error()})
	}

	// The header and its payload must stay adjacent on the wire.
	c.mu.Lock()
	defer c.mu.Unlock()
	header := Message{Type: TypeFrame, Shape: image.Shape[:], Info: &info}
	if err := c.conn.WriteJSON(header); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.BinaryMessage, image.Pack())
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	_ = c.conn.Close()
}
