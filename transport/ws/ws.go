// Package ws provides a websocket transport speaking the "wamp.2.json"
// subprotocol. The Server side upgrades HTTP requests and hands each
// connection to a handler (typically Router.Attach); Dial produces the
// client side.
package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/wampkit/wampkit/transport"
	"github.com/wampkit/wampkit/wamp"
)

// Subprotocol is the websocket subprotocol negotiated by this transport.
const Subprotocol = "wamp.2.json"

const (
	writeTimeout     = 10 * time.Second
	pongTimeout      = 60 * time.Second
	pingInterval     = 25 * time.Second
	handshakeTimeout = 10 * time.Second
)

// Handler consumes one accepted connection and blocks until the session
// is over.
type Handler func(conn transport.Conn)

// Server upgrades HTTP requests to websocket connections and dispatches
// them to Handle.
type Server struct {
	Handle Handler
	Logger *slog.Logger

	upgrader websocket.Upgrader
	initOnce sync.Once
}

var _ http.Handler = (*Server)(nil)

func (s *Server) init() {
	s.upgrader = websocket.Upgrader{
		Subprotocols:     []string{Subprotocol},
		HandshakeTimeout: handshakeTimeout,
	}
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.initOnce.Do(s.init)

	c, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		s.Logger.Debug("websocket upgrade failed", "err", err, "remote", r.RemoteAddr)
		return
	}
	if c.Subprotocol() != Subprotocol {
		_ = c.Close()
		s.Logger.Debug("websocket subprotocol not negotiated", "remote", r.RemoteAddr)
		return
	}
	s.Handle(newConn(c))
}

// ListenAndServe serves websocket upgrades at addr until ctx is done,
// then shuts the HTTP server down gracefully.
func ListenAndServe(ctx context.Context, addr string, handler Handler, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	srv := &http.Server{
		Addr:    addr,
		Handler: &Server{Handle: handler, Logger: logger},
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Dial connects to a router's websocket endpoint.
func Dial(ctx context.Context, url string, header http.Header) (transport.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
		Subprotocols:     []string{Subprotocol},
	}
	c, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}
	return newConn(c), nil
}

type wsConn struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	closeOnce sync.Once
	done      chan struct{}
}

var _ transport.Conn = (*wsConn)(nil)

func newConn(c *websocket.Conn) *wsConn {
	w := &wsConn{conn: c, done: make(chan struct{})}

	_ = c.SetReadDeadline(time.Now().Add(pongTimeout))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	c.SetPingHandler(func(data string) error {
		_ = c.SetReadDeadline(time.Now().Add(pongTimeout))
		return c.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	go w.pingLoop()
	return w
}

func (w *wsConn) pingLoop() {
	t := time.NewTicker(pingInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			w.writeMu.Lock()
			err := w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second))
			w.writeMu.Unlock()
			if err != nil {
				_ = w.Close()
				return
			}
		case <-w.done:
			return
		}
	}
}

func (w *wsConn) Send(_ context.Context, msg wamp.Message) error {
	select {
	case <-w.done:
		return transport.ErrClosed
	default:
	}
	data, err := encodeMessage(msg)
	if err != nil {
		return err
	}
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := w.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		_ = w.Close()
		return transport.ErrClosed
	}
	return nil
}

func (w *wsConn) Receive(ctx context.Context) (wamp.Message, error) {
	// gorilla reads cannot be interrupted by a context; a canceled ctx
	// tears the connection down instead, which unblocks ReadMessage.
	stop := context.AfterFunc(ctx, func() { _ = w.Close() })
	defer stop()

	_, data, err := w.conn.ReadMessage()
	if err != nil {
		_ = w.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, transport.ErrClosed
	}
	return decodeMessage(data)
}

func (w *wsConn) Close() error {
	w.closeOnce.Do(func() {
		close(w.done)
		w.writeMu.Lock()
		_ = w.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		w.writeMu.Unlock()
		_ = w.conn.Close()
	})
	return nil
}

func (w *wsConn) RemoteAddr() string { return w.conn.RemoteAddr().String() }
