package appwrite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

const (
	realtimeHandshakeTimeout = 10 * time.Second
	realtimePingInterval     = 20 * time.Second
	realtimeWriteTimeout     = 5 * time.Second
	eventBufferSize          = 16
)

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type authResponse struct {
	To      string `json:"to"`
	Success bool   `json:"success"`
}

// Stream is an open realtime connection. Events is closed when the
// connection ends, whether by Close or by the server.
type Stream struct {
	conn   *websocket.Conn
	events chan Event
	cancel context.CancelFunc
	done   chan struct{}

	closeOnce sync.Once
	mu        sync.Mutex
	err       error
}

// Events delivers change notifications in arrival order.
func (s *Stream) Events() <-chan Event { return s.events }

// Close ends the connection. It is safe to call more than once.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		_ = s.conn.Close()
	})
	<-s.done
	return nil
}

// Err is why the stream ended, nil while it runs or after a local Close.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (c *Client) realtimeURL(channels []string) (string, error) {
	u, err := url.Parse(c.cfg.Endpoint)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/realtime"
	q := url.Values{}
	q.Set("project", c.cfg.Project)
	for _, ch := range channels {
		q.Add("channels[]", ch)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Subscribe opens a realtime connection for channels and authenticates it
// with the client's session. ctx bounds the handshake and the lifetime of
// the stream.
func (c *Client) Subscribe(ctx context.Context, channels []string) (*Stream, error) {
	if len(channels) == 0 {
		return nil, remoteFailure("subscribe", errors.New("no channels"))
	}
	u, err := c.realtimeURL(channels)
	if err != nil {
		return nil, remoteFailure("subscribe", err)
	}

	header := http.Header{}
	c.setHeaders(header)
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: realtimeHandshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, u, header)
	if err != nil {
		return nil, remoteFailure("subscribe", fmt.Errorf("dial: %w", err))
	}

	success := false
	defer func() {
		if !success {
			conn.Close()
		}
	}()

	if err := c.authenticate(conn); err != nil {
		return nil, remoteFailure("subscribe", err)
	}
	success = true

	streamCtx, cancel := context.WithCancel(ctx)
	s := &Stream{
		conn:   conn,
		events: make(chan Event, eventBufferSize),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.run(streamCtx)
	return s, nil
}

// authenticate sends the session over the socket; browsers rely on
// cookies instead, which a terminal client does not have.
func (c *Client) authenticate(conn *websocket.Conn) error {
	token, _ := c.credentials()
	if token == "" {
		return nil
	}
	payload, err := json.Marshal(map[string]string{"session": token})
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(realtimeWriteTimeout))
	if err := conn.WriteJSON(frame{Type: "authentication", Data: payload}); err != nil {
		return fmt.Errorf("send authentication: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(realtimeHandshakeTimeout))
	defer conn.SetReadDeadline(time.Time{})
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			return fmt.Errorf("read authentication response: %w", err)
		}
		switch f.Type {
		case "connected":
			continue
		case "error":
			var apiErr APIError
			_ = json.Unmarshal(f.Data, &apiErr)
			return fmt.Errorf("authentication rejected: %w", &apiErr)
		case "response":
			var r authResponse
			if err := json.Unmarshal(f.Data, &r); err != nil {
				return fmt.Errorf("authentication response: %w", err)
			}
			if r.To == "authentication" {
				if !r.Success {
					return errors.New("authentication rejected")
				}
				return nil
			}
		}
	}
}

func (s *Stream) run(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.readLoop(gctx) })
	g.Go(func() error { return s.heartbeat(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		// unblocks ReadJSON
		return s.conn.Close()
	})

	err := g.Wait()
	if ctx.Err() != nil {
		// closed locally
		err = nil
	}
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	if err != nil {
		slog.Warn("realtime stream ended", "error", err)
	}
	close(s.events)
	close(s.done)
}

func (s *Stream) readLoop(ctx context.Context) error {
	for {
		var f frame
		if err := s.conn.ReadJSON(&f); err != nil {
			return fmt.Errorf("read: %w", err)
		}
		switch f.Type {
		case "event":
			var ev Event
			if err := json.Unmarshal(f.Data, &ev); err != nil {
				slog.Warn("bad realtime event", "error", err)
				continue
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case s.events <- ev:
			}
		case "error":
			var apiErr APIError
			_ = json.Unmarshal(f.Data, &apiErr)
			slog.Warn("realtime error", "error", &apiErr)
		default:
			slog.Debug("realtime frame", "type", f.Type)
		}
	}
}

func (s *Stream) heartbeat(ctx context.Context) error {
	t := time.NewTicker(realtimePingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			s.conn.SetWriteDeadline(time.Now().Add(realtimeWriteTimeout))
			if err := s.conn.WriteJSON(frame{Type: "ping"}); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		}
	}
}
