package realtime

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is one physical push connection.
type Transport interface {
	// Read blocks until the next event arrives or the transport fails.
	Read() (Event, error)

	// Write sends an event to the server.
	Write(Event) error

	// Close closes the transport and unblocks Read.
	Close() error
}

// Dialer opens transports authenticated with a bearer token.
type Dialer interface {
	Dial(ctx context.Context, token string) (Transport, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, token string) (Transport, error)

// Dial calls f(ctx, token).
func (f DialerFunc) Dial(ctx context.Context, token string) (Transport, error) {
	return f(ctx, token)
}

// WebsocketDialer dials the push endpoint over WebSocket. The token is sent
// as an Authorization header at handshake and as a token query parameter.
type WebsocketDialer struct {
	// URL is the ws:// or wss:// push endpoint.
	URL string

	// HandshakeTimeout bounds the opening handshake (default 10s).
	HandshakeTimeout time.Duration

	// WriteTimeout bounds a single write (default 10s).
	WriteTimeout time.Duration
}

// NewWebsocketDialer creates a dialer for the push endpoint at rawURL.
func NewWebsocketDialer(rawURL string) *WebsocketDialer {
	return &WebsocketDialer{
		URL:              rawURL,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
	}
}

// Dial implements Dialer.
func (d *WebsocketDialer) Dial(ctx context.Context, token string) (Transport, error) {
	u, err := url.Parse(d.URL)
	if err != nil {
		return nil, fmt.Errorf("realtime: parse url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("realtime: dial: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("realtime: dial: %w", err)
	}

	writeTimeout := d.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &wsTransport{conn: conn, writeTimeout: writeTimeout}, nil
}

// wsTransport serializes writes; gorilla allows one concurrent writer.
type wsTransport struct {
	conn         *websocket.Conn
	writeMu      sync.Mutex
	writeTimeout time.Duration
}

func (t *wsTransport) Read() (Event, error) {
	for {
		_, msg, err := t.conn.ReadMessage()
		if err != nil {
			return Event{}, err
		}
		ev, err := DecodeFrame(msg)
		if err != nil {
			// Skip frames we cannot decode rather than dropping the connection.
			continue
		}
		return ev, nil
	}
}

func (t *wsTransport) Write(ev Event) error {
	data, err := EncodeFrame(ev)
	if err != nil {
		return err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Close() error {
	t.writeMu.Lock()
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	t.writeMu.Unlock()
	return t.conn.Close()
}
