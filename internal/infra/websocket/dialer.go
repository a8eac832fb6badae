package websocket

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/courtvision/analysis-client/internal/domain/entity"
	"github.com/courtvision/analysis-client/internal/domain/port"
	gws "github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type DialerConfig struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadLimit        int64
}

func DefaultDialerConfig() DialerConfig {
	return DialerConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		ReadLimit:        16 << 20,
	}
}

type Dialer struct {
	dialer *gws.Dialer
	cfg    DialerConfig
	logger *zap.Logger
}

var _ port.SocketDialer = (*Dialer)(nil)

func NewDialer(cfg DialerConfig, logger *zap.Logger) *Dialer {
	return &Dialer{
		dialer: &gws.Dialer{
			Proxy:            gws.DefaultDialer.Proxy,
			HandshakeTimeout: cfg.HandshakeTimeout,
			ReadBufferSize:   64 << 10,
			WriteBufferSize:  64 << 10,
		},
		cfg:    cfg,
		logger: logger,
	}
}

func (d *Dialer) Dial(ctx context.Context, url string) (port.Socket, error) {
	conn, resp, err := d.dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			d.logger.Warn("websocket handshake rejected",
				zap.String("url", url),
				zap.Int("status", resp.StatusCode),
			)
		}
		return nil, &entity.SocketError{Endpoint: url, Err: err}
	}
	if d.cfg.ReadLimit > 0 {
		conn.SetReadLimit(d.cfg.ReadLimit)
	}
	d.logger.Debug("websocket connected", zap.String("url", url))
	return &Conn{conn: conn, url: url, writeTimeout: d.cfg.WriteTimeout}, nil
}

type Conn struct {
	conn         *gws.Conn
	url          string
	writeTimeout time.Duration
	closeOnce    sync.Once
	closeErr     error
}

// ReadMessage returns the next data message, skipping control frames. A
// clean close by the peer is reported as io.EOF.
func (c *Conn) ReadMessage() ([]byte, error) {
	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			if IsNormalClose(err) {
				return nil, io.EOF
			}
			return nil, &entity.SocketError{Endpoint: c.url, Err: err}
		}
		if mt == gws.TextMessage || mt == gws.BinaryMessage {
			return data, nil
		}
	}
}

func (c *Conn) WriteMessage(data []byte) error {
	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if err := c.conn.WriteMessage(gws.TextMessage, data); err != nil {
		return &entity.SocketError{Endpoint: c.url, Err: err}
	}
	return nil
}

func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		deadline := time.Now().Add(time.Second)
		_ = c.conn.WriteControl(gws.CloseMessage, gws.FormatCloseMessage(gws.CloseNormalClosure, ""), deadline)
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// IsNormalClose reports whether err is the peer closing the socket cleanly.
func IsNormalClose(err error) bool {
	return gws.IsCloseError(err, gws.CloseNormalClosure, gws.CloseGoingAway)
}
