package connection

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

const wsControlTimeout = 5 * time.Second

// wsTransport adapts a gorilla websocket connection to the Transport interface.
type wsTransport struct {
	conn *websocket.Conn
}

// DialWebSocket is the default Dialer.
func DialWebSocket(ctx context.Context, url string) (Transport, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &wsTransport{conn: conn}, nil
}

func (t *wsTransport) ReadMessage() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, ErrClosedNormally
		}
		return nil, err
	}
	return data, nil
}

func (t *wsTransport) WriteMessage(payload []byte) error {
	return t.conn.WriteMessage(websocket.TextMessage, payload)
}

func (t *wsTransport) WritePing() error {
	return t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsControlTimeout))
}

func (t *wsTransport) SetPongHandler(fn func()) {
	t.conn.SetPongHandler(func(string) error {
		fn()
		return nil
	})
}

func (t *wsTransport) Close() error {
	_ = t.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(wsControlTimeout),
	)
	return t.conn.Close()
}
