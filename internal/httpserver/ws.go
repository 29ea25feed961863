package httpserver

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/chadiek/live-session/internal/buffer"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// displayStream upgrades to WebSocket and pushes display updates. The client
// first receives the full buffer, then only the items added by each change.
// A single writer goroutine owns the connection; buffer callbacks enqueue and
// return so a slow client never stalls the pipeline.
func (h Handlers) displayStream(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	out := make(chan []buffer.DisplayItem, 64)
	out <- h.Buffer.Items()

	unsub := h.Buffer.SubscribeChanges(func(added []buffer.DisplayItem) {
		batch := make([]buffer.DisplayItem, len(added))
		copy(batch, added)
		select {
		case out <- batch:
		default:
			log.Printf("ws: display client too slow, dropping batch of %d", len(batch))
		}
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	defer func() {
		unsub()
		_ = ws.Close()
	}()
	for {
		select {
		case batch := <-out:
			if err := ws.WriteJSON(batch); err != nil {
				return nil
			}
		case <-done:
			return nil
		}
	}
}
