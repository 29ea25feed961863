// Package httpserver exposes the session, buffer, and connection surfaces
// over HTTP, plus a WebSocket stream of display updates.
package httpserver

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/chadiek/live-session/internal/buffer"
	"github.com/chadiek/live-session/internal/session"
)

// Handlers bundles the HTTP surface's dependencies.
type Handlers struct {
	Sessions *session.Orchestrator
	Buffer   *buffer.Buffer
}

func NewHandlers(orch *session.Orchestrator, buf *buffer.Buffer) Handlers {
	return Handlers{Sessions: orch, Buffer: buf}
}

func (h Handlers) Register(e *echo.Echo) {
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	e.GET("/api/connection", h.connectionStatus)

	e.GET("/api/buffer", h.bufferItems)
	e.GET("/api/buffer/stats", h.bufferStats)
	e.GET("/api/buffer/search", h.bufferSearch)
	e.GET("/api/buffer/export", h.bufferExport)
	e.POST("/api/buffer/import", h.bufferImport)

	e.POST("/api/sessions", h.startSession)
	e.POST("/api/sessions/:id/pause", h.pauseSession)
	e.POST("/api/sessions/:id/resume", h.resumeSession)
	e.POST("/api/sessions/:id/end", h.endSession)

	e.GET("/ws/display", h.displayStream)
}

func (h Handlers) connectionStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"connection": h.Sessions.ConnectionState(),
		"health":     h.Sessions.Health(),
		"latency_ms": h.Sessions.Latency().Milliseconds(),
	})
}

func (h Handlers) bufferItems(c echo.Context) error {
	return c.JSON(http.StatusOK, h.Buffer.Items())
}

func (h Handlers) bufferStats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.Buffer.Statistics())
}

// bufferSearch applies whichever filters the query names. Filters compose by
// narrowing: q first, then type, speaker, and time range.
func (h Handlers) bufferSearch(c echo.Context) error {
	items := h.Buffer.Items()
	if q := c.QueryParam("q"); q != "" {
		items = h.Buffer.Search(q)
	}
	if t := c.QueryParam("type"); t != "" {
		items = intersect(items, h.Buffer.SearchByType(buffer.ItemType(t)))
	}
	if sp := c.QueryParam("speaker"); sp != "" {
		items = intersect(items, h.Buffer.SearchBySpeaker(sp))
	}
	if from, to := c.QueryParam("from"), c.QueryParam("to"); from != "" || to != "" {
		fromMs, err := parseMs(from, 0)
		if err != nil {
			return c.String(http.StatusBadRequest, "invalid from")
		}
		toMs, err := parseMs(to, time.Now().UnixMilli())
		if err != nil {
			return c.String(http.StatusBadRequest, "invalid to")
		}
		items = intersect(items, h.Buffer.SearchByTimeRange(fromMs, toMs))
	}
	if items == nil {
		items = []buffer.DisplayItem{}
	}
	return c.JSON(http.StatusOK, items)
}

func parseMs(raw string, def int64) (int64, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

func intersect(a, b []buffer.DisplayItem) []buffer.DisplayItem {
	ids := make(map[string]struct{}, len(b))
	for _, it := range b {
		ids[it.ID] = struct{}{}
	}
	var out []buffer.DisplayItem
	for _, it := range a {
		if _, ok := ids[it.ID]; ok {
			out = append(out, it)
		}
	}
	return out
}

func (h Handlers) bufferExport(c echo.Context) error {
	data, err := h.Buffer.ExportJSON()
	if err != nil {
		return c.String(http.StatusInternalServerError, "export failed")
	}
	return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, data)
}

func (h Handlers) bufferImport(c echo.Context) error {
	data, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.String(http.StatusBadRequest, "read body failed")
	}
	if err := h.Buffer.ImportJSON(data); err != nil {
		return c.String(http.StatusBadRequest, "invalid import payload")
	}
	return c.JSON(http.StatusOK, map[string]int{"imported": h.Buffer.Len()})
}

type startSessionRequest struct {
	StudentID string `json:"student_id"`
	Topic     string `json:"topic"`
}

func (h Handlers) startSession(c echo.Context) error {
	var req startSessionRequest
	if err := c.Bind(&req); err != nil {
		return c.String(http.StatusBadRequest, "invalid request body")
	}
	if req.StudentID == "" {
		return c.String(http.StatusBadRequest, "student_id is required")
	}
	s, err := h.Sessions.StartSession(c.Request().Context(), req.StudentID, req.Topic)
	if err != nil {
		if err == session.ErrSessionActive {
			return c.String(http.StatusConflict, err.Error())
		}
		return c.String(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusCreated, s)
}

func (h Handlers) withSession(c echo.Context, fn func()) error {
	cur, ok := h.Sessions.Current()
	if !ok || cur.ID != c.Param("id") {
		return c.String(http.StatusNotFound, "no such session")
	}
	fn()
	cur, _ = h.Sessions.Current()
	return c.JSON(http.StatusOK, cur)
}

func (h Handlers) pauseSession(c echo.Context) error {
	return h.withSession(c, h.Sessions.Pause)
}

func (h Handlers) resumeSession(c echo.Context) error {
	return h.withSession(c, h.Sessions.Resume)
}

func (h Handlers) endSession(c echo.Context) error {
	id := c.Param("id")
	return h.withSession(c, func() { h.Sessions.EndSession(id) })
}
