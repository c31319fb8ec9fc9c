package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teemow/inboxdigest/internal/instrumentation"
	"github.com/teemow/inboxdigest/internal/logging"
	"github.com/teemow/inboxdigest/internal/pipeline"
)

// Websocket message types.
const (
	wsTypeProgress = "progress"
	wsTypeComplete = "complete"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsReadTimeout  = 30 * time.Second
)

// ProgressMessage is streamed to websocket clients while a report runs.
type ProgressMessage struct {
	Type    string `json:"type"`
	RunID   string `json:"run_id"`
	Stage   string `json:"stage"`
	Message string `json:"message"`
	Count   int    `json:"count,omitempty"`
	Total   int    `json:"total,omitempty"`
}

// CompleteMessage ends a websocket report run.
type CompleteMessage struct {
	Type string `json:"type"`
	ReportResponse
}

// wsConn serializes writes to one websocket connection.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteJSON(v)
}

// stageMessage renders a progress event for people.
func stageMessage(e pipeline.Event) string {
	switch e.Stage {
	case pipeline.StageListing:
		return "Listing messages"
	case pipeline.StageFetching:
		return fmt.Sprintf("Fetched %d of %d messages", e.Done, e.Total)
	case pipeline.StageSelecting:
		return "Selecting emails for analysis"
	case pipeline.StageAnalyzing:
		return "Analyzing emails"
	case pipeline.StageStoring:
		return "Storing report"
	default:
		return e.Stage
	}
}

// handleReportWebSocket serves GET /ws/report. The client sends one report
// request; the server streams progress and closes after the complete message.
func (s *HTTPServer) handleReportWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("websocket upgrade failed", logging.Err(err))
		return
	}
	defer conn.Close()

	c := &wsConn{conn: conn}
	conn.SetReadLimit(maxRequestBytes)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

	var req pipeline.Request
	if err := conn.ReadJSON(&req); err != nil {
		_ = c.writeJSON(CompleteMessage{
			Type:           wsTypeComplete,
			ReportResponse: newReportResponse(nil, fmt.Errorf("%w: failed to read report request: %v", pipeline.ErrInvalidRequest, err)),
		})
		return
	}
	_ = conn.SetReadDeadline(time.Time{})
	req.Trigger = instrumentation.TriggerWebSocket

	ctx, cancel := context.WithCancel(s.serverContext.Context())
	defer cancel()
	if pipeline.IsTrustedCaller(r.Context()) {
		ctx = pipeline.WithTrustedCaller(ctx)
	}
	if err := s.serverContext.Pipeline().AuthorizeRun(ctx); err != nil {
		_ = c.writeJSON(CompleteMessage{Type: wsTypeComplete, ReportResponse: newReportResponse(nil, err)})
		return
	}

	// Hijacked connections keep their request context alive, so a closed
	// socket is detected by reading.
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				cancel()
				return
			}
		}
	}()

	report, err := s.serverContext.Pipeline().RunWithProgress(ctx, req, func(e pipeline.Event) {
		_ = c.writeJSON(ProgressMessage{
			Type:    wsTypeProgress,
			RunID:   e.RunID,
			Stage:   e.Stage,
			Message: stageMessage(e),
			Count:   e.Done,
			Total:   e.Total,
		})
	})
	if err != nil {
		slog.Warn("websocket report generation failed", logging.Operation("generate_report"), logging.UserHash(req.UserEmail), logging.Err(err))
	}

	_ = c.writeJSON(CompleteMessage{Type: wsTypeComplete, ReportResponse: newReportResponse(report, err)})
	c.mu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(wsWriteTimeout))
	c.mu.Unlock()
}
