package api

import (
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/fleetsentry/fleetsentry/internal/telemetry"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The service sits behind the fleet gateway, which enforces origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	streamWriteTimeout = 10 * time.Second
	streamReadLimit    = 256 * 1024
)

// streamFrame wraps one evaluation pushed to a websocket client.
type streamFrame struct {
	SessionID string     `json:"session_id"`
	Sequence  int        `json:"sequence"`
	Data      evaluation `json:"data"`
}

// TelemetryStream upgrades to a websocket and evaluates every telemetry
// sample the client sends, replying with the full pipeline output. Malformed
// frames are reported on the socket without tearing the session down.
func (h *Handlers) TelemetryStream(w http.ResponseWriter, r *http.Request) {
	role := roleFrom(r)
	if qr := r.URL.Query().Get("role"); qr != "" {
		role = qr
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	sessionID := uuid.NewString()
	h.logger.Info("telemetry stream opened",
		zap.String("session_id", sessionID),
		zap.String("role", role),
	)

	if m := h.obs.Metrics(); m != nil {
		m.StreamSessions.Inc()
		defer m.StreamSessions.Dec()
	}

	conn.SetReadLimit(streamReadLimit)

	// Keepalive pings so idle sessions survive intermediaries.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(h.streamInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteTimeout))
			}
		}
	}()

	seq := 0
	for {
		var sample telemetry.Sample
		if err := conn.ReadJSON(&sample); err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) || errors.Is(err, net.ErrClosed) {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					h.logger.Warn("telemetry stream read failed",
						zap.String("session_id", sessionID),
						zap.Error(err),
					)
				}
				return
			}
			// Decode failure on a live connection: report it and keep reading.
			conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if werr := conn.WriteJSON(map[string]string{"error": "invalid telemetry frame"}); werr != nil {
				return
			}
			continue
		}

		eval, err := h.evaluate(r, &sample, role)
		if err != nil {
			h.obs.RecordError(r.Context(), err, zap.String("session_id", sessionID))
			conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if werr := conn.WriteJSON(map[string]string{"error": "evaluation failed"}); werr != nil {
				return
			}
			continue
		}

		seq++
		conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
		if err := conn.WriteJSON(streamFrame{
			SessionID: sessionID,
			Sequence:  seq,
			Data:      eval,
		}); err != nil {
			h.logger.Info("telemetry stream closed",
				zap.String("session_id", sessionID),
				zap.Int("frames", seq),
			)
			return
		}
	}
}
