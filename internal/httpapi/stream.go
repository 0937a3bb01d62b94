package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/cryguard/internal/calibration"
)

// streamFrame is one message pushed on /calibration/stream.
type streamFrame struct {
	Active          bool                `json:"active"`
	Phase           calibration.Phase   `json:"phase"`
	IntervalSeconds int                 `json:"interval_seconds"`
	Status          *calibration.Status `json:"status,omitempty"`
}

const streamWriteTimeout = 5 * time.Second

// handleStream upgrades to a websocket and pushes the latest status snapshot
// whenever it changes, at most once per interval. Client messages are
// discarded.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("httpapi: websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	ctx := conn.CloseRead(r.Context())

	var sent uint64
	if err := s.pushIfChanged(ctx, conn, &sent, true); err != nil {
		return
	}

	ticker := time.NewTicker(s.streamInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case <-ticker.C:
			if err := s.pushIfChanged(ctx, conn, &sent, false); err != nil {
				if !errors.Is(err, context.Canceled) {
					slog.Debug("httpapi: stream write failed", "err", err)
				}
				return
			}
			ticker.Reset(s.streamInterval())
		}
	}
}

// pushIfChanged writes a frame when the published version moved past *sent.
// The first frame is always written so clients learn the control state.
func (s *Server) pushIfChanged(ctx context.Context, conn *websocket.Conn, sent *uint64, first bool) error {
	st, version := s.snapshot()
	if !first && version == *sent {
		return nil
	}
	frame := streamFrame{}
	if s.control != nil {
		c := s.control.Load()
		frame.Active = c.Active
		frame.Phase = c.Phase
		frame.IntervalSeconds = c.IntervalSeconds
	}
	if version > 0 {
		frame.Status = &st
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	if err := conn.Write(wctx, websocket.MessageText, data); err != nil {
		return err
	}
	*sent = version
	return nil
}

func (s *Server) streamInterval() time.Duration {
	if s.cfg.StreamInterval > 0 {
		return s.cfg.StreamInterval
	}
	n := calibration.DefaultInterval
	if s.control != nil {
		n = s.control.Load().IntervalSeconds
	}
	return time.Duration(calibration.ClampInterval(n)) * time.Second
}
