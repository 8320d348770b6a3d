package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin enforcement happens in the CORS layer; the socket carries no
	// privileged operations, only the session's own progress.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	streamFrameInterval = 250 * time.Millisecond
	streamWriteTimeout  = 5 * time.Second
)

// progressFrame is one stream update. Balance is present only on frames
// where a credit just landed, so clients animate the ring from progress and
// refresh the counter only when it actually changed.
type progressFrame struct {
	Progress float64 `json:"progress"`
	FeedSize int     `json:"feed_size"`
	Balance  *int64  `json:"balance,omitempty"`
}

// sessionStream pushes accrual progress over a websocket until the session
// closes or the client disconnects.
func (h *handler) sessionStream(c *gin.Context) {
	sess, err := h.app.Sessions.Get(c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		h.log.WithError(err).WithField("session_id", sess.ID()).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	// Reader goroutine: we never expect client frames, but reading is what
	// surfaces the close handshake.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(streamFrameInterval)
	defer ticker.Stop()

	ctx := c.Request.Context()
	last := h.app.Accrual.Progress(sess)

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			if _, err := h.app.Sessions.Get(sess.ID()); err != nil {
				// Session closed; end the stream cleanly.
				deadline := time.Now().Add(streamWriteTimeout)
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"), deadline)
				return
			}

			frame := progressFrame{
				Progress: h.app.Accrual.Progress(sess),
				FeedSize: sess.FeedSize(),
			}
			// A wrap in the fraction means an interval elapsed since the
			// previous frame; include the fresh balance.
			if frame.Progress < last {
				if balance, err := h.app.Sessions.Balance(ctx, sess.ID()); err == nil {
					frame.Balance = &balance
				}
			}
			last = frame.Progress

			conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
		}
	}
}
