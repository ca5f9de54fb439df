// Package ws is the WebSocket transport: it upgrades /ws requests, joins the
// hub and pumps frames between the socket and the session.
package ws

import (
	"errors"
	"net/http"
	"time"

	"collabhub/internal/hub"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type Options struct {
	WriteWait       time.Duration
	PongWait        time.Duration
	MaxMessageBytes int64
}

// pingPeriod must be < PongWait.
func (o Options) pingPeriod() time.Duration { return o.PongWait * 9 / 10 }

type WsServer struct {
	hub      *hub.Hub
	opts     Options
	upgrader websocket.Upgrader
}

func NewWsServer(h *hub.Hub, opts Options) *WsServer {
	return &WsServer{
		hub:  h,
		opts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true }, // dev‑only
		},
	}
}

// ---------------------------------------------------------------------------
//  Public: Gin entry‑point
// ---------------------------------------------------------------------------

func (s *WsServer) Handle(ginCtx *gin.Context) {
	roomID := ginCtx.Query("room_id")
	userID := ginCtx.Query("user_id")
	if roomID == "" || userID == "" {
		ginCtx.JSON(http.StatusBadRequest, gin.H{"error": "room_id and user_id are required"})
		return
	}

	rawConn, err := s.upgrader.Upgrade(ginCtx.Writer, ginCtx.Request, nil)
	if err != nil {
		zap.L().Warn("ws.upgrade", zap.Error(err))
		return
	}
	rawConn.SetReadLimit(s.opts.MaxMessageBytes)
	cc := &clientConn{rawConn: rawConn, writeWait: s.opts.WriteWait}

	sess, err := s.hub.Connect(roomID, userID)
	if err != nil {
		zap.L().Warn("ws.join",
			zap.String("room_id", roomID),
			zap.String("user_id", userID),
			zap.Error(err),
		)
		code := websocket.CloseInternalServerErr
		if errors.Is(err, hub.ErrShuttingDown) {
			code = websocket.CloseGoingAway
		}
		cc.closeWith(code, err.Error())
		_ = rawConn.Close()
		return
	}

	go s.writer(sess, cc)
	go s.reader(sess, cc)
}

// ---------------------------------------------------------------------------
//  Private helpers
// ---------------------------------------------------------------------------

// reader owns the read side. Whatever ends it, the session is closed.
func (s *WsServer) reader(sess *hub.Session, cc *clientConn) {
	defer func() {
		sess.Close()
		_ = cc.rawConn.Close()
	}()

	extend := func() error {
		return cc.rawConn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	}
	_ = extend()
	cc.rawConn.SetPongHandler(func(string) error {
		sess.Conn().Touch()
		return extend()
	})

	for {
		_, data, err := cc.rawConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				zap.L().Debug("ws.read", zap.String("user_id", sess.UserID()), zap.Error(err))
			}
			return
		}
		_ = extend()

		res := sess.Handle(data)
		if res.Dropped != nil {
			zap.L().Debug("ws.dropped",
				zap.String("room_id", sess.RoomID()),
				zap.String("user_id", sess.UserID()),
				zap.Error(res.Dropped),
			)
		}
	}
}

// writer drains the session's outbound queue and keeps the peer alive.
func (s *WsServer) writer(sess *hub.Session, cc *clientConn) {
	ticker := time.NewTicker(s.opts.pingPeriod())
	defer func() {
		ticker.Stop()
		sess.Close()
		_ = cc.rawConn.Close()
	}()

	out := sess.Conn().Outbound()
	done := sess.Conn().Done()
	for {
		select {
		case <-done:
			cc.closeWith(websocket.CloseNormalClosure, "")
			return
		case msg := <-out:
			if err := cc.write(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := cc.ping(); err != nil {
				return
			}
		}
	}
}
