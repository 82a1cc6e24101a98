package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/luvhive/luvhive-backend/internal/models"
	"github.com/luvhive/luvhive-backend/internal/service"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// 2000자 메시지 + JSON 여유분
	maxMessageSize = 16 * 1024

	inboundTimeout = 5 * time.Second
)

// 클라이언트 전용 응답 타입
const (
	EventMessageSent = "message_sent"
	EventError       = "error"
)

// InboundHandler 클라이언트가 보낸 프레임 처리 (service.ChatService)
type InboundHandler interface {
	SendMessage(ctx context.Context, matchID string, senderID int64, text string) (*models.SendResult, error)
	RelayTyping(ctx context.Context, matchID string, userID int64, isTyping bool) error
}

// inboundFrame {"type":"typing","is_typing":true} 또는 {"type":"message","text":"..."}
type inboundFrame struct {
	Type     string `json:"type"`
	IsTyping bool   `json:"is_typing"`
	Text     string `json:"text"`
}

// Session 인증된 연결 정보
type Session struct {
	MatchID   string
	UserID    int64
	PartnerID int64
	ExpiresAt time.Time
}

// Client 매치 하나에 대한 사용자 한 명의 연결
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan *Envelope
	handler   InboundHandler
	matchID   string
	userID    int64
	partnerID int64
	expiresAt time.Time
	logger    *zap.Logger
}

func (c *Client) key() clientKey {
	return clientKey{matchID: c.matchID, userID: c.userID}
}

// Serve WebSocket 업그레이드 후 클라이언트 시작
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, session Session, handler InboundHandler) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := &Client{
		hub:       h,
		conn:      conn,
		send:      make(chan *Envelope, 256),
		handler:   handler,
		matchID:   session.MatchID,
		userID:    session.UserID,
		partnerID: session.PartnerID,
		expiresAt: session.ExpiresAt,
		logger:    h.logger.With(zap.String("matchId", session.MatchID), zap.Int64("userId", session.UserID)),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return errors.New("hub stopped")
	}

	go client.writePump()
	go client.readPump()
	return nil
}

// readPump 클라이언트 프레임 수신 (typing, message) 및 pong 처리
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket read error", zap.Error(err))
			}
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.reply(EventError, errorPayload("invalid_frame"))
			continue
		}

		if !c.handle(frame) {
			return
		}
	}
}

// handle 프레임 하나 처리. 연결을 끊어야 하면 false
func (c *Client) handle(frame inboundFrame) bool {
	ctx, cancel := context.WithTimeout(context.Background(), inboundTimeout)
	defer cancel()

	switch frame.Type {
	case models.EventTyping:
		if err := c.handler.RelayTyping(ctx, c.matchID, c.userID, frame.IsTyping); err != nil {
			c.logger.Debug("Typing relay failed", zap.Error(err))
		}
		return true

	case models.EventMessage:
		result, err := c.handler.SendMessage(ctx, c.matchID, c.userID, frame.Text)
		if err != nil {
			c.reply(EventError, errorPayload(errorCode(err)))
			// 만료된 매치의 채널은 닫는다
			return !errors.Is(err, service.ErrMatchExpired)
		}
		c.reply(EventMessageSent, result)
		return true

	default:
		c.reply(EventError, errorPayload("unknown_type"))
		return true
	}
}

// reply 보낸 사람에게만 응답. 버퍼가 가득 차면 버린다.
func (c *Client) reply(eventType string, payload interface{}) {
	c.hub.Deliver(models.RealtimeEvent{
		MatchID:     c.matchID,
		RecipientID: c.userID,
		Type:        eventType,
		Payload:     payload,
		BestEffort:  true,
	})
}

// writePump Hub로부터 메시지를 받아 클라이언트에게 전송. 매치가 만료되면 연결을 닫는다.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	expiry := time.NewTimer(time.Until(c.expiresAt))
	defer func() {
		ticker.Stop()
		expiry.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub가 채널을 닫음
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(message)
			if err != nil {
				c.logger.Error("Failed to marshal message", zap.Error(err))
				continue
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			go c.hub.refresh(c)

		case <-expiry.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "match expired"))
			return
		}
	}
}

func errorPayload(code string) map[string]string {
	return map[string]string{"error": code}
}

// errorCode HTTP 응답과 같은 에러 코드
func errorCode(err error) string {
	switch {
	case errors.Is(err, service.ErrMatchExpired):
		return "match_expired"
	case errors.Is(err, service.ErrNotAParticipant):
		return "not_a_participant"
	case errors.Is(err, service.ErrMatchNotFound):
		return "match_not_found"
	case errors.Is(err, service.ErrInvalidMessage):
		return "invalid_message"
	case errors.Is(err, service.ErrRateLimited):
		return "rate_limited"
	default:
		return "internal_error"
	}
}
