package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/luvhive/luvhive-backend/internal/models"
	"github.com/luvhive/luvhive-backend/internal/service"
	"github.com/luvhive/luvhive-backend/internal/websocket"
	"github.com/luvhive/luvhive-backend/pkg/logger"
)

type ChatHandler struct {
	chatService *service.ChatService
	hub         *websocket.Hub
}

func NewChatHandler(chatService *service.ChatService, hub *websocket.Hub) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		hub:         hub,
	}
}

// SendMessage 매치에 메시지 전송
func (h *ChatHandler) SendMessage(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req models.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_input",
			"message": err.Error(),
		})
		return
	}

	result, err := h.chatService.SendMessage(c.Request.Context(), c.Param("id"), userID, req.Text)
	if err != nil {
		respondError(c, err, "Failed to send message")
		return
	}

	c.JSON(http.StatusCreated, result)
}

// ListMessages 대화 기록 (최신순). 이전 페이지는 마지막 메시지의 before(sent_at) + before_id
func (h *ChatHandler) ListMessages(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	var before *models.MessageCursor
	if raw := c.Query("before"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_input",
				"message": "before must be an RFC3339 timestamp",
			})
			return
		}
		before = &models.MessageCursor{SentAt: t, ID: c.Query("before_id")}
	}

	messages, err := h.chatService.ListMessages(c.Request.Context(), c.Param("id"), userID, limit, before)
	if err != nil {
		respondError(c, err, "Failed to list messages")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"messages": messages,
		"total":    len(messages),
	})
}

// GetOnlineStatus 상대방 접속 여부
func (h *ChatHandler) GetOnlineStatus(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	online, err := h.chatService.GetOnlineStatus(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		respondError(c, err, "Failed to get online status")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"is_online": online,
	})
}

// Connect 매치 실시간 채널 (WebSocket)
func (h *ChatHandler) Connect(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	match, err := h.chatService.Authorize(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		respondError(c, err, "Failed to open chat channel")
		return
	}
	partnerID, _ := match.PartnerOf(userID)

	session := websocket.Session{
		MatchID:   match.ID,
		UserID:    userID,
		PartnerID: partnerID,
		ExpiresAt: match.ExpiresAt,
	}
	// 업그레이드 실패 시 응답은 upgrader가 이미 썼다
	if err := h.hub.Serve(c.Writer, c.Request, session, h.chatService); err != nil {
		logger.Warn("WebSocket upgrade failed", "matchId", match.ID, "error", err)
	}
}
