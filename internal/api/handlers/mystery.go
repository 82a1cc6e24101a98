package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/luvhive/luvhive-backend/internal/models"
	"github.com/luvhive/luvhive-backend/internal/service"
)

type MysteryHandler struct {
	matchmakingService *service.MatchmakingService
	matchService       *service.MatchService
}

func NewMysteryHandler(matchmakingService *service.MatchmakingService, matchService *service.MatchService) *MysteryHandler {
	return &MysteryHandler{
		matchmakingService: matchmakingService,
		matchService:       matchService,
	}
}

// FindMatch 익명 상대 찾기.
// 한도 초과, 후보 없음, 성별 필터 불가는 200 + success=false 로 응답한다.
func (h *MysteryHandler) FindMatch(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req models.FindMatchRequest
	// 본문이 없으면 필터 없는 요청
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_input",
				"message": err.Error(),
			})
			return
		}
	}
	req.UserID = userID

	result, err := h.matchmakingService.FindMatch(c.Request.Context(), req)
	if err != nil {
		respondError(c, err, "Failed to find match")
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetQuota 오늘 남은 매치 한도
func (h *MysteryHandler) GetQuota(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	status, err := h.matchmakingService.Quota(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "Failed to get quota")
		return
	}

	c.JSON(http.StatusOK, status)
}

// ListMatches 내 매치 목록 (상대 정보는 잠금 해제 단계만큼만)
func (h *MysteryHandler) ListMatches(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	includeExpired, _ := strconv.ParseBool(c.DefaultQuery("include_expired", "false"))

	matches, err := h.matchService.ListMatches(c.Request.Context(), userID, includeExpired)
	if err != nil {
		respondError(c, err, "Failed to list matches")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"matches": matches,
		"total":   len(matches),
	})
}
