package handler

import (
	"net/http"
	"review-talk-go/internal/middleware"
	"review-talk-go/internal/service"
	"strconv"

	"github.com/gin-gonic/gin"
)

// ConversationHandler 处理与对话历史相关的 API 请求。
type ConversationHandler struct {
	chatService service.ChatService
}

// NewConversationHandler 创建一个新的 ConversationHandler。
func NewConversationHandler(chatService service.ChatService) *ConversationHandler {
	return &ConversationHandler{chatService: chatService}
}

// GetHistory 返回用户在某个商品下的对话记录，按时间正序。
func (h *ConversationHandler) GetHistory(c *gin.Context) {
	userID := c.DefaultQuery("user_id", middleware.UserID(c))
	productID := c.Query("product_id")
	if productID == "" {
		fail(c, http.StatusBadRequest, "缺少 product_id 参数")
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "30"))
	if err != nil || limit < 1 || limit > 200 {
		fail(c, http.StatusBadRequest, "limit 必须在 1 到 200 之间")
		return
	}

	history, err := h.chatService.History(c.Request.Context(), userID, productID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "Failed to retrieve conversation history",
			"data":    nil,
		})
		return
	}
	ok(c, "success", history)
}

// ListRooms 返回当前用户的聊天室列表。
func (h *ConversationHandler) ListRooms(c *gin.Context) {
	userID := c.DefaultQuery("user_id", middleware.UserID(c))
	rooms, err := h.chatService.ListRooms(c.Request.Context(), userID)
	if err != nil {
		fail(c, http.StatusInternalServerError, "获取聊天室列表失败")
		return
	}
	ok(c, "success", rooms)
}
