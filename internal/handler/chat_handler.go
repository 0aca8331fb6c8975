package handler

import (
	"encoding/json"
	"net/http"
	"review-talk-go/internal/middleware"
	"review-talk-go/internal/service"
	"review-talk-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // 允许所有来源
		},
	}
)

// ChatHandler 负责处理问答请求，支持 HTTP 和 WebSocket。
type ChatHandler struct {
	chatService service.ChatService
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// Chat 处理一次 HTTP 提问。
func (h *ChatHandler) Chat(c *gin.Context) {
	var req service.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "无效的请求负载")
		return
	}
	if req.UserID == "" {
		req.UserID = middleware.UserID(c)
	}
	res := h.chatService.Chat(c.Request.Context(), req)
	ok(c, res.Message, res)
}

// Handle 处理一个 WebSocket 连接：每个文本帧是一次提问，每次回复一个完整结果。
func (h *ChatHandler) Handle(c *gin.Context) {
	userID := middleware.UserID(c)
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	log.Infof("WebSocket 连接已建立，用户: %s", userID)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warnf("从 WebSocket 读取消息失败: %v", err)
			}
			break
		}

		var req service.ChatRequest
		if err := json.Unmarshal(message, &req); err != nil {
			_ = conn.WriteJSON(gin.H{"type": "error", "message": "无效的消息格式"})
			continue
		}
		if req.UserID == "" {
			req.UserID = userID
		}

		res := h.chatService.Chat(c.Request.Context(), req)
		if err := conn.WriteJSON(gin.H{"type": "answer", "data": res}); err != nil {
			log.Warnf("写入 WebSocket 消息失败: %v", err)
			break
		}
	}
}

// Overview 生成商品整体评价概要。
func (h *ChatHandler) Overview(c *gin.Context) {
	productID := c.Param("productId")
	res, err := h.chatService.ProductOverview(c.Request.Context(), productID)
	if err != nil {
		log.Error("Overview: 生成商品概要失败", err)
		fail(c, http.StatusInternalServerError, "服务器内部错误")
		return
	}
	ok(c, res.Message, res)
}
