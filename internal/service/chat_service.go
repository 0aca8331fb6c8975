// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"review-talk-go/internal/cache"
	"review-talk-go/internal/config"
	"review-talk-go/internal/index"
	"review-talk-go/internal/model"
	"review-talk-go/internal/repository"
	"review-talk-go/pkg/log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

const (
	maxQuestionLength = 500
	overviewQuery     = "제품 전체 평가 요약"
	overviewK         = 50

	msgChatSucceeded   = "AI 응답이 성공적으로 생성되었습니다."
	msgNoRelevant      = "관련된 리뷰를 찾을 수 없습니다."
	answerNoRelevant   = "죄송합니다. 해당 질문과 관련된 리뷰 정보를 찾을 수 없습니다. 다른 질문을 시도해보세요."
	answerSearchFailed = "죄송합니다. 리뷰를 검색하는 중 문제가 발생했습니다. 잠시 후 다시 시도해주세요."
	answerBadRequest   = "질문을 다시 입력해주세요."
	msgNoOverviewData  = "분석할 리뷰가 없습니다."
	answerNoOverview   = "아직 분석할 리뷰 데이터가 충분하지 않습니다."
)

// ErrRoomForbidden 表示聊天室不属于请求的用户或商品。
var ErrRoomForbidden = errors.New("chat room does not belong to the user or product")

// ChatRequest 是一次提问。ProductID 和 ChatRoomID 都为空时在全部评论中检索。
type ChatRequest struct {
	UserID     string `json:"user_id"`
	Question   string `json:"question"`
	ProductID  string `json:"product_id,omitempty"`
	ChatRoomID *uint  `json:"chat_room_id,omitempty"`
}

// SourceReview 是回答引用的一条评论。
type SourceReview struct {
	ReviewID   string  `json:"review_id,omitempty"`
	Content    string  `json:"content"`
	Rating     *int    `json:"rating"`
	Date       string  `json:"date,omitempty"`
	Similarity float64 `json:"similarity_score"`
	Distance   float64 `json:"distance"`
}

// ChatResult 是一次提问的完整结果，Answer 总是非空。
type ChatResult struct {
	Success     bool                  `json:"success"`
	Message     string                `json:"message"`
	Answer      string                `json:"ai_response"`
	Fallback    bool                  `json:"fallback"`
	Sources     []SourceReview        `json:"source_reviews"`
	ReviewsUsed int                   `json:"reviews_used"`
	ChatRoomID  *uint                 `json:"chat_room_id,omitempty"`
	Product     *model.ProductSummary `json:"product_info,omitempty"`
	Error       string                `json:"error_message,omitempty"`
}

// OverviewResult 是商品整体评价概要。
type OverviewResult struct {
	Success     bool                  `json:"success"`
	Message     string                `json:"message"`
	Overview    string                `json:"overview"`
	Fallback    bool                  `json:"fallback"`
	ReviewsUsed int                   `json:"reviews_used"`
	Product     *model.ProductSummary `json:"product_info,omitempty"`
}

// RoomSummary 是聊天室列表中的一项。
type RoomSummary struct {
	ID           uint                  `json:"id"`
	UserID       string                `json:"user_id"`
	ProductID    string                `json:"product_id"`
	MessageCount int64                 `json:"message_count"`
	Product      *model.ProductSummary `json:"product_info,omitempty"`
	CreatedAt    model.LocalTime       `json:"created_at"`
}

// ChatService 定义了基于评论的问答操作的接口。
type ChatService interface {
	Chat(ctx context.Context, req ChatRequest) *ChatResult
	ProductOverview(ctx context.Context, productID string) (*OverviewResult, error)
	History(ctx context.Context, userID, productID string, limit int) ([]model.HistoryItem, error)
	ListRooms(ctx context.Context, userID string) ([]RoomSummary, error)
}

type chatService struct {
	index            index.VectorIndex
	generator        ResponseGenerator
	cache            *cache.ConversationCache
	writer           *ConversationWriter
	roomRepo         repository.ChatRoomRepository
	conversationRepo repository.ConversationRepository
	productRepo      repository.ProductRepository
	cfg              config.ChatConfig

	turnMu    sync.Mutex
	turnLocks map[uint]*sync.Mutex
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(
	vectorIndex index.VectorIndex,
	generator ResponseGenerator,
	conversationCache *cache.ConversationCache,
	writer *ConversationWriter,
	roomRepo repository.ChatRoomRepository,
	conversationRepo repository.ConversationRepository,
	productRepo repository.ProductRepository,
	cfg config.ChatConfig,
) ChatService {
	if cfg.SearchK <= 0 {
		cfg.SearchK = 5
	}
	if cfg.AssistantSpeakerID == "" {
		cfg.AssistantSpeakerID = "reviewtalk_ai"
	}
	return &chatService{
		index:            vectorIndex,
		generator:        generator,
		cache:            conversationCache,
		writer:           writer,
		roomRepo:         roomRepo,
		conversationRepo: conversationRepo,
		productRepo:      productRepo,
		cfg:              cfg,
		turnLocks:        make(map[uint]*sync.Mutex),
	}
}

// Chat 协调一次 RAG 问答：聊天室 → 检索 → 最近对话 → 生成 → 记录。
func (s *chatService) Chat(ctx context.Context, req ChatRequest) *ChatResult {
	question := strings.TrimSpace(req.Question)
	if question == "" || utf8.RuneCountInString(question) > maxQuestionLength {
		return &ChatResult{
			Message: fmt.Sprintf("질문은 1자 이상 %d자 이하여야 합니다.", maxQuestionLength),
			Answer:  answerBadRequest,
			Sources: []SourceReview{},
			Error:   "invalid question",
		}
	}
	log.Infof("[ChatService] 开始处理提问, user: %s, product: %s", req.UserID, req.ProductID)

	// 1. 确定聊天室和检索范围
	room, err := s.resolveRoom(ctx, req)
	if err != nil {
		log.Errorf("[ChatService] 步骤1: 获取聊天室失败: %v", err)
		return &ChatResult{
			Message: "채팅방을 확인할 수 없습니다.",
			Answer:  answerSearchFailed,
			Sources: []SourceReview{},
			Error:   err.Error(),
		}
	}
	scope := model.GlobalScope
	var roomID *uint
	if room != nil {
		scope = model.ProductScope(room.ProductID)
		id := room.ID
		roomID = &id
		log.Infof("[ChatService] 步骤1: 使用聊天室 %d, 范围: %s", room.ID, scope)
	} else {
		log.Info("[ChatService] 步骤1: 未指定商品，在全部评论中检索")
	}

	// 2. 检索相关评论
	passages, err := s.index.Search(ctx, question, s.cfg.SearchK, scope)
	if err != nil {
		log.Errorf("[ChatService] 步骤2: 检索评论失败: %v", err)
		return &ChatResult{
			Message:    "리뷰 검색 중 오류가 발생했습니다.",
			Answer:     answerSearchFailed,
			Sources:    []SourceReview{},
			ChatRoomID: roomID,
			Error:      err.Error(),
		}
	}
	log.Infof("[ChatService] 步骤2: 检索到 %d 条评论", len(passages))
	if len(passages) == 0 {
		return &ChatResult{
			Message:    msgNoRelevant,
			Answer:     answerNoRelevant,
			Sources:    []SourceReview{},
			ChatRoomID: roomID,
		}
	}

	// 3. 最近对话：优先缓存，未命中时读库并回填
	var recent []model.ConversationMessage
	if room != nil {
		recent = s.recentConversation(ctx, room.ID)
		log.Infof("[ChatService] 步骤3: 最近对话 %d 条", len(recent))
	}

	// 4. 生成回答
	answer := s.generator.Generate(ctx, passages, question, recent)
	log.Infof("[ChatService] 步骤4: 生成完成, fallback: %v, 长度: %d", answer.Fallback, utf8.RuneCountInString(answer.Text))

	// 5. 关联评论 ID
	related := relatedReviewIDs(passages)

	// 6. 记录本轮对话
	if room != nil {
		s.recordTurn(room.ID, req.UserID, question, answer.Text, related)
	}

	result := &ChatResult{
		Success:     true,
		Message:     msgChatSucceeded,
		Answer:      answer.Text,
		Fallback:    answer.Fallback,
		Sources:     toSources(passages),
		ReviewsUsed: len(passages),
		ChatRoomID:  roomID,
	}
	if !scope.IsGlobal() {
		result.Product = s.productSummary(ctx, string(scope))
	}
	return result
}

func (s *chatService) resolveRoom(ctx context.Context, req ChatRequest) (*model.ChatRoom, error) {
	if req.ChatRoomID != nil {
		room, err := s.roomRepo.FindByID(ctx, *req.ChatRoomID)
		if err != nil {
			return nil, err
		}
		if room.UserID != req.UserID || (req.ProductID != "" && room.ProductID != req.ProductID) {
			return nil, ErrRoomForbidden
		}
		return room, nil
	}
	if req.ProductID == "" {
		return nil, nil
	}
	return s.roomRepo.GetOrCreate(ctx, req.UserID, req.ProductID)
}

// recentConversation 持有房间锁回源，避免回填覆盖并发追加的消息。
// 回源前先等写入队列排空，保证读到的存储包含之前所有已入队的轮次。
func (s *chatService) recentConversation(ctx context.Context, roomID uint) []model.ConversationMessage {
	lock := s.turnLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	if cached, ok := s.cache.Get(roomID); ok {
		return cached
	}
	flushErr := s.writer.Flush(ctx)
	if flushErr != nil {
		log.Warnf("[ChatService] 等待对话落库失败, room: %d, Error: %v", roomID, flushErr)
	}
	stored, err := s.conversationRepo.Recent(ctx, roomID, s.cache.MaxSize())
	if err != nil {
		// 历史读取失败不影响回答，房间保持未缓存，下一轮重新回源
		log.Warnf("[ChatService] 读取历史对话失败, room: %d, Error: %v", roomID, err)
		return nil
	}
	if flushErr == nil {
		s.cache.Set(roomID, stored)
	}
	return stored
}

// recordTurn 在同一把房间锁内写缓存并入队，两者顺序一致。
func (s *chatService) recordTurn(roomID uint, userID, question, answer string, related []string) {
	lock := s.turnLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	now := time.Now()
	joined := model.JoinReviewIDs(related)
	userMsg := model.ConversationMessage{
		ChatRoomID:       roomID,
		Message:          question,
		ChatUserID:       userID,
		RelatedReviewIDs: joined,
		CreatedAt:        now,
	}
	aiMsg := model.ConversationMessage{
		ChatRoomID:       roomID,
		Message:          answer,
		ChatUserID:       s.cfg.AssistantSpeakerID,
		RelatedReviewIDs: joined,
		CreatedAt:        now,
	}
	cached := s.cache.AppendIfCached(roomID, userMsg, aiMsg)
	if err := s.writer.Enqueue(&userMsg, &aiMsg); err != nil {
		log.Errorf("[ChatService] 对话入队失败, room: %d, Error: %v", roomID, err)
		// 这一轮不会进入存储，丢掉缓存让下一轮从存储重建
		if cached {
			s.cache.Invalidate(roomID)
		}
	}
}

func (s *chatService) turnLock(roomID uint) *sync.Mutex {
	s.turnMu.Lock()
	defer s.turnMu.Unlock()
	l, ok := s.turnLocks[roomID]
	if !ok {
		l = &sync.Mutex{}
		s.turnLocks[roomID] = l
	}
	return l
}

func (s *chatService) productSummary(ctx context.Context, productID string) *model.ProductSummary {
	product, err := s.productRepo.FindByProductID(ctx, productID)
	if err != nil {
		log.Warnf("[ChatService] 查询商品信息失败, product: %s, Error: %v", productID, err)
	}
	if product == nil {
		return &model.ProductSummary{ProductID: productID, Name: fmt.Sprintf("상품 %s", productID)}
	}
	summary := product.Summary()
	return &summary
}

// ProductOverview 检索商品的代表性评论并生成整体概要。
func (s *chatService) ProductOverview(ctx context.Context, productID string) (*OverviewResult, error) {
	if productID == "" {
		return nil, errors.New("product id is required")
	}
	passages, err := s.index.Search(ctx, overviewQuery, overviewK, model.ProductScope(productID))
	if err != nil {
		return nil, fmt.Errorf("检索商品评论失败: %w", err)
	}
	product := s.productSummary(ctx, productID)
	if len(passages) == 0 {
		return &OverviewResult{
			Message:  msgNoOverviewData,
			Overview: answerNoOverview,
			Product:  product,
		}, nil
	}
	answer := s.generator.Overview(ctx, product, passages)
	return &OverviewResult{
		Success:     true,
		Message:     "제품 요약이 생성되었습니다.",
		Overview:    answer.Text,
		Fallback:    answer.Fallback,
		ReviewsUsed: len(passages),
		Product:     product,
	}, nil
}

// History 从持久化存储读取用户在某商品下的对话，按时间正序。
func (s *chatService) History(ctx context.Context, userID, productID string, limit int) ([]model.HistoryItem, error) {
	if limit <= 0 {
		limit = s.cache.MaxSize()
	}
	messages, err := s.conversationRepo.RecentByUserAndProduct(ctx, userID, productID, limit)
	if err != nil {
		return nil, err
	}
	items := make([]model.HistoryItem, 0, len(messages))
	for _, m := range messages {
		items = append(items, m.ToHistoryItem())
	}
	return items, nil
}

// ListRooms 返回用户的全部聊天室和各自的消息数，最新的在前。
func (s *chatService) ListRooms(ctx context.Context, userID string) ([]RoomSummary, error) {
	rooms, err := s.roomRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		count, err := s.conversationRepo.CountByRoom(ctx, room.ID)
		if err != nil {
			return nil, fmt.Errorf("统计聊天室 %d 的消息失败: %w", room.ID, err)
		}
		out = append(out, RoomSummary{
			ID:           room.ID,
			UserID:       room.UserID,
			ProductID:    room.ProductID,
			MessageCount: count,
			Product:      s.productSummary(ctx, room.ProductID),
			CreatedAt:    model.LocalTime(room.CreatedAt),
		})
	}
	return out, nil
}

func relatedReviewIDs(passages []model.RetrievedPassage) []string {
	seen := make(map[string]struct{}, len(passages))
	ids := make([]string, 0, len(passages))
	for _, p := range passages {
		id := p.Metadata.ReviewID
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

func toSources(passages []model.RetrievedPassage) []SourceReview {
	sources := make([]SourceReview, 0, len(passages))
	for _, p := range passages {
		src := SourceReview{
			ReviewID:   p.Metadata.ReviewID,
			Content:    p.Text,
			Date:       p.Metadata.Date,
			Similarity: similarity(p.Distance),
			Distance:   p.Distance,
		}
		if p.Metadata.Rating > 0 {
			r := p.Metadata.Rating
			src.Rating = &r
		}
		sources = append(sources, src)
	}
	return sources
}

// similarity 把余弦距离映射到 [0, 1]。
func similarity(distance float64) float64 {
	sim := 1 - distance
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}
