package chat

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/learnbridge/model"
	"github.com/sahilchouksey/learnbridge/services"
	"github.com/sahilchouksey/learnbridge/utils/middleware"
	"github.com/sahilchouksey/learnbridge/utils/response"
	"github.com/sahilchouksey/learnbridge/utils/validation"
	"gorm.io/gorm"
)

// ChatHandler handles direct messages between students and instructors
type ChatHandler struct {
	db        *gorm.DB
	batcher   *services.MessageNotificationBatcher
	validator *validation.Validator
}

// NewChatHandler creates a new chat handler
func NewChatHandler(db *gorm.DB, batcher *services.MessageNotificationBatcher) *ChatHandler {
	return &ChatHandler{
		db:        db,
		batcher:   batcher,
		validator: validation.NewValidator(),
	}
}

// SendMessageRequest represents the request body for sending a message
type SendMessageRequest struct {
	RecipientID uint   `json:"recipient_id" validate:"required,min=1"`
	Content     string `json:"content" validate:"required,min=1,max=5000"`
}

// ListConversations handles GET /api/v1/chats
func (h *ChatHandler) ListConversations(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	var conversations []model.Conversation
	if err := h.db.Preload("UserA").Preload("UserB").
		Where("user_a_id = ? OR user_b_id = ?", user.ID, user.ID).
		Order("updated_at DESC").
		Find(&conversations).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch conversations")
	}

	return response.Success(c, conversations)
}

// GetMessages handles GET /api/v1/chats/:id/messages. Fetching messages
// marks them seen and drops any pending batched notification.
func (h *ChatHandler) GetMessages(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	conversationID, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid conversation ID")
	}

	var conversation model.Conversation
	if err := h.db.First(&conversation, conversationID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return response.NotFound(c, "Conversation not found")
		}
		return response.InternalServerError(c, "Failed to fetch conversation")
	}

	if !conversation.HasParticipant(user.ID) {
		return response.Forbidden(c, "You are not part of this conversation")
	}

	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	if limit > 200 {
		limit = 200
	}
	offset, _ := strconv.Atoi(c.Query("offset", "0"))

	var messages []model.ChatMessage
	if err := h.db.Where("conversation_id = ?", conversation.ID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&messages).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch messages")
	}

	// Reading the conversation settles the unseen state
	h.db.Model(&model.ChatMessage{}).
		Where("conversation_id = ? AND sender_id != ? AND seen = ?", conversation.ID, user.ID, false).
		Update("seen", true)

	if h.batcher != nil {
		h.batcher.Clear(user.ID, conversation.OtherParty(user.ID), conversation.ID)
	}

	return response.Success(c, messages)
}

// SendMessage handles POST /api/v1/chats
func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	var req SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	if req.RecipientID == user.ID {
		return response.BadRequest(c, "You cannot message yourself")
	}

	var recipient model.User
	if err := h.db.First(&recipient, req.RecipientID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return response.NotFound(c, "Recipient not found")
		}
		return response.InternalServerError(c, "Failed to fetch recipient")
	}

	conversation, err := h.findOrCreateConversation(user.ID, recipient.ID)
	if err != nil {
		return response.InternalServerError(c, "Failed to open conversation")
	}

	message := model.ChatMessage{
		ConversationID: conversation.ID,
		SenderID:       user.ID,
		Content:        validation.SanitizeString(req.Content),
	}
	if err := h.db.Create(&message).Error; err != nil {
		return response.InternalServerError(c, "Failed to send message")
	}

	// Bump conversation recency for inbox ordering
	h.db.Model(conversation).Update("updated_at", message.CreatedAt)

	if h.batcher != nil {
		h.batcher.Enqueue(recipient.ID, user.ID, conversation.ID, user.Name, message.Content)
	}

	return response.Created(c, message)
}

// findOrCreateConversation returns the single conversation between two
// users, creating it on first contact. Participants are stored in a
// fixed order so the pair is unique regardless of who messages first.
func (h *ChatHandler) findOrCreateConversation(a, b uint) (*model.Conversation, error) {
	userA, userB := a, b
	if userB < userA {
		userA, userB = userB, userA
	}

	var conversation model.Conversation
	err := h.db.Where("user_a_id = ? AND user_b_id = ?", userA, userB).
		First(&conversation).Error
	if err == nil {
		return &conversation, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	conversation = model.Conversation{UserAID: userA, UserBID: userB}
	if err := h.db.Create(&conversation).Error; err != nil {
		return nil, err
	}
	return &conversation, nil
}
