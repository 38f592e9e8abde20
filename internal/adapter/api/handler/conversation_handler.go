package handler

import (
	"github.com/labstack/echo/v4"

	"fixhub/internal/domain/entity"
	"fixhub/internal/usecase"
	"fixhub/pkg/response"
)

type ConversationHandler struct {
	messagingUseCase *usecase.MessagingUseCase
}

func NewConversationHandler(messagingUseCase *usecase.MessagingUseCase) *ConversationHandler {
	return &ConversationHandler{
		messagingUseCase: messagingUseCase,
	}
}

type createConversationRequest struct {
	ParticipantIDs []string `json:"participant_ids" validate:"required,min=1,dive,required"`
	InitialMessage string   `json:"initial_message"`
}

type sendMessageRequest struct {
	Content            string `json:"content"`
	AttachmentURL      string `json:"attachment_url,omitempty" validate:"omitempty,url"`
	AttachmentMimeType string `json:"attachment_mime_type,omitempty"`
	AttachmentFilename string `json:"attachment_filename,omitempty"`
	AttachmentSize     int64  `json:"attachment_size,omitempty" validate:"omitempty,min=0"`
}

// CreateConversation opens a conversation with an explicit participant set.
// The route is gated to staff and worker roles before it gets here.
func (h *ConversationHandler) CreateConversation(c echo.Context) error {
	var req createConversationRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(string)

	conversation, err := h.messagingUseCase.CreateConversation(c.Request().Context(), userID, usecase.CreateConversationInput{
		ParticipantIDs: req.ParticipantIDs,
		InitialMessage: req.InitialMessage,
	})

	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, conversation)
}

// ListConversations returns the caller's conversations, newest activity first.
func (h *ConversationHandler) ListConversations(c echo.Context) error {
	userID := c.Get("uid").(string)

	conversations, err := h.messagingUseCase.ListConversations(c.Request().Context(), userID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, conversations)
}

// GetMessages returns the conversation history ascending by creation time.
func (h *ConversationHandler) GetMessages(c echo.Context) error {
	userID := c.Get("uid").(string)
	conversationID := c.Param("id")

	messages, err := h.messagingUseCase.GetMessages(c.Request().Context(), userID, conversationID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, messages)
}

// SendMessage appends a message to the conversation. A message needs content
// or an attachment; the use case rejects one with neither.
func (h *ConversationHandler) SendMessage(c echo.Context) error {
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(string)
	conversationID := c.Param("id")

	var attachment *entity.Attachment
	if req.AttachmentURL != "" {
		attachment = &entity.Attachment{
			URL:      req.AttachmentURL,
			MimeType: req.AttachmentMimeType,
			Filename: req.AttachmentFilename,
			Size:     req.AttachmentSize,
		}
	}

	message, err := h.messagingUseCase.SendMessage(c.Request().Context(), userID, usecase.SendMessageInput{
		ConversationID: conversationID,
		Content:        req.Content,
		Attachment:     attachment,
	})

	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, message)
}
