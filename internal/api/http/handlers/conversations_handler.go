package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/spec-kit/support-chat/internal/api/dto"
	"github.com/spec-kit/support-chat/internal/auth"
	"github.com/spec-kit/support-chat/internal/service"
	apperrors "github.com/spec-kit/support-chat/pkg/util"
)

// ConversationsHandler exposes the actions that move conversations through their lifecycle.
type ConversationsHandler struct {
	conversations *service.ConversationService
	assignment    *service.AssignmentService
}

// NewConversationsHandler constructs handler.
func NewConversationsHandler(conversations *service.ConversationService, assignment *service.AssignmentService) *ConversationsHandler {
	return &ConversationsHandler{conversations: conversations, assignment: assignment}
}

// Create POST /conversations. Answers 201 for a new conversation and 200
// when the customer already has an open one.
func (h *ConversationsHandler) Create(c *fiber.Ctx) error {
	identity, ok := auth.IdentityFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	conv, created, err := h.conversations.Create(c.UserContext(), identity)
	if err != nil {
		return err
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{"data": dto.NewConversationResponse(conv)})
}

// Accept POST /conversations/:id/accept.
func (h *ConversationsHandler) Accept(c *fiber.Ctx) error {
	identity, ok := auth.IdentityFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	id, err := conversationID(c)
	if err != nil {
		return err
	}
	conv, err := h.assignment.Accept(c.UserContext(), identity, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewConversationResponse(conv)})
}

// Close POST /conversations/:id/close.
func (h *ConversationsHandler) Close(c *fiber.Ctx) error {
	identity, ok := auth.IdentityFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	id, err := conversationID(c)
	if err != nil {
		return err
	}
	conv, err := h.assignment.Close(c.UserContext(), identity, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewConversationResponse(conv)})
}

func conversationID(c *fiber.Ctx) (string, error) {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return "", apperrors.NewValidationError("invalid conversation id", map[string]any{"id": id})
	}
	return id, nil
}
