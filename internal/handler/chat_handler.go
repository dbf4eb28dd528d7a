package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flockhq/flock/internal/pkg/errcode"
	"github.com/flockhq/flock/internal/pkg/response"
	"github.com/flockhq/flock/internal/service"
)

type ChatHandler struct {
	chat *service.ChatService
}

func NewChatHandler(chat *service.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

func (h *ChatHandler) ListConversations(c *gin.Context) {
	orgID := c.Query("org_id")
	if !requireOrg(c, orgID) {
		return
	}
	convs, err := h.chat.ListConversations(c.Request.Context(), orgID, getUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, convs)
}

type createConversationRequest struct {
	OrgID string `json:"org_id"`
	Title string `json:"title"`
}

func (h *ChatHandler) CreateConversation(c *gin.Context) {
	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, errcode.ErrInvalid, "invalid request body")
		return
	}
	if !requireOrg(c, req.OrgID) {
		return
	}
	conv, err := h.chat.CreateConversation(c.Request.Context(), req.OrgID, getUserID(c), req.Title)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"conversation_id": conv.ID})
}

func (h *ChatHandler) Messages(c *gin.Context) {
	orgID := c.Query("org_id")
	if !requireOrg(c, orgID) {
		return
	}
	convID, ok := pathInt64(c, "conversation_id")
	if !ok {
		return
	}
	messages, err := h.chat.GetMessages(c.Request.Context(), orgID, getUserID(c), convID)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, messages)
}

type sendMessageRequest struct {
	OrgID   string `json:"org_id"`
	Message string `json:"message"`
	UseRAG  *bool  `json:"use_rag"`
}

func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, errcode.ErrInvalid, "invalid request body")
		return
	}
	if !requireOrg(c, req.OrgID) {
		return
	}
	convID, ok := pathInt64(c, "conversation_id")
	if !ok {
		return
	}
	// unset means the richer orchestrator path
	useRAG := req.UseRAG != nil && *req.UseRAG
	answer, err := h.chat.SendMessage(c.Request.Context(), req.OrgID, getUserID(c), convID, req.Message, useRAG)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, answer)
}

func (h *ChatHandler) Archive(archived bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID := c.Query("org_id")
		if !requireOrg(c, orgID) {
			return
		}
		convID, ok := pathInt64(c, "conversation_id")
		if !ok {
			return
		}
		if err := h.chat.SetArchived(c.Request.Context(), orgID, getUserID(c), convID, archived); err != nil {
			handleError(c, err)
			return
		}
		response.NoContent(c)
	}
}
