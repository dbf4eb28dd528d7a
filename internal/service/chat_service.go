package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/flockhq/flock/internal/agent"
	"github.com/flockhq/flock/internal/ai"
	"github.com/flockhq/flock/internal/model"
	appErr "github.com/flockhq/flock/internal/pkg/errors"
	"github.com/flockhq/flock/internal/rag"
	"github.com/flockhq/flock/internal/repo"
)

const (
	chatTurnTimeout = 60 * time.Second
	titleMaxChars   = 80
	historyWindow   = 6
)

type ChatAnswer struct {
	Answer     string                `json:"answer"`
	Reasoning  []string              `json:"reasoning_steps,omitempty"`
	Sources    *model.MessageSources `json:"sources"`
	Confidence float64               `json:"confidence,omitempty"`
	TokenUsage int                   `json:"usage"`
}

type ChatService struct {
	conversations *repo.ConversationRepo
	messages      *repo.MessageRepo
	engine        *rag.Engine
	orchestrator  *agent.Orchestrator
	generator     ai.IGenerator
}

func NewChatService(conversations *repo.ConversationRepo, messages *repo.MessageRepo, engine *rag.Engine, orchestrator *agent.Orchestrator, generator ai.IGenerator) *ChatService {
	return &ChatService{
		conversations: conversations,
		messages:      messages,
		engine:        engine,
		orchestrator:  orchestrator,
		generator:     generator,
	}
}

func (s *ChatService) ListConversations(ctx context.Context, orgID, userID string) ([]*model.Conversation, error) {
	convs, err := s.conversations.ListByUser(ctx, orgID, userID)
	if err != nil {
		return nil, err
	}
	if convs == nil {
		convs = []*model.Conversation{}
	}
	return convs, nil
}

func (s *ChatService) CreateConversation(ctx context.Context, orgID, userID, title string) (*model.Conversation, error) {
	now := time.Now().Unix()
	conv := &model.Conversation{
		OrgID:         orgID,
		UserID:        userID,
		Title:         strings.TrimSpace(title),
		Ctime:         now,
		LastMessageAt: now,
	}
	if err := s.conversations.Create(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *ChatService) GetMessages(ctx context.Context, orgID, userID string, convID int64) ([]*model.Message, error) {
	if _, err := s.getOwned(ctx, orgID, userID, convID); err != nil {
		return nil, err
	}
	messages, err := s.messages.ListByConversation(ctx, convID)
	if err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []*model.Message{}
	}
	return messages, nil
}

func (s *ChatService) SetArchived(ctx context.Context, orgID, userID string, convID int64, archived bool) error {
	if _, err := s.getOwned(ctx, orgID, userID, convID); err != nil {
		return err
	}
	flag := 0
	if archived {
		flag = 1
	}
	return s.conversations.SetArchived(ctx, convID, flag)
}

// SendMessage appends the user turn, answers it (single-shot retrieval or
// the full orchestrator), and persists the assistant turn with its
// reasoning and sources. The whole turn shares one deadline.
func (s *ChatService) SendMessage(ctx context.Context, orgID, userID string, convID int64, message string, useRAG bool) (*ChatAnswer, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, fmt.Errorf("%w: message is required", appErr.ErrInvalid)
	}
	conv, err := s.getOwned(ctx, orgID, userID, convID)
	if err != nil {
		return nil, err
	}
	prior, err := s.messages.ListByConversation(ctx, convID)
	if err != nil {
		return nil, err
	}

	now := time.Now().Unix()
	userMsg := &model.Message{
		ConversationID: convID,
		Role:           model.MessageRoleUser,
		Content:        message,
		Ctime:          now,
	}
	if err := s.messages.Append(ctx, userMsg); err != nil {
		return nil, err
	}
	if conv.Title == "" {
		if err := s.conversations.SetTitle(ctx, convID, DeriveTitle(message)); err != nil {
			return nil, err
		}
	}

	history := formatHistory(prior)
	answer, err := s.answer(ctx, orgID, message, history, useRAG)
	if err != nil {
		return nil, err
	}

	assistantMsg := &model.Message{
		ConversationID: convID,
		Role:           model.MessageRoleAssistant,
		Content:        answer.Answer,
		Reasoning:      answer.Reasoning,
		Sources:        answer.Sources,
		Ctime:          time.Now().Unix(),
	}
	if err := s.messages.Append(ctx, assistantMsg); err != nil {
		return nil, err
	}
	if err := s.conversations.TouchLastMessage(ctx, convID, assistantMsg.Ctime); err != nil {
		return nil, err
	}
	return answer, nil
}

func (s *ChatService) answer(ctx context.Context, orgID, message, history string, useRAG bool) (*ChatAnswer, error) {
	ctx, cancel := context.WithTimeout(ctx, chatTurnTimeout)
	defer cancel()
	if useRAG {
		result, err := s.engine.Answer(ctx, orgID, message, s.generator, rag.Options{History: history})
		if err != nil {
			return nil, err
		}
		return &ChatAnswer{
			Answer: result.Answer,
			Sources: &model.MessageSources{
				Documents: result.Sources,
				Employees: []model.EmployeeSource{},
				External:  []model.ExternalSource{},
			},
			TokenUsage: result.TokenUsage,
		}, nil
	}
	result, err := s.orchestrator.ProcessQuery(ctx, orgID, message, history)
	if err != nil {
		return nil, err
	}
	sources := result.Sources
	return &ChatAnswer{
		Answer:     result.Text,
		Reasoning:  result.Reasoning,
		Sources:    &sources,
		Confidence: result.Confidence,
		TokenUsage: result.TokenUsage,
	}, nil
}

func (s *ChatService) getOwned(ctx context.Context, orgID, userID string, convID int64) (*model.Conversation, error) {
	conv, err := s.conversations.Get(ctx, convID)
	if err != nil {
		return nil, err
	}
	if conv.OrgID != orgID || conv.UserID != userID {
		return nil, appErr.ErrForbidden
	}
	return conv, nil
}

// DeriveTitle takes the first line of the first user message, capped at 80
// characters on a rune boundary.
func DeriveTitle(message string) string {
	line := message
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	line = strings.TrimSpace(line)
	runes := []rune(line)
	if len(runes) > titleMaxChars {
		line = string(runes[:titleMaxChars])
	}
	if line == "" {
		line = "New conversation"
	}
	return line
}

// formatHistory renders the trailing conversation window the way the
// prompts expect it: one "role: content" line per turn.
func formatHistory(messages []*model.Message) string {
	if len(messages) == 0 {
		return ""
	}
	start := 0
	if len(messages) > historyWindow {
		start = len(messages) - historyWindow
	}
	var b strings.Builder
	for _, msg := range messages[start:] {
		b.WriteString(msg.Role)
		b.WriteString(": ")
		b.WriteString(msg.Content)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
