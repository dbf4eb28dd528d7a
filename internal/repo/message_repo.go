package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/didi/gendry/builder"

	"github.com/flockhq/flock/internal/model"
	"github.com/flockhq/flock/internal/pkg/dbutil"
)

var messageFields = []string{"id", "conversation_id", "role", "content", "reasoning_json", "sources_json", "ctime"}

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

func (r *MessageRepo) Append(ctx context.Context, msg *model.Message) error {
	reasoning := ""
	if len(msg.Reasoning) > 0 {
		blob, err := json.Marshal(msg.Reasoning)
		if err != nil {
			return err
		}
		reasoning = string(blob)
	}
	sources := ""
	if msg.Sources != nil {
		blob, err := json.Marshal(msg.Sources)
		if err != nil {
			return err
		}
		sources = string(blob)
	}
	data := map[string]interface{}{
		"conversation_id": msg.ConversationID,
		"role":            msg.Role,
		"content":         msg.Content,
		"reasoning_json":  reasoning,
		"sources_json":    sources,
		"ctime":           msg.Ctime,
	}
	sqlStr, args, err := builder.BuildInsert("chat_messages", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr+" RETURNING id", args)
	return r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&msg.ID)
}

// ListByConversation returns messages oldest first; append order is the
// total order within a conversation.
func (r *MessageRepo) ListByConversation(ctx context.Context, convID int64) ([]*model.Message, error) {
	where := map[string]interface{}{
		"conversation_id": convID,
		"_orderby":        "id asc",
	}
	sqlStr, args, err := builder.BuildSelect("chat_messages", where, messageFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var messages []*model.Message
	for rows.Next() {
		var msg model.Message
		var reasoning, sources string
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &reasoning, &sources, &msg.Ctime); err != nil {
			return nil, err
		}
		if reasoning != "" {
			if err := json.Unmarshal([]byte(reasoning), &msg.Reasoning); err != nil {
				return nil, err
			}
		}
		if sources != "" {
			var s model.MessageSources
			if err := json.Unmarshal([]byte(sources), &s); err != nil {
				return nil, err
			}
			msg.Sources = &s
		}
		messages = append(messages, &msg)
	}
	return messages, rows.Err()
}

func (r *MessageRepo) DeleteByConversation(ctx context.Context, convID int64) error {
	sqlStr, args, err := builder.BuildDelete("chat_messages", map[string]interface{}{"conversation_id": convID})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}
