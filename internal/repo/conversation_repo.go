package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/flockhq/flock/internal/model"
	"github.com/flockhq/flock/internal/pkg/dbutil"
	appErr "github.com/flockhq/flock/internal/pkg/errors"
)

var conversationFields = []string{"id", "org_id", "user_id", "title", "archived", "ctime", "last_message_at"}

type ConversationRepo struct {
	db *sql.DB
}

func NewConversationRepo(db *sql.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

func (r *ConversationRepo) Create(ctx context.Context, conv *model.Conversation) error {
	data := map[string]interface{}{
		"org_id":          conv.OrgID,
		"user_id":         conv.UserID,
		"title":           conv.Title,
		"archived":        0,
		"ctime":           conv.Ctime,
		"last_message_at": conv.LastMessageAt,
	}
	sqlStr, args, err := builder.BuildInsert("chat_conversations", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr+" RETURNING id", args)
	return r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&conv.ID)
}

func (r *ConversationRepo) Get(ctx context.Context, convID int64) (*model.Conversation, error) {
	where := map[string]interface{}{"id": convID}
	sqlStr, args, err := builder.BuildSelect("chat_conversations", where, conversationFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, appErr.ErrNotFound
	}
	return scanConversation(rows)
}

func (r *ConversationRepo) ListByUser(ctx context.Context, orgID, userID string) ([]*model.Conversation, error) {
	where := map[string]interface{}{
		"org_id":   orgID,
		"user_id":  userID,
		"_orderby": "last_message_at desc",
	}
	sqlStr, args, err := builder.BuildSelect("chat_conversations", where, conversationFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var convs []*model.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

func (r *ConversationRepo) SetArchived(ctx context.Context, convID int64, archived int) error {
	return r.update(ctx, convID, map[string]interface{}{"archived": archived})
}

func (r *ConversationRepo) SetTitle(ctx context.Context, convID int64, title string) error {
	return r.update(ctx, convID, map[string]interface{}{"title": title})
}

func (r *ConversationRepo) TouchLastMessage(ctx context.Context, convID int64, ts int64) error {
	return r.update(ctx, convID, map[string]interface{}{"last_message_at": ts})
}

func (r *ConversationRepo) update(ctx context.Context, convID int64, update map[string]interface{}) error {
	sqlStr, args, err := builder.BuildUpdate("chat_conversations", map[string]interface{}{"id": convID}, update)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

func scanConversation(rows *sql.Rows) (*model.Conversation, error) {
	var conv model.Conversation
	if err := rows.Scan(&conv.ID, &conv.OrgID, &conv.UserID, &conv.Title, &conv.Archived, &conv.Ctime, &conv.LastMessageAt); err != nil {
		return nil, err
	}
	return &conv, nil
}
