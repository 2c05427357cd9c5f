package history

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"studyhubgo/internal/chat"
)

var ErrRoomRequired = errors.New("room id is required")

type IHistoryService interface {
	ListMessages(ctx context.Context, roomID string, limit, offset int) ([]chat.Message, error)
	CountMessages(ctx context.Context, roomID string) (int, error)
}

// historyService reads the chat_messages table written by the CRUD layer.
// The realtime core never writes to it.
type historyService struct {
	db *sql.DB
}

var _ chat.HistoryStore = (*historyService)(nil)

func NewHistoryService(db *sql.DB) IHistoryService {
	return &historyService{db: db}
}

// ListMessages fetches one page, newest first in SQL so OFFSET walks back in
// time, and returns it oldest first.
func (svc *historyService) ListMessages(ctx context.Context, roomID string,
	limit, offset int) ([]chat.Message, error) {

	if roomID == "" {
		return nil, ErrRoomRequired
	}
	if limit <= 0 {
		limit = chat.DefaultHistoryLimit
	}
	if limit > chat.MaxHistoryLimit {
		limit = chat.MaxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}

	const q = `SELECT id, room_id, sender_id, coalesce(sender_name,''),
                      body, coalesce(message_type,'text'), created_at, coalesce(edited,false)
                 FROM chat_messages
                WHERE room_id = $1
             ORDER BY created_at DESC
                LIMIT $2 OFFSET $3`

	rows, err := svc.db.QueryContext(ctx, q, roomID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := make([]chat.Message, 0, limit)
	for rows.Next() {
		var (
			m  chat.Message
			at time.Time
		)
		if err := rows.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.SenderName,
			&m.Message, &m.MessageType, &at, &m.Edited); err != nil {
			return nil, err
		}
		m.Timestamp = at.UTC()
		list = append(list, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(list)-1; i < j; i, j = i+1, j-1 {
		list[i], list[j] = list[j], list[i]
	}
	return list, nil
}

func (svc *historyService) CountMessages(ctx context.Context, roomID string) (int, error) {
	if roomID == "" {
		return 0, ErrRoomRequired
	}
	var n int
	err := svc.db.QueryRowContext(ctx,
		`SELECT count(*) FROM chat_messages WHERE room_id = $1`, roomID).Scan(&n)
	return n, err
}
