package domain

import (
	"context"
)

// ChatAPI is the REST surface of the chat backend, scoped to one account.
type ChatAPI interface {
	ListConversations(ctx context.Context) ([]Conversation, error)
	GetMessages(ctx context.Context, convID string, page Page) ([]Message, error)
	SendMessage(ctx context.Context, convID, text string) error
	SendAttachment(ctx context.Context, convID, image string, text *string) error
	MarkRead(ctx context.Context, convID string) error

	LockConversation(ctx context.Context, convID string) (*Conversation, error)
	UnlockConversation(ctx context.Context, convID string) error
	UpdateNickname(ctx context.Context, conv Conversation, nickname string) error
	SetBotReply(ctx context.Context, convID string, enabled bool) error
	ListStaff(ctx context.Context) ([]StaffMember, error)
}

// PushEmitter sends client-originated events over the push channel.
type PushEmitter interface {
	Emit(event string, payload any) error
}

// SelectionRepository persists the last selected conversation per account.
type SelectionRepository interface {
	GetLastSelected(ctx context.Context, accountID string) (string, error)
	SetLastSelected(ctx context.Context, accountID, convID string) error
	ClearLastSelected(ctx context.Context, accountID string) error
}
