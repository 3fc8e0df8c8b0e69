package telegram

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/PaulSonOfLars/gotgbot/v2"
)

type Bot struct {
	Api *gotgbot.Bot
}

func NewBot(token string) (*Bot, error) {
	api, err := gotgbot.NewBot(token, nil)
	if err != nil {
		return nil, err
	}

	return &Bot{
		Api: api,
	}, nil
}

// memberFunc looks up a user's status in a chat ("member", "left", ...).
type memberFunc func(ctx context.Context, chatId, userId int64) (string, error)

// MembershipChecker verifies social tasks by checking that the user joined the task's chat.
type MembershipChecker struct {
	chats   map[string]int64
	timeout time.Duration
	status  memberFunc
}

func NewMembershipChecker(bot *Bot, chats map[string]int64, timeout time.Duration) *MembershipChecker {
	return newMembershipChecker(chats, timeout, func(ctx context.Context, chatId, userId int64) (string, error) {
		type reply struct {
			status string
			err    error
		}
		done := make(chan reply, 1)
		go func() {
			member, err := bot.Api.GetChatMember(chatId, userId, nil)
			if err != nil {
				done <- reply{err: err}
				return
			}
			done <- reply{status: member.GetStatus()}
		}()
		select {
		case r := <-done:
			return r.status, r.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	})
}

func newMembershipChecker(chats map[string]int64, timeout time.Duration, status memberFunc) *MembershipChecker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &MembershipChecker{chats: chats, timeout: timeout, status: status}
}

// Verify reports whether userID is a member of the chat configured for taskID.
// Tasks without a chat cannot be checked and are accepted.
func (m *MembershipChecker) Verify(ctx context.Context, taskID, userID string) (bool, error) {
	chatId, ok := m.chats[taskID]
	if !ok {
		return true, nil
	}
	userId, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return false, nil
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	status, err := m.status(ctx, chatId, userId)
	if err != nil {
		return false, fmt.Errorf("chat member %d in %d: %w", userId, chatId, err)
	}
	switch status {
	case "creator", "administrator", "member":
		return true, nil
	}
	return false, nil
}
