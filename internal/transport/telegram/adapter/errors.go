package adapter

import (
	"errors"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"

	kit "kinobot/internal/transport"
)

var unreachableErrs = []error{
	tele.ErrBlockedByUser,
	tele.ErrUserIsDeactivated,
	tele.ErrChatNotFound,
}

// classifySendError wraps failures that mean the recipient will never be
// reachable with kit.ErrRecipientUnreachable.
func classifySendError(err error) error {
	if err == nil {
		return nil
	}
	if isUnreachable(err) {
		return fmt.Errorf("%w: %w", kit.ErrRecipientUnreachable, err)
	}
	return err
}

func isUnreachable(err error) bool {
	for _, target := range unreachableErrs {
		if errors.Is(err, target) {
			return true
		}
	}
	var te *tele.Error
	if errors.As(err, &te) && te.Code == 403 {
		return true
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "forbidden"):
		return true
	case strings.Contains(msg, "bot was blocked"):
		return true
	case strings.Contains(msg, "user is deactivated"):
		return true
	case strings.Contains(msg, "chat not found"):
		return true
	}
	return false
}
