package adapter

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	tele "gopkg.in/telebot.v4"

	kit "kinobot/internal/transport"
)

func TestClassifySendError(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{tele.ErrBlockedByUser, true},
		{tele.ErrUserIsDeactivated, true},
		{fmt.Errorf("telegram: Forbidden: bot can't initiate conversation with a user (403)"), true},
		{errors.New("telegram: Bad Request: chat not found (400)"), true},
		{errors.New("telegram: Too Many Requests: retry after 5 (429)"), false},
		{errors.New("context deadline exceeded"), false},
	}
	for _, tc := range cases {
		got := errors.Is(classifySendError(tc.err), kit.ErrRecipientUnreachable)
		if got != tc.want {
			t.Fatalf("classifySendError(%v) unreachable = %v, want %v", tc.err, got, tc.want)
		}
	}
	if classifySendError(nil) != nil {
		t.Fatalf("nil must stay nil")
	}
	wrapped := classifySendError(tele.ErrBlockedByUser)
	if !errors.Is(wrapped, tele.ErrBlockedByUser) {
		t.Fatalf("original error lost: %v", wrapped)
	}
}

func TestSplitTelegramText(t *testing.T) {
	if got := splitTelegramText("short", 10, ""); len(got) != 1 || got[0] != "short" {
		t.Fatalf("short text split = %v", got)
	}

	text := strings.Repeat("line of text\n", 40)
	parts := splitTelegramText(text, 100, "")
	if len(parts) < 2 {
		t.Fatalf("parts = %d, want several", len(parts))
	}
	for _, p := range parts {
		if len([]rune(p)) > 100 {
			t.Fatalf("part too long: %d", len([]rune(p)))
		}
		if strings.HasSuffix(p, "\n") {
			t.Fatalf("part keeps trailing newline: %q", p)
		}
	}

	html := strings.Repeat("x", 90) + `<a href="https://t.me/kino">link</a>`
	parts = splitTelegramText(html, 100, "HTML")
	if len(parts) != 2 || !strings.HasPrefix(parts[1], "<a ") {
		t.Fatalf("HTML tag split: %q", parts)
	}
}

func TestTruncateCaption(t *testing.T) {
	long := strings.Repeat("я", telegramCaptionLimit+10)
	got := truncateCaption(long)
	if n := len([]rune(got)); n != telegramCaptionLimit {
		t.Fatalf("caption runes = %d, want %d", n, telegramCaptionLimit)
	}
	if !strings.HasSuffix(got, "…") {
		t.Fatalf("cut caption lacks ellipsis")
	}
	exact := strings.Repeat("я", telegramCaptionLimit)
	if truncateCaption(exact) != exact {
		t.Fatalf("caption at the limit changed")
	}
	if truncateCaption("ok") != "ok" {
		t.Fatalf("short caption changed")
	}
}
