// Package telegram sends notifier messages through the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"clairvoyance/internal/notifier"
	logx "clairvoyance/pkg/logx"
)

const textLimit = 4096

type Config struct {
	Token string
	// APIURL overrides the Bot API base URL (tests, self-hosted API servers).
	APIURL  string
	Timeout time.Duration
}

// Sender implements notifier.Sender. It never polls for updates.
type Sender struct {
	bot *tele.Bot
	log logx.Logger
}

var _ notifier.Sender = (*Sender)(nil)

func New(cfg Config, log logx.Logger) (*Sender, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		URL:     strings.TrimRight(cfg.APIURL, "/"),
		Token:   cfg.Token,
		Offline: true,
		Client:  &http.Client{Timeout: timeout},
		OnError: func(err error, _ tele.Context) {
			log.Debug("telebot error", logx.Err(err))
		},
	})
	if err != nil {
		return nil, err
	}
	return &Sender{bot: b, log: log.With(logx.String("comp", "telegram"))}, nil
}

// Send posts m, splitting texts longer than the Telegram limit.
func (s *Sender) Send(ctx context.Context, m notifier.Message) error {
	chat := &tele.Chat{ID: m.ChatID}
	for _, chunk := range splitText(m.Text, textLimit) {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, err := s.bot.Send(chat, chunk, &tele.SendOptions{
			DisableWebPagePreview: m.DisablePreview,
			ThreadID:              m.ThreadID,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// splitText prefers newline boundaries near the end of each window and never
// produces chunks smaller than a third of the limit when it can avoid it.
func splitText(s string, limit int) []string {
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	var out []string
	start := 0
	for start < len(rs) {
		end := start + limit
		if end > len(rs) {
			end = len(rs)
		}
		if end < len(rs) {
			for i := end - 1; i > start+limit/3; i-- {
				if rs[i] == '\n' {
					end = i + 1
					break
				}
			}
		}
		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
