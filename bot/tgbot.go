// Package bot sends operational alerts to a Telegram chat. It carries no
// state beyond the API handle and the target chat; routing decisions belong
// to the log handler that calls it.
package bot

import (
	"log/slog"
	"strings"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"

	"mailgate/lib/sl"
)

type TgBot struct {
	log    *slog.Logger
	api    *tgbotapi.Bot
	chatId int64
}

func NewTgBot(apiKey string, chatId int64, log *slog.Logger) (*TgBot, error) {
	api, err := tgbotapi.NewBot(apiKey, nil)
	if err != nil {
		return nil, err
	}
	return &TgBot{
		log:    log.With(sl.Module("bot")),
		api:    api,
		chatId: chatId,
	}, nil
}

// SendMessageWithLevel delivers a MarkdownV2 message to the alert chat.
// Delivery failures are logged and swallowed; alerting must never take
// the service down with it.
func (t *TgBot) SendMessageWithLevel(msg string, level slog.Level) {
	if t == nil || t.api == nil {
		return
	}
	_, err := t.api.SendMessage(t.chatId, msg, &tgbotapi.SendMessageOpts{
		ParseMode: "MarkdownV2",
	})
	if err != nil {
		// fall back to plain text for messages Telegram refuses to parse
		_, err = t.api.SendMessage(t.chatId, msg, &tgbotapi.SendMessageOpts{})
	}
	if err != nil {
		t.log.With(
			slog.Int64("chat_id", t.chatId),
			slog.String("level", level.String()),
		).Error("sending alert", sl.Err(err))
	}
}

// Sanitize escapes characters reserved by Telegram MarkdownV2.
func Sanitize(input string) string {
	reservedChars := "\\_{}#+-.!|()[]=*"
	sanitized := ""
	for _, char := range input {
		if strings.ContainsRune(reservedChars, char) {
			sanitized += "\\" + string(char)
		} else {
			sanitized += string(char)
		}
	}
	return sanitized
}
