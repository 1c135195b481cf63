// Package telegram delivers notifications to a Telegram chat through the Bot API.
package telegram

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"bluebird/internal/domain"
)

const (
	maxCaptionLength = 1024
	maxPostText      = 2800
	maxRelatedText   = 500
)

// Sender is the subset of *tgbotapi.BotAPI used here.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Chat struct {
	bot    Sender
	chatID int64
	logger *slog.Logger
}

func New(bot Sender, chatID int64, logger *slog.Logger) *Chat {
	return &Chat{
		bot:    bot,
		chatID: chatID,
		logger: logger.With("sink", "telegram", "chat_id", chatID),
	}
}

func (c *Chat) Name() string {
	return "telegram"
}

// Send posts the rendered notification. A post whose first media item is a
// photo goes out as a photo with the text as caption, unless the text is too
// long for a caption.
func (c *Chat) Send(ctx context.Context, n *domain.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	text := Render(n)
	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("View on X", n.Post.URL),
		),
	)

	var msg tgbotapi.Chattable
	if photo, ok := firstPhoto(&n.Post); ok && utf8.RuneCountInString(text) <= maxCaptionLength {
		p := tgbotapi.NewPhoto(c.chatID, tgbotapi.FileURL(photo))
		p.Caption = text
		p.ParseMode = tgbotapi.ModeHTML
		p.ReplyMarkup = keyboard
		msg = p
	} else {
		m := tgbotapi.NewMessage(c.chatID, text)
		m.ParseMode = tgbotapi.ModeHTML
		m.DisableWebPagePreview = true
		m.ReplyMarkup = keyboard
		msg = m
	}

	sent, err := c.bot.Send(msg)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	c.logger.Debug("sent message", "post_id", n.Post.ID, "message_id", sent.MessageID)

	return nil
}

// Render builds the HTML body of a notification.
func Render(n *domain.Notification) string {
	var b strings.Builder

	if n.ReplyParent != nil {
		writeRelated(&b, "In reply to", n.ReplyParent)
	}

	fmt.Fprintf(&b, "<b>%s</b> %s\n", html.EscapeString(displayName(&n.Post)), n.Action())
	if !n.Post.Relations.IsRepost && n.Post.Text != "" {
		b.WriteString(html.EscapeString(truncate(n.Post.Text, maxPostText)))
		b.WriteString("\n")
	}

	if n.Quote != nil {
		b.WriteString("\n")
		writeRelated(&b, "Quoting", n.Quote)
	}
	if n.RepostOf != nil {
		b.WriteString("\n")
		writeRelated(&b, "Reposting", n.RepostOf)
	}

	return strings.TrimSpace(b.String())
}

func writeRelated(b *strings.Builder, label string, post *domain.Post) {
	fmt.Fprintf(b, "<i>%s %s</i>\n", label, html.EscapeString(displayName(post)))
	if post.Text != "" {
		fmt.Fprintf(b, "<blockquote>%s</blockquote>\n", html.EscapeString(truncate(post.Text, maxRelatedText)))
	}
}

func displayName(post *domain.Post) string {
	handle := post.Author.ScreenName
	if handle == "" {
		handle = post.Account
	}
	if post.Author.Name == "" {
		return "@" + handle
	}
	return fmt.Sprintf("%s (@%s)", post.Author.Name, handle)
}

func firstPhoto(post *domain.Post) (string, bool) {
	if post.Relations.IsRepost || len(post.Media) == 0 {
		return "", false
	}
	m := post.Media[0]
	if m.Type != "" && m.Type != "image" && m.Type != "photo" {
		return "", false
	}
	return m.URL, true
}

// truncate cuts s to at most limit runes.
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-1]) + "…"
}
