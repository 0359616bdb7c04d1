// Package notify announces newly created recipes outside the catalog.
package notify

import (
	"context"
	"fmt"
	"html"
	"log"
	"strings"

	"dapur-kita/internal/config"
	"dapur-kita/internal/recipe"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notifier is told about every recipe the store confirmed as created.
type Notifier interface {
	RecipeCreated(ctx context.Context, r recipe.Recipe) error
}

// Nop discards notifications.
type Nop struct{}

func (Nop) RecipeCreated(context.Context, recipe.Recipe) error { return nil }

// Telegram posts a message to a single chat.
type Telegram struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegram authorizes the bot token from cfg.
func NewTelegram(cfg *config.Config) (*Telegram, error) {
	return newTelegram(cfg.TelegramBotToken, tgbotapi.APIEndpoint, cfg.TelegramChatID)
}

func newTelegram(token, endpoint string, chatID int64) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram api: %w", err)
	}
	log.Printf("Authorized on account %s", bot.Self.UserName)

	return &Telegram{api: bot, chatID: chatID}, nil
}

// RecipeCreated sends a short HTML summary of r.
func (t *Telegram) RecipeCreated(ctx context.Context, r recipe.Recipe) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(t.chatID, formatCreated(r))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

func formatCreated(r recipe.Recipe) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🍳 New recipe <b>%s</b>", html.EscapeString(r.Name))
	if r.ID != 0 {
		fmt.Fprintf(&b, " (#%d)", r.ID)
	}
	fmt.Fprintf(&b, "\n%s · %s · %d min\n", html.EscapeString(r.Cuisine), html.EscapeString(r.Difficulty), r.TotalTimeMinutes())
	if len(r.Ingredients) > 0 {
		fmt.Fprintf(&b, "%d ingredients", len(r.Ingredients))
	}
	return b.String()
}
