package bot

import (
	"context"
	"log"
	"time"

	"channelPassAPI/internal/config"
	"channelPassAPI/services"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Bot is the Telegram command surface: plan selection, payment proof
// submission, and the admin approve/decline/list commands. All decisions
// go through the subscription service; the bot only parses and formats.
type Bot struct {
	api     *tgbotapi.BotAPI
	cfg     *config.Config
	service *services.SubscriptionService
	queue   *updateQueue
}

func New(api *tgbotapi.BotAPI, cfg *config.Config, service *services.SubscriptionService) *Bot {
	return &Bot{
		api:     api,
		cfg:     cfg,
		service: service,
		queue:   newUpdateQueue(),
	}
}

// Run polls for updates until the context is cancelled. Users are
// handled concurrently, but a single user's events run one at a time in
// arrival order; each handler gets its own bounded context.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := b.api.GetUpdatesChan(u)
	log.Println("Bot started (polling mode)...")

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.queue.wait()
			log.Println("Bot update loop stopped")
			return
		case update, ok := <-updates:
			if !ok {
				b.queue.wait()
				return
			}
			b.queue.enqueue(updateUserID(update), func() {
				b.handleUpdate(update)
			})
		}
	}
}

// updateUserID keys an update by the acting user so that user's events
// stay ordered relative to each other.
func updateUserID(update tgbotapi.Update) int64 {
	switch {
	case update.CallbackQuery != nil && update.CallbackQuery.From != nil:
		return update.CallbackQuery.From.ID
	case update.Message != nil && update.Message.From != nil:
		return update.Message.From.ID
	}
	return 0
}

func (b *Bot) handleUpdate(update tgbotapi.Update) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.IsCommand():
		b.handleCommand(ctx, update.Message)
	case update.Message != nil && len(update.Message.Photo) > 0:
		b.handlePhoto(ctx, update.Message)
	}
}

func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		log.Printf("Failed to send message to chat %d: %v", chatID, err)
	}
}

func (b *Bot) replyWithKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = keyboard
	if _, err := b.api.Send(msg); err != nil {
		log.Printf("Failed to send message to chat %d: %v", chatID, err)
	}
}

func (b *Bot) editMessage(query *tgbotapi.CallbackQuery, text string) {
	// Stale or inaccessible callbacks carry no message to edit.
	if query.Message == nil {
		log.Printf("Cannot edit message for callback %s, original message is gone", query.ID)
		return
	}
	edit := tgbotapi.NewEditMessageText(query.Message.Chat.ID, query.Message.MessageID, text)
	if _, err := b.api.Send(edit); err != nil {
		log.Printf("Failed to edit message in chat %d: %v", query.Message.Chat.ID, err)
	}
}

func (b *Bot) editCaption(query *tgbotapi.CallbackQuery, text string) {
	if query.Message == nil {
		log.Printf("Cannot edit caption for callback %s, original message is gone", query.ID)
		return
	}
	edit := tgbotapi.NewEditMessageCaption(query.Message.Chat.ID, query.Message.MessageID, text)
	if _, err := b.api.Send(edit); err != nil {
		log.Printf("Failed to edit caption in chat %d: %v", query.Message.Chat.ID, err)
	}
}
