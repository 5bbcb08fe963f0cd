package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"channelPassAPI/internal/types/subscription"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Gateway implements the access gateway on top of the Telegram Bot API:
// single-use invite links for grants, channel bans for revocations, and
// direct messages for notifications.
type Gateway struct {
	bot       *tgbotapi.BotAPI
	channelID int64
	adminIDs  []int64
}

// NewBot builds the underlying Bot API client with a bounded HTTP
// timeout so gateway calls never block indefinitely.
func NewBot(token string) (*tgbotapi.BotAPI, error) {
	client := &http.Client{Timeout: 30 * time.Second}
	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("error initializing telegram bot: %v", err)
	}
	log.Printf("Telegram gateway: authorized as @%s", bot.Self.UserName)
	return bot, nil
}

func NewGateway(bot *tgbotapi.BotAPI, channelID int64, adminIDs []int64) *Gateway {
	return &Gateway{
		bot:       bot,
		channelID: channelID,
		adminIDs:  adminIDs,
	}
}

// GrantAccess creates a single-member invite link that expires with the
// subscription.
func (g *Gateway) GrantAccess(ctx context.Context, userID int64, expiresAt int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", subscription.ErrGateway, err)
	}

	cfg := tgbotapi.CreateChatInviteLinkConfig{
		ChatConfig:  tgbotapi.ChatConfig{ChatID: g.channelID},
		MemberLimit: 1,
		ExpireDate:  int(expiresAt),
	}

	resp, err := g.bot.Request(cfg)
	if err != nil {
		return "", fmt.Errorf("%w: failed to create invite link for user %d: %v", subscription.ErrGateway, userID, err)
	}

	var link tgbotapi.ChatInviteLink
	if err := json.Unmarshal(resp.Result, &link); err != nil {
		return "", fmt.Errorf("%w: failed to decode invite link response: %v", subscription.ErrGateway, err)
	}
	return link.InviteLink, nil
}

// RevokeAccess bans the user from the channel.
func (g *Gateway) RevokeAccess(ctx context.Context, userID int64) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", subscription.ErrGateway, err)
	}

	cfg := tgbotapi.BanChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{
			ChatID: g.channelID,
			UserID: userID,
		},
	}
	if _, err := g.bot.Request(cfg); err != nil {
		return fmt.Errorf("%w: failed to ban user %d from channel: %v", subscription.ErrGateway, userID, err)
	}
	return nil
}

func (g *Gateway) NotifyUser(ctx context.Context, userID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", subscription.ErrGateway, err)
	}

	if _, err := g.bot.Send(tgbotapi.NewMessage(userID, text)); err != nil {
		return fmt.Errorf("%w: failed to message user %d: %v", subscription.ErrGateway, userID, err)
	}
	return nil
}

// NotifyAdmins messages every admin. One admin's failure does not stop
// delivery to the others; an error is returned only when nobody could
// be reached.
func (g *Gateway) NotifyAdmins(ctx context.Context, text string) error {
	delivered := 0
	for _, adminID := range g.adminIDs {
		if err := g.NotifyUser(ctx, adminID, text); err != nil {
			log.Printf("Failed to notify admin %d: %v", adminID, err)
			continue
		}
		delivered++
	}
	if delivered == 0 && len(g.adminIDs) > 0 {
		return fmt.Errorf("%w: no admin could be notified", subscription.ErrGateway)
	}
	return nil
}
