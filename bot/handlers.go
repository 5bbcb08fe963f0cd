package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"channelPassAPI/internal/types/subscription"
	"channelPassAPI/services"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		b.handleStart(msg)
	case "help":
		b.handleHelp(msg)
	case "status":
		b.handleStatus(ctx, msg)
	case "renew":
		b.handleRenew(ctx, msg)
	case "approve":
		b.handleApproveCommand(ctx, msg)
	case "list":
		b.handleList(ctx, msg)
	}
}

func (b *Bot) handleStart(msg *tgbotapi.Message) {
	welcome := "Welcome to our premium private channel!\n\n" +
		"To unlock full access, select your membership plan below and complete the payment.\n" +
		"1. Choose your membership\n" +
		"2. Make the payment\n" +
		"3. Send a screenshot of the transaction\n\n" +
		"You will get your invite link as soon as an admin approves your payment."
	b.replyWithKeyboard(msg.Chat.ID, welcome, b.planKeyboard())
}

func (b *Bot) handleHelp(msg *tgbotapi.Message) {
	help := "Available commands\n\n" +
		"For everyone:\n" +
		"/start – Choose a subscription plan\n" +
		"/help – Show this message\n" +
		"/status – Check your subscription status\n" +
		"/renew – Request renewal\n\n" +
		"For admins only:\n" +
		"/approve <user_id> [months] – Manually approve (default 1 month)\n" +
		"/list – List all subscribers"
	b.reply(msg.Chat.ID, help)
}

func (b *Bot) handleStatus(ctx context.Context, msg *tgbotapi.Message) {
	status, err := b.service.Status(ctx, msg.From.ID)
	if err != nil {
		log.Printf("Status lookup for user %d failed: %v", msg.From.ID, err)
		b.reply(msg.Chat.ID, "Could not check your status right now, please try again later.")
		return
	}

	switch status.State {
	case subscription.StateActive:
		days := int(status.Remaining.Hours()) / 24
		hours := int(status.Remaining.Hours()) % 24
		b.reply(msg.Chat.ID, fmt.Sprintf(
			"You are subscribed!\nExpires: %s\nTime left: %d days, %d hours",
			formatExpiry(status.ExpiresAt), days, hours,
		))
	case subscription.StateExpired:
		b.reply(msg.Chat.ID, "Your subscription has expired. Use /renew to request renewal.")
	default:
		b.reply(msg.Chat.ID, "You are not subscribed. Send /start to choose a plan.")
	}
}

func (b *Bot) handleRenew(ctx context.Context, msg *tgbotapi.Message) {
	if err := b.service.RequestRenewal(ctx, msg.From.ID, msg.From.FirstName); err != nil {
		log.Printf("Renewal request from user %d failed: %v", msg.From.ID, err)
		b.reply(msg.Chat.ID, "Could not reach the admins right now, please try again later.")
		return
	}
	b.reply(msg.Chat.ID, "Your renewal request has been sent to the admins.")
}

func (b *Bot) handleApproveCommand(ctx context.Context, msg *tgbotapi.Message) {
	userID, months, err := parseApproveArgs(msg.CommandArguments())
	if err != nil {
		b.reply(msg.Chat.ID, "Usage: /approve <user_id> [months]")
		return
	}

	result, err := b.service.Approve(ctx, msg.From.ID, userID, months)
	b.reply(msg.Chat.ID, approvalReply(result, err))
}

func (b *Bot) handleList(ctx context.Context, msg *tgbotapi.Message) {
	subs, err := b.service.ListSubscribers(ctx, msg.From.ID)
	if err != nil {
		if errors.Is(err, subscription.ErrUnauthorized) {
			b.reply(msg.Chat.ID, "Unauthorized.")
			return
		}
		log.Printf("List subscribers failed: %v", err)
		b.reply(msg.Chat.ID, "Could not list subscribers right now.")
		return
	}
	if len(subs) == 0 {
		b.reply(msg.Chat.ID, "No subscribers.")
		return
	}

	now := time.Now().Unix()
	lines := []string{"Subscribers:"}
	for _, sub := range subs {
		marker := "active"
		if sub.Expired(now) {
			marker = "expired"
		}
		lines = append(lines, fmt.Sprintf("%d – expires %s (%s)", sub.UserID, formatExpiry(sub.ExpiresAt), marker))
	}
	b.reply(msg.Chat.ID, strings.Join(lines, "\n"))
}

func (b *Bot) handleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	// Acknowledge the button press so the client stops its spinner.
	if _, err := b.api.Request(tgbotapi.NewCallback(query.ID, "")); err != nil {
		log.Printf("Failed to answer callback query: %v", err)
	}

	parts := strings.Split(query.Data, ":")
	switch parts[0] {
	case "plan":
		b.handlePlanCallback(query, parts)
	case "approve":
		b.handleApproveCallback(ctx, query, parts)
	case "decline":
		b.handleDeclineCallback(ctx, query, parts)
	}
}

func (b *Bot) handlePlanCallback(query *tgbotapi.CallbackQuery, parts []string) {
	if len(parts) != 2 {
		return
	}
	months, err := strconv.Atoi(parts[1])
	if err != nil {
		return
	}

	sel, err := b.service.RecordPlanSelection(query.From.ID, months)
	if err != nil {
		b.editMessage(query, "That plan is not available, please use /start to pick again.")
		return
	}

	b.editMessage(query, fmt.Sprintf(
		"You selected %d month(s) – Total: %d\n\n"+
			"Please send %d to the following account:\n%s\n\n"+
			"After payment, send a screenshot of the transaction here.",
		sel.Months, sel.Price, sel.Price, b.cfg.PaymentAccount,
	))
}

func (b *Bot) handleApproveCallback(ctx context.Context, query *tgbotapi.CallbackQuery, parts []string) {
	if len(parts) != 3 {
		return
	}
	userID, err1 := strconv.ParseInt(parts[1], 10, 64)
	months, err2 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil {
		return
	}

	result, err := b.service.Approve(ctx, query.From.ID, userID, months)
	b.editResponse(query, approvalReply(result, err))
}

func (b *Bot) handleDeclineCallback(ctx context.Context, query *tgbotapi.CallbackQuery, parts []string) {
	if len(parts) != 2 {
		return
	}
	userID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return
	}

	if err := b.service.Decline(ctx, query.From.ID, userID); err != nil {
		if errors.Is(err, subscription.ErrUnauthorized) {
			b.editResponse(query, "Unauthorized.")
			return
		}
		b.editResponse(query, fmt.Sprintf("Decline failed: %v", err))
		return
	}
	b.editResponse(query, fmt.Sprintf("Declined user %d.", userID))
}

func (b *Bot) handlePhoto(ctx context.Context, msg *tgbotapi.Message) {
	sel, ok := b.service.PlanSelection(msg.From.ID)
	if !ok {
		b.replyWithKeyboard(msg.Chat.ID,
			"Please first choose a subscription plan using /start.", b.planKeyboard())
		return
	}

	// Largest resolution is last in the photo sizes array.
	photo := msg.Photo[len(msg.Photo)-1]
	caption := fmt.Sprintf(
		"New payment screenshot\nFrom: %s\nUser ID: %d\nUsername: @%s\nPlan: %d month(s) – %d\nSubmission: %s",
		msg.From.FirstName, msg.From.ID, usernameOrNA(msg.From.UserName), sel.Months, sel.Price, sel.ID,
	)
	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("Approve (%d months)", sel.Months),
				fmt.Sprintf("approve:%d:%d", msg.From.ID, sel.Months),
			),
			tgbotapi.NewInlineKeyboardButtonData("Decline", fmt.Sprintf("decline:%d", msg.From.ID)),
		),
	)

	for _, adminID := range b.cfg.AdminIDs {
		forward := tgbotapi.NewPhoto(adminID, tgbotapi.FileID(photo.FileID))
		forward.Caption = caption
		forward.ReplyMarkup = keyboard
		if _, err := b.api.Send(forward); err != nil {
			log.Printf("Failed to forward payment proof to admin %d: %v", adminID, err)
		}
	}
	b.service.AlertPaymentProof(ctx, sel)

	b.reply(msg.Chat.ID, "Your screenshot has been sent. You'll be notified once approved.")
	b.service.ClearPlanSelection(msg.From.ID)
}

func (b *Bot) planKeyboard() tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, months := range b.cfg.PlanMonths() {
		price, _ := b.cfg.PriceFor(months)
		label := fmt.Sprintf("%d Month – %d", months, price)
		if months > 1 {
			label = fmt.Sprintf("%d Months – %d", months, price)
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, fmt.Sprintf("plan:%d", months)),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// editResponse edits the admin's message in place, whether it was a
// plain text message or a forwarded photo with a caption.
func (b *Bot) editResponse(query *tgbotapi.CallbackQuery, text string) {
	if query.Message != nil && len(query.Message.Photo) > 0 {
		b.editCaption(query, text)
		return
	}
	b.editMessage(query, text)
}

// approvalReply formats the admin-facing confirmation for an approval,
// including the fact that the record is committed even when invite
// delivery failed.
func approvalReply(result *services.ApprovalResult, err error) string {
	if err != nil {
		if errors.Is(err, subscription.ErrUnauthorized) {
			return "Unauthorized."
		}
		if errors.Is(err, subscription.ErrValidation) {
			return "Usage: /approve <user_id> [months]"
		}
		if errors.Is(err, subscription.ErrGateway) && result != nil {
			return fmt.Sprintf(
				"Subscription for user %d committed until %s, but the invite could not be delivered: %v\nPlease resend the invite manually.",
				result.UserID, formatExpiry(result.ExpiresAt), err,
			)
		}
		return fmt.Sprintf("Approval failed: %v", err)
	}
	return fmt.Sprintf("Approved user %d for %d month(s).\n\nInvite link sent.", result.UserID, result.Months)
}

// parseApproveArgs parses "/approve <user_id> [months]" arguments.
// Months defaults to 1.
func parseApproveArgs(arguments string) (int64, int, error) {
	fields := strings.Fields(arguments)
	if len(fields) < 1 {
		return 0, 0, fmt.Errorf("%w: user_id is required", subscription.ErrValidation)
	}

	userID, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: user_id must be a number", subscription.ErrValidation)
	}

	months := 1
	if len(fields) > 1 {
		months, err = strconv.Atoi(fields[1])
		if err != nil || months <= 0 {
			return 0, 0, fmt.Errorf("%w: months must be a positive number", subscription.ErrValidation)
		}
	}
	return userID, months, nil
}

func formatExpiry(timestamp int64) string {
	return time.Unix(timestamp, 0).Format("2006-01-02 15:04:05")
}

func usernameOrNA(username string) string {
	if username == "" {
		return "N/A"
	}
	return username
}
