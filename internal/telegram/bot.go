// Package telegram provides the Telegram front-end: the delivery
// collaborator and the user command surface.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/gitwatch/internal/notify"
	"github.com/user/gitwatch/pkg/logger"
)

// Bot represents the Telegram bot.
type Bot struct {
	api      *tgbotapi.BotAPI
	handlers *Handlers
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewBot creates a new Telegram bot instance.
func NewBot(token string, debug bool, handlers *Handlers) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	api.Debug = debug

	logger.Info().Str("username", api.Self.UserName).Msg("Telegram bot authorized")

	ctx, cancel := context.WithCancel(context.Background())
	handlers.api = api
	handlers.botID = strconv.FormatInt(api.Self.ID, 10)

	return &Bot{
		api:      api,
		handlers: handlers,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start begins listening for updates.
func (b *Bot) Start() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case <-b.ctx.Done():
				return
			case update := <-updates:
				if update.Message != nil && update.Message.IsCommand() {
					b.handlers.HandleCommand(b.ctx, update.Message)
				}
			}
		}
	}()

	logger.Info().Msg("Telegram bot started, listening for updates")
}

// Stop gracefully stops the bot.
func (b *Bot) Stop() {
	logger.Info().Msg("Stopping Telegram bot")
	b.cancel()
	b.api.StopReceivingUpdates()
	b.wg.Wait()
}

// API returns the underlying bot API for direct access.
func (b *Bot) API() *tgbotapi.BotAPI {
	return b.api
}

// BotID returns the bot identity used as the destination bot id.
func (b *Bot) BotID() string {
	return strconv.FormatInt(b.api.Self.ID, 10)
}

// Sender delivers rendered artifacts to Telegram chats. It implements
// notify.Sender; the group id is the chat id in decimal.
type Sender struct {
	api *tgbotapi.BotAPI
}

// NewSender creates a delivery adapter over the bot API.
func NewSender(api *tgbotapi.BotAPI) *Sender {
	return &Sender{api: api}
}

// SendMessage delivers each artifact as an individual message.
func (s *Sender) SendMessage(_ context.Context, _ string, groupID string, artifacts []notify.Artifact) error {
	chatID, err := parseChatID(groupID)
	if err != nil {
		return err
	}
	for _, artifact := range artifacts {
		if err := s.sendMarkdown(chatID, artifact.Text); err != nil {
			return err
		}
	}
	return nil
}

// SendAggregated merges the artifacts into one digest message headed by
// the aggregate summary.
func (s *Sender) SendAggregated(_ context.Context, _ string, groupID string, artifacts []notify.Artifact, meta notify.AggregateMeta) error {
	chatID, err := parseChatID(groupID)
	if err != nil {
		return err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📦 *%s*\n%s\n", meta.Source, meta.Summary)
	for _, artifact := range artifacts {
		b.WriteString("\n— — —\n")
		b.WriteString(artifact.Text)
		b.WriteString("\n")
	}
	return s.sendMarkdown(chatID, b.String())
}

func (s *Sender) sendMarkdown(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.DisableWebPagePreview = true

	if _, err := s.api.Send(msg); err != nil {
		logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send message")
		return err
	}
	return nil
}

func parseChatID(groupID string) (int64, error) {
	chatID, err := strconv.ParseInt(groupID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chat id %q: %w", groupID, err)
	}
	return chatID, nil
}
