package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"freegames_bot/internal/classifier"
	"freegames_bot/internal/config"
	"freegames_bot/internal/delivery"
	"freegames_bot/internal/model"
	"freegames_bot/internal/storage"
)

// ErrDelivery marks a failure to deliver a notification to one chat.
var ErrDelivery = errors.New("deliver notification")

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// OfferSource aggregates the current offers from all feeds.
type OfferSource interface {
	Aggregate(ctx context.Context, urls []string) ([]model.Offer, []error)
}

// Deliverer runs on-demand delivery passes for a single chat.
type Deliverer interface {
	DeliverTo(ctx context.Context, offers []model.Offer, id int64) (delivery.TargetResult, error)
	Available(ctx context.Context, offers []model.Offer, id int64) (model.View, error)
}

// Bot is the Telegram bot that handles user commands and sends notifications.
type Bot struct {
	api        telegramAPI
	store      storage.Storage
	classifier *classifier.Classifier
	offers     OfferSource
	engine     Deliverer
	defaults   model.SourceSet
	cfg        *config.Config
	now        func() time.Time
	log        *slog.Logger
}

// New creates a Bot with the given Telegram token, storage, and config.
// SetDelivery must be called before Run.
func New(token string, store storage.Storage, c *classifier.Classifier, defaults model.SourceSet, cfg *config.Config, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	return &Bot{
		api:        api,
		store:      store,
		classifier: c,
		defaults:   defaults,
		cfg:        cfg,
		now:        time.Now,
		log:        log,
	}, nil
}

// SetDelivery wires the offer source and the delivery engine. The engine
// itself notifies through the Bot, so the two are connected after creation.
func (b *Bot) SetDelivery(offers OfferSource, engine Deliverer) {
	b.offers = offers
	b.engine = engine
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled.
// Every update is handled on its own goroutine.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() {
					if r := recover(); r != nil {
						b.log.Error("panic handling update", "update_id", update.UpdateID, "panic", r, "stack", string(debug.Stack()))
					}
				}()
				b.handleUpdate(ctx, update)
			}()
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.CallbackQuery != nil {
		if update.CallbackQuery.From != nil && !b.cfg.IsUserAllowed(update.CallbackQuery.From.ID) {
			return
		}
		b.handleCallback(ctx, update.CallbackQuery)
		return
	}
	if update.Message == nil || !update.Message.IsCommand() {
		return
	}
	if update.Message.From != nil && !b.cfg.IsUserAllowed(update.Message.From.ID) {
		b.reply(update.Message.Chat.ID, "Access denied.")
		return
	}
	b.handleCommand(ctx, update.Message)
}

// Notify sends an offer notification with an "Open offer" button.
func (b *Bot) Notify(ctx context.Context, chatID int64, offer model.Offer) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w to chat %d: %w", ErrDelivery, chatID, err)
	}

	msg := tgbotapi.NewMessage(chatID, FormatOffer(offer))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("🔗 Open offer", offer.Link),
		),
	)
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("%w to chat %d: %w", ErrDelivery, chatID, err)
	}
	return nil
}

// SendMessage sends a plain text message to the given chat.
func (b *Bot) SendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) reply(chatID int64, text string) {
	b.SendMessage(chatID, text)
}

func (b *Bot) replyHTML(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.Fields(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)

	switch cmd {
	case "start":
		b.handleStart(ctx, chatID)
	case "help":
		b.handleHelp(chatID)
	case "stores":
		b.handleStores(ctx, chatID)
	case "enable":
		b.handleEnable(ctx, chatID, args)
	case "disable":
		b.handleDisable(ctx, chatID, args)
	case "mute":
		b.handleMute(ctx, chatID, args)
	case "unmute":
		b.handleUnmute(ctx, chatID)
	case "status":
		b.handleStatus(ctx, chatID)
	case "free":
		b.handleFree(ctx, chatID)
	case "forcecheck":
		b.handleForceCheck(ctx, chatID)
	case "test":
		b.handleTest(chatID)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}
