package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"freegames_bot/internal/model"
)

const (
	msgTryAgain   = "Nothing found right now. Please try again later."
	msgNoFeedData = "No items found in the feeds. Please try again later."
)

func (b *Bot) handleStart(ctx context.Context, chatID int64) {
	sub, err := b.store.GetOrCreate(ctx, chatID, b.defaults)
	if err != nil {
		b.log.Error("get subscriber", "chat_id", chatID, "error", err)
		b.reply(chatID, msgTryAgain)
		return
	}

	b.reply(chatID, fmt.Sprintf(`✅ Free games bot activated.

Active stores: %s
Muted: %s

Use /help for the full command reference.`, FormatSources(sub.Interests), FormatMute(sub, b.now())))
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Commands:
/stores — show and toggle stores
/enable epic steam gog prime — enable stores
/disable epic steam gog prime — disable stores
/mute 1h|12h|24h — pause notifications
/unmute — resume notifications
/status — show your settings
/free — list free games right now
/forcecheck — check now and send what is new
/test — check the bot is alive`)
}

func (b *Bot) handleStores(ctx context.Context, chatID int64) {
	sub, err := b.store.GetOrCreate(ctx, chatID, b.defaults)
	if err != nil {
		b.log.Error("get subscriber", "chat_id", chatID, "error", err)
		b.reply(chatID, msgTryAgain)
		return
	}

	msg := tgbotapi.NewMessage(chatID, fmt.Sprintf(
		"Active stores: %s\nAvailable: %s\n\nTap a store to toggle it, or use:\n/enable epic steam\n/disable prime",
		FormatSources(sub.Interests), strings.Join(b.tagNames(), ", ")))
	msg.ReplyMarkup = b.storesKeyboard(sub.Interests)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send stores", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) tagNames() []string {
	tags := b.classifier.Tags()
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = string(t)
	}
	return out
}

func (b *Bot) storesKeyboard(active model.SourceSet) tgbotapi.InlineKeyboardMarkup {
	var row []tgbotapi.InlineKeyboardButton
	for _, t := range b.classifier.Tags() {
		mark := "▫️"
		if active.Has(t) {
			mark = "✅"
		}
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(mark+" "+strings.ToUpper(string(t)), toggleData(t)))
	}
	return tgbotapi.NewInlineKeyboardMarkup(row)
}

func (b *Bot) handleEnable(ctx context.Context, chatID int64, args []string) {
	b.changeInterests(ctx, chatID, args, "/enable", "Enabled", model.SourceSet.Union)
}

func (b *Bot) handleDisable(ctx context.Context, chatID int64, args []string) {
	b.changeInterests(ctx, chatID, args, "/disable", "Disabled", model.SourceSet.Without)
}

func (b *Bot) changeInterests(ctx context.Context, chatID int64, args []string, cmd, verb string, apply func(model.SourceSet, model.SourceSet) model.SourceSet) {
	tags, _ := b.classifier.ParseTags(args)
	if len(tags) == 0 {
		b.reply(chatID, fmt.Sprintf("Usage: %s %s", cmd, strings.Join(b.tagNames(), " ")))
		return
	}

	sub, err := b.store.GetOrCreate(ctx, chatID, b.defaults)
	if err != nil {
		b.log.Error("get subscriber", "chat_id", chatID, "error", err)
		b.reply(chatID, msgTryAgain)
		return
	}
	if err := b.store.UpdateInterests(ctx, chatID, apply(sub.Interests, tags)); err != nil {
		b.log.Error("update interests", "chat_id", chatID, "error", err)
		b.reply(chatID, msgTryAgain)
		return
	}
	b.reply(chatID, fmt.Sprintf("✅ %s: %s", verb, FormatSources(tags)))
}

func (b *Bot) handleMute(ctx context.Context, chatID int64, args []string) {
	d, err := ParseMuteDuration(args)
	if err != nil {
		b.reply(chatID, "Usage: /mute 1h | 12h | 24h")
		return
	}

	if _, err := b.store.GetOrCreate(ctx, chatID, b.defaults); err != nil {
		b.log.Error("get subscriber", "chat_id", chatID, "error", err)
		b.reply(chatID, msgTryAgain)
		return
	}
	if err := b.store.SetMute(ctx, chatID, b.now().Add(d)); err != nil {
		b.log.Error("set mute", "chat_id", chatID, "error", err)
		b.reply(chatID, msgTryAgain)
		return
	}
	b.reply(chatID, fmt.Sprintf("🔕 Muted for %s.", strings.ToLower(args[0])))
}

func (b *Bot) handleUnmute(ctx context.Context, chatID int64) {
	if _, err := b.store.GetOrCreate(ctx, chatID, b.defaults); err != nil {
		b.log.Error("get subscriber", "chat_id", chatID, "error", err)
		b.reply(chatID, msgTryAgain)
		return
	}
	if err := b.store.SetMute(ctx, chatID, time.Time{}); err != nil {
		b.log.Error("clear mute", "chat_id", chatID, "error", err)
		b.reply(chatID, msgTryAgain)
		return
	}
	b.reply(chatID, "🔔 Notifications resumed.")
}

func (b *Bot) handleStatus(ctx context.Context, chatID int64) {
	sub, err := b.store.GetOrCreate(ctx, chatID, b.defaults)
	if err != nil {
		b.log.Error("get subscriber", "chat_id", chatID, "error", err)
		b.reply(chatID, msgTryAgain)
		return
	}
	delivered, err := b.store.CountDelivered(ctx)
	if err != nil {
		b.log.Error("count delivered", "error", err)
		b.reply(chatID, msgTryAgain)
		return
	}

	b.reply(chatID, FormatStatus(StatusInfo{
		Subscriber: sub,
		Now:        b.now(),
		Interval:   b.cfg.PollInterval,
		Feeds:      len(b.cfg.FeedURLs),
		Delivered:  delivered,
	}))
}

func (b *Bot) handleFree(ctx context.Context, chatID int64) {
	b.reply(chatID, "🎁 Looking for free games right now…")

	offers, _ := b.offers.Aggregate(ctx, b.cfg.FeedURLs)
	if len(offers) == 0 {
		b.reply(chatID, msgNoFeedData)
		return
	}

	view, err := b.engine.Available(ctx, offers, chatID)
	if err != nil {
		b.log.Error("list available offers", "chat_id", chatID, "error", err)
		b.reply(chatID, msgTryAgain)
		return
	}
	if len(view.Offers) == 0 {
		b.reply(chatID, "No offers for your active stores. Use /stores to review them.")
		return
	}

	b.replyHTML(chatID, FormatView(view))
	if view.Truncated {
		b.reply(chatID, fmt.Sprintf("ℹ️ There are more offers, showing only %d.", len(view.Offers)))
	}
}

func (b *Bot) handleForceCheck(ctx context.Context, chatID int64) {
	b.reply(chatID, "🔎 Checking offers right now…")

	offers, _ := b.offers.Aggregate(ctx, b.cfg.FeedURLs)
	if len(offers) == 0 {
		b.reply(chatID, msgNoFeedData)
		return
	}

	res, err := b.engine.DeliverTo(ctx, offers, chatID)
	if err != nil {
		b.log.Error("force check", "chat_id", chatID, "error", err)
		b.reply(chatID, msgTryAgain)
		return
	}
	if res.Muted {
		b.reply(chatID, "🔕 You are muted. Use /unmute.")
		return
	}
	b.reply(chatID, FormatReport(res.Report))
}

func (b *Bot) handleTest(chatID int64) {
	b.reply(chatID, "✅ Bot OK. Use /free or /forcecheck.")
}
