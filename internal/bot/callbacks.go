package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"freegames_bot/internal/model"
)

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil || cb.Message.Chat == nil {
		return
	}
	chatID := cb.Message.Chat.ID

	tag, err := ParseToggleData(cb.Data)
	if err != nil || !b.classifier.Known(tag) {
		b.answer(cb.ID, "")
		return
	}

	b.log.Info("callback", "action", actionToggle, "tag", tag, "chat_id", chatID)

	sub, err := b.store.GetOrCreate(ctx, chatID, b.defaults)
	if err != nil {
		b.log.Error("get subscriber", "chat_id", chatID, "error", err)
		b.answer(cb.ID, msgTryAgain)
		return
	}

	toggled := model.NewSourceSet(tag)
	next, verb := sub.Interests.Union(toggled), "enabled"
	if sub.Interests.Has(tag) {
		next, verb = sub.Interests.Without(toggled), "disabled"
	}
	if err := b.store.UpdateInterests(ctx, chatID, next); err != nil {
		b.log.Error("update interests", "chat_id", chatID, "error", err)
		b.answer(cb.ID, msgTryAgain)
		return
	}

	b.answer(cb.ID, strings.ToUpper(string(tag))+" "+verb)

	edit := tgbotapi.NewEditMessageReplyMarkup(chatID, cb.Message.MessageID, b.storesKeyboard(next))
	if _, err := b.api.Send(edit); err != nil {
		b.log.Error("update stores keyboard", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) answer(callbackID, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		b.log.Error("send callback ack", "error", err)
	}
}
