package bot

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"list-manager/internal/model"
	"list-manager/internal/service"
	"list-manager/internal/view"
)

func (b *Bot) handleList(ctx context.Context, msg *tgbotapi.Message) error {
	sess, err := b.session(ctx, msg.From)
	if err != nil {
		return err
	}
	return b.sendList(ctx, msg.Chat.ID, sess)
}

// sendList renders the session's current view.
func (b *Bot) sendList(_ context.Context, chatID int64, sess *service.Session) error {
	text, markup := renderList(sess.Schema(), sess.View(), sess.Filter(), sess.Compact(), time.Now())
	if markup == nil {
		return b.sendText(chatID, text)
	}
	return b.sendWithReplyMarkup(chatID, text, *markup)
}

func (b *Bot) handleFilter(ctx context.Context, msg *tgbotapi.Message, args string) error {
	sess, err := b.session(ctx, msg.From)
	if err != nil {
		return err
	}
	if args == "" {
		return b.sendText(msg.Chat.ID, filterUsage(sess.Schema()))
	}
	f, err := view.ParseFilter(args)
	if err != nil {
		return b.sendText(msg.Chat.ID, escape(err.Error())+"\n\n"+filterUsage(sess.Schema()))
	}
	if err := sess.SetFilter(f); err != nil {
		return b.sendText(msg.Chat.ID, escape(err.Error()))
	}
	return b.sendList(ctx, msg.Chat.ID, sess)
}

func filterUsage(schema *model.Schema) string {
	var names []string
	for _, f := range schema.Fields {
		if f.Kind == model.KindEnum || f.Kind == model.KindBool || f.Kind == model.KindTags {
			names = append(names, f.Name)
		}
	}
	return fmt.Sprintf("Usage: /filter field=value1,value2\nClear with /filter field=\nFilterable: <code>%s</code>", escape(strings.Join(names, ", ")))
}

func (b *Bot) handleSearch(ctx context.Context, msg *tgbotapi.Message, query string) error {
	sess, err := b.session(ctx, msg.From)
	if err != nil {
		return err
	}
	sess.SetSearch(query)
	return b.sendList(ctx, msg.Chat.ID, sess)
}

func (b *Bot) handleSort(ctx context.Context, msg *tgbotapi.Message, args string) error {
	sess, err := b.session(ctx, msg.From)
	if err != nil {
		return err
	}
	parts := strings.Fields(args)
	if len(parts) == 0 {
		return b.sendText(msg.Chat.ID, "Usage: /sort field [desc]\nExtra keys: <code>createdAt</code>, <code>updatedAt</code>")
	}
	desc := len(parts) > 1 && strings.EqualFold(parts[1], "desc")
	if err := sess.SetSort(parts[0], desc); err != nil {
		return b.sendText(msg.Chat.ID, escape(err.Error()))
	}
	return b.sendList(ctx, msg.Chat.ID, sess)
}

func (b *Bot) handleReset(ctx context.Context, msg *tgbotapi.Message) error {
	sess, err := b.session(ctx, msg.From)
	if err != nil {
		return err
	}
	sess.ResetView()
	return b.sendList(ctx, msg.Chat.ID, sess)
}

func (b *Bot) handleToggle(ctx context.Context, msg *tgbotapi.Message, args string) error {
	parts := strings.Fields(args)
	if len(parts) == 0 {
		return b.sendText(msg.Chat.ID, "Give the entry id: /toggle 1a2b3c4d [field]")
	}
	sess, err := b.session(ctx, msg.From)
	if err != nil {
		return err
	}
	id, err := sess.Resolve(parts[0])
	if err != nil {
		return b.replyError(msg.Chat.ID, sess, err)
	}
	field := ""
	if len(parts) > 1 {
		field = parts[1]
	}
	rec, err := sess.Toggle(ctx, id, field)
	if err != nil {
		return b.replyError(msg.Chat.ID, sess, err)
	}
	if err := b.sendText(msg.Chat.ID, "🔄 "+renderRecordCard(sess.Schema(), rec)); err != nil {
		return err
	}
	return b.sendList(ctx, msg.Chat.ID, sess)
}

func (b *Bot) askDeleteConfirmation(ctx context.Context, chatID int64, from *tgbotapi.User, ref string) error {
	sess, err := b.session(ctx, from)
	if err != nil {
		return err
	}
	id, err := sess.Resolve(ref)
	if err != nil {
		return b.replyError(chatID, sess, err)
	}
	rec, _ := sess.Get(id)
	text := "🗑 Delete this entry?\n" + renderRecordCard(sess.Schema(), rec)
	return b.sendWithReplyMarkup(chatID, text, confirmKeyboard(id))
}

func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) error {
	if cq.From == nil || cq.Message == nil {
		return nil
	}
	chatID := cq.Message.Chat.ID
	data := cq.Data
	log.Printf("[info] callback from %d: %s", cq.From.ID, data)

	sess, err := b.session(ctx, cq.From)
	if err != nil {
		return err
	}

	var answer string
	switch {
	case strings.HasPrefix(data, cbTogglePrefix):
		rec, err := sess.Toggle(ctx, strings.TrimPrefix(data, cbTogglePrefix), "")
		if err != nil {
			answer = "Cannot toggle this entry"
			break
		}
		answer = fmt.Sprintf("%s → %s", shortTitle(rec.Text(sess.Schema().TitleField().Name), 24), rec.Text(sess.Schema().StatusField))
		b.refreshList(cq.Message, sess)
	case strings.HasPrefix(data, cbEditPrefix):
		if err := b.startEditConversation(ctx, chatID, cq.From, strings.TrimPrefix(data, cbEditPrefix)); err != nil {
			return err
		}
	case strings.HasPrefix(data, cbDeletePrefix):
		if err := b.askDeleteConfirmation(ctx, chatID, cq.From, strings.TrimPrefix(data, cbDeletePrefix)); err != nil {
			return err
		}
	case strings.HasPrefix(data, cbConfirmPrefix):
		if sess.Remove(ctx, strings.TrimPrefix(data, cbConfirmPrefix)) {
			answer = "Deleted"
			b.editText(cq.Message, "🗑 Entry deleted.")
			if err := b.sendList(ctx, chatID, sess); err != nil {
				log.Printf("send list: %v", err)
			}
		} else {
			answer = "Already deleted"
			b.editText(cq.Message, "Entry was already deleted.")
		}
	case strings.HasPrefix(data, cbCancelPrefix):
		answer = "Kept"
		b.editText(cq.Message, "↩️ Deletion cancelled.")
	case strings.HasPrefix(data, cbDismissPrefix):
		id, err := strconv.Atoi(strings.TrimPrefix(data, cbDismissPrefix))
		if err == nil && sess.Dismiss(id) {
			answer = "Dismissed"
		}
	}

	if _, err := b.api.Request(tgbotapi.NewCallback(cq.ID, answer)); err != nil {
		log.Printf("answer callback: %v", err)
	}
	b.flushNotices(ctx, chatID, cq.From)
	return nil
}

// refreshList re-renders a list message in place after an inline action.
func (b *Bot) refreshList(msg *tgbotapi.Message, sess *service.Session) {
	text, markup := renderList(sess.Schema(), sess.View(), sess.Filter(), sess.Compact(), time.Now())
	edit := tgbotapi.NewEditMessageText(msg.Chat.ID, msg.MessageID, text)
	edit.ParseMode = tgbotapi.ModeHTML
	edit.ReplyMarkup = markup
	if _, err := b.api.Send(edit); err != nil {
		log.Printf("refresh list: %v", err)
	}
}

func (b *Bot) editText(msg *tgbotapi.Message, text string) {
	edit := tgbotapi.NewEditMessageText(msg.Chat.ID, msg.MessageID, text)
	edit.ParseMode = tgbotapi.ModeHTML
	if _, err := b.api.Send(edit); err != nil {
		log.Printf("edit message: %v", err)
	}
}
