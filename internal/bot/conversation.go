package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"list-manager/internal/form"
	"list-manager/internal/model"
	"list-manager/internal/mutate"
	"list-manager/internal/service"
)

// conversationState is a form being filled one field per message.
type conversationState struct {
	recordID string // empty when creating
	draft    form.Draft
	step     int
	review   bool
}

func (s *conversationState) editing() bool { return s.recordID != "" }

func (b *Bot) startCreateConversation(ctx context.Context, chatID int64, from *tgbotapi.User) error {
	if _, err := b.ensureUser(ctx, from); err != nil {
		return err
	}
	schema := b.lists.Schema()
	state := &conversationState{draft: form.ToDraft(schema, nil)}
	b.setConversation(from.ID, state)
	log.Printf("[info] start create conversation user=%d", from.ID)
	if err := b.sendText(chatID, fmt.Sprintf("🆕 New %s entry. Send each value, or tap «Skip» to keep the default.", escape(schema.Title))); err != nil {
		return err
	}
	return b.promptStep(chatID, state)
}

func (b *Bot) startEditConversation(ctx context.Context, chatID int64, from *tgbotapi.User, ref string) error {
	sess, err := b.session(ctx, from)
	if err != nil {
		return err
	}
	id, err := sess.Resolve(ref)
	if err != nil {
		return b.replyError(chatID, sess, err)
	}
	rec, ok := sess.Get(id)
	if !ok {
		return b.sendText(chatID, "Entry not found.")
	}
	state := &conversationState{recordID: id, draft: form.ToDraft(sess.Schema(), &rec)}
	b.setConversation(from.ID, state)
	log.Printf("[info] start edit conversation user=%d record=%s", from.ID, id)
	if err := b.sendText(chatID, "✏️ Editing:\n"+renderRecordCard(sess.Schema(), rec)+"\n\nSend a new value or tap «Skip» to keep the current one."); err != nil {
		return err
	}
	return b.promptStep(chatID, state)
}

// startReviewConversation opens a filled draft for confirmation.
func (b *Bot) startReviewConversation(chatID int64, userID int64, draft form.Draft) error {
	state := &conversationState{draft: draft, review: true}
	b.setConversation(userID, state)
	return b.sendWithReplyMarkup(chatID, "🤖 Suggested entry:\n"+renderDraft(b.lists.Schema(), draft)+"\n\nSave it?", reviewKeyboard())
}

func (b *Bot) promptStep(chatID int64, state *conversationState) error {
	schema := b.lists.Schema()
	f := schema.Fields[state.step]
	var text strings.Builder
	text.WriteString(fmt.Sprintf("<b>Step %d/%d: %s</b>", state.step+1, len(schema.Fields), escape(f.DisplayName())))
	if hint := fieldHint(f); hint != "" {
		text.WriteString(fmt.Sprintf(" <i>(%s)</i>", escape(hint)))
	}
	if cur := strings.TrimSpace(state.draft[f.Name]); cur != "" {
		text.WriteString(fmt.Sprintf("\nCurrent: <code>%s</code>", escape(cur)))
	}
	return b.sendWithReplyMarkup(chatID, text.String(), fieldKeyboard(f))
}

func fieldHint(f model.FieldDef) string {
	var parts []string
	if f.Required {
		parts = append(parts, "required")
	}
	switch f.Kind {
	case model.KindDate:
		parts = append(parts, "YYYY-MM-DD")
	case model.KindNumber:
		parts = append(parts, "number")
	case model.KindTags:
		parts = append(parts, "comma-separated")
	case model.KindBool:
		parts = append(parts, "yes or no")
	}
	return strings.Join(parts, ", ")
}

func (b *Bot) handleConversation(ctx context.Context, msg *tgbotapi.Message) error {
	state := b.getConversation(msg.From.ID)
	if state == nil {
		return nil
	}
	schema := b.lists.Schema()
	text := strings.TrimSpace(msg.Text)

	if state.review {
		if isSaveInput(text) {
			return b.submitConversation(ctx, msg.Chat.ID, msg.From, state)
		}
		return b.sendWithReplyMarkup(msg.Chat.ID, "Tap «Save» or «Stop editing».", reviewKeyboard())
	}

	f := schema.Fields[state.step]
	value := state.draft[f.Name]
	switch {
	case isSkipInput(text):
	case isClearInput(text):
		value = ""
	default:
		value = text
		if f.Kind == model.KindBool {
			value = boolInput(text)
		}
	}
	if _, problem := form.ParseValue(f, strings.TrimSpace(value)); problem != "" {
		return b.sendWithReplyMarkup(msg.Chat.ID, fmt.Sprintf("%s %s. Try again.", escape(f.DisplayName()), escape(problem)), fieldKeyboard(f))
	}
	state.draft[f.Name] = value
	state.step++
	if state.step < len(schema.Fields) {
		return b.promptStep(msg.Chat.ID, state)
	}
	return b.submitConversation(ctx, msg.Chat.ID, msg.From, state)
}

// submitConversation validates the whole draft and applies it. Field errors
// send the user back to the first failing field.
func (b *Bot) submitConversation(ctx context.Context, chatID int64, from *tgbotapi.User, state *conversationState) error {
	sess, err := b.session(ctx, from)
	if err != nil {
		return err
	}
	schema := sess.Schema()

	fields, err := sess.FieldsFromDraft(state.draft)
	var rec model.Record
	if err == nil {
		if state.editing() {
			rec, err = sess.Update(ctx, state.recordID, fields)
		} else {
			rec, err = sess.Create(ctx, fields)
		}
	}

	var verr *model.ValidationError
	switch {
	case errors.As(err, &verr):
		state.review = false
		state.step = firstInvalidStep(schema, verr)
		if err := b.sendText(chatID, renderValidation(schema, verr)); err != nil {
			return err
		}
		return b.promptStep(chatID, state)
	case err != nil:
		b.clearConversation(from.ID)
		return b.replyError(chatID, sess, err)
	}

	b.clearConversation(from.ID)
	verb := "saved"
	if state.editing() {
		verb = "updated"
	}
	if err := b.sendText(chatID, fmt.Sprintf("✅ <b>Entry %s</b>\n%s", verb, renderRecordCard(schema, rec))); err != nil {
		return err
	}
	return b.sendList(ctx, chatID, sess)
}

func firstInvalidStep(schema *model.Schema, verr *model.ValidationError) int {
	for i, f := range schema.Fields {
		if _, bad := verr.Fields[f.Name]; bad {
			return i
		}
	}
	return 0
}

// replyError turns service errors into user-facing replies.
func (b *Bot) replyError(chatID int64, sess *service.Session, err error) error {
	var verr *model.ValidationError
	var nf mutate.NotFoundError
	var cerr *model.CollaboratorError
	switch {
	case errors.As(err, &verr):
		return b.sendText(chatID, renderValidation(sess.Schema(), verr))
	case errors.As(err, &nf):
		return b.sendText(chatID, "Entry not found. It may have been deleted already.")
	case errors.Is(err, service.ErrAmbiguousID):
		return b.sendText(chatID, "Several entries start with that id. Type a few more characters.")
	case errors.Is(err, mutate.ErrNotToggleable):
		return b.sendText(chatID, fmt.Sprintf("That field cannot be toggled: %s", escape(err.Error())))
	case errors.As(err, &cerr):
		return b.sendText(chatID, fmt.Sprintf("🤖 %s", escape(err.Error())))
	default:
		return b.sendText(chatID, fmt.Sprintf("Error: %s", escape(err.Error())))
	}
}
