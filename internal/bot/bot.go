package bot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"list-manager/internal/model"
	"list-manager/internal/repository"
	"list-manager/internal/service"
	"list-manager/internal/suggest"
	"list-manager/internal/transfer"
)

// Bot aggregates Telegram API with services.
type Bot struct {
	api         *tgbotapi.BotAPI
	userRepo    *repository.UserRepository
	lists       *service.ListService
	reminderSvc *service.ReminderService
	suggestSvc  *service.SuggestService
	http        *http.Client

	conversations map[int64]*conversationState
	awaitImport   map[int64]bool
	shownNotices  map[int64]int
	mu            sync.Mutex
}

func New(token string, userRepo *repository.UserRepository, lists *service.ListService, reminderSvc *service.ReminderService, suggestSvc *service.SuggestService) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	log.Printf("[info] bot authorized on account %s", api.Self.UserName)

	return &Bot{
		api:           api,
		userRepo:      userRepo,
		lists:         lists,
		reminderSvc:   reminderSvc,
		suggestSvc:    suggestSvc,
		http:          &http.Client{Timeout: 30 * time.Second},
		conversations: make(map[int64]*conversationState),
		awaitImport:   make(map[int64]bool),
		shownNotices:  make(map[int64]int),
	}, nil
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	log.Println("[info] start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		switch {
		case update.CallbackQuery != nil:
			if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
				log.Printf("handle callback: %v", err)
			}
		case update.Message != nil:
			if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
				continue
			}
			if err := b.handleMessage(ctx, update.Message); err != nil {
				log.Printf("handle message: %v", err)
			}
			if update.Message.From != nil {
				b.flushNotices(ctx, update.Message.Chat.ID, update.Message.From)
			}
		}
	}

	return nil
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}

	if msg.Document != nil {
		return b.handleDocument(ctx, msg)
	}

	if len(msg.Photo) > 0 {
		return b.handlePhoto(ctx, msg)
	}

	if !msg.IsCommand() && isCancelDialogInput(msg.Text) && b.hasConversation(msg.From.ID) {
		b.clearConversation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "⏪ Editing cancelled.")
	}

	if !msg.IsCommand() {
		if handled, err := b.handleMenuAlias(ctx, msg); handled {
			return err
		}
	}

	if msg.IsCommand() {
		log.Printf("[info] command from %d: /%s %s", msg.From.ID, msg.Command(), msg.CommandArguments())
		return b.handleCommand(ctx, msg)
	}

	if b.hasConversation(msg.From.ID) {
		log.Printf("[info] conversation step %d from %d", b.getConversation(msg.From.ID).step, msg.From.ID)
		return b.handleConversation(ctx, msg)
	}

	return b.sendText(msg.Chat.ID, "I did not understand that. Use /new to add an entry or /help for the command list.")
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	args := strings.TrimSpace(msg.CommandArguments())
	switch msg.Command() {
	case "start":
		return b.handleStart(ctx, msg)
	case "help":
		return b.handleHelp(msg)
	case "new":
		return b.startCreateConversation(ctx, msg.Chat.ID, msg.From)
	case "list":
		return b.handleList(ctx, msg)
	case "filter":
		return b.handleFilter(ctx, msg, args)
	case "search":
		return b.handleSearch(ctx, msg, args)
	case "sort":
		return b.handleSort(ctx, msg, args)
	case "reset":
		return b.handleReset(ctx, msg)
	case "edit":
		if args == "" {
			return b.sendText(msg.Chat.ID, "Give the entry id: /edit 1a2b3c4d")
		}
		return b.startEditConversation(ctx, msg.Chat.ID, msg.From, args)
	case "toggle":
		return b.handleToggle(ctx, msg, args)
	case "delete":
		if args == "" {
			return b.sendText(msg.Chat.ID, "Give the entry id: /delete 1a2b3c4d")
		}
		return b.askDeleteConfirmation(ctx, msg.Chat.ID, msg.From, args)
	case "export":
		return b.handleExport(ctx, msg, args)
	case "import":
		b.setAwaitImport(msg.From.ID, true)
		return b.sendText(msg.Chat.ID, "📥 Send a JSON file with the full list. It replaces the current entries.")
	case "suggest":
		return b.handleSuggest(ctx, msg, args)
	case "extract":
		return b.handleExtract(ctx, msg.Chat.ID, msg.From, args, nil)
	case "compact":
		return b.handleCompact(ctx, msg)
	case "report":
		return b.handleReport(ctx, msg)
	case "notices":
		return b.handleNotices(ctx, msg)
	case "cancel":
		b.clearConversation(msg.From.ID)
		b.setAwaitImport(msg.From.ID, false)
		if b.suggestSvc.Enabled() {
			b.suggestSvc.Cancel(ownerOf(msg.From))
		}
		return b.sendText(msg.Chat.ID, "⏪ Cancelled.")
	default:
		return b.sendText(msg.Chat.ID, "Unknown command. See /help.")
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	if _, err := b.ensureUser(ctx, msg.From); err != nil {
		return err
	}

	name := strings.TrimSpace(msg.From.FirstName)
	if name == "" {
		name = "there"
	}

	text := fmt.Sprintf("👋 Hi, %s!\n<b>I keep your %s list.</b>\n\n%s", escape(name), escape(b.lists.Schema().Title), helpText)
	return b.sendText(msg.Chat.ID, text)
}

const helpText = "Commands:\n" +
	"• /new - add an entry step by step\n" +
	"• /list - show the list with buttons\n" +
	"• /edit &lt;id&gt; - edit an entry (a unique id prefix is enough)\n" +
	"• /toggle &lt;id&gt; [field] - advance the status or flip a yes/no field\n" +
	"• /delete &lt;id&gt; - delete an entry\n" +
	"• /filter field=a,b - keep matching entries; field= clears\n" +
	"• /search text - search titles and notes\n" +
	"• /sort field [desc] - change the order\n" +
	"• /reset - clear filters, search and sort\n" +
	"• /export [json|csv] - download the list\n" +
	"• /import - replace the list from a JSON file\n" +
	"• /suggest goal - ask AI for new entries\n" +
	"• /extract text - let AI fill an entry (or send a photo with a caption)\n" +
	"• /compact - toggle short list rows\n" +
	"• /report - summary of open entries\n" +
	"• /notices - show and clear warnings\n" +
	"• /cancel - stop the current input"

func (b *Bot) handleHelp(msg *tgbotapi.Message) error {
	schema := b.lists.Schema()
	var fields strings.Builder
	for _, f := range schema.Fields {
		fields.WriteString(fmt.Sprintf("\n• <code>%s</code> %s", escape(f.Name), escape(string(f.Kind))))
		if f.Kind == model.KindEnum {
			fields.WriteString(": " + escape(strings.Join(f.Values, ", ")))
		}
	}
	return b.sendText(msg.Chat.ID, "ℹ️ <b>Help</b>\n"+helpText+"\n\n<b>Fields</b>"+fields.String())
}

func (b *Bot) handleMenuAlias(ctx context.Context, msg *tgbotapi.Message) (bool, error) {
	text := strings.TrimSpace(strings.ToLower(msg.Text))
	switch text {
	case strings.ToLower(menuLabelNew):
		return true, b.startCreateConversation(ctx, msg.Chat.ID, msg.From)
	case strings.ToLower(menuLabelList):
		return true, b.handleList(ctx, msg)
	case strings.ToLower(menuLabelReport):
		return true, b.handleReport(ctx, msg)
	case strings.ToLower(menuLabelHelp):
		return true, b.handleHelp(msg)
	default:
		return false, nil
	}
}

func (b *Bot) handleReport(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	text := b.reminderSvc.DailySummary(ctx, user.Owner(), time.Now())
	if text == "" {
		text = "🎉 Nothing open right now."
	}
	return b.sendText(msg.Chat.ID, text)
}

// SendDailyReports sends a summary to every known user with open entries.
func (b *Bot) SendDailyReports(ctx context.Context) error {
	users, err := b.userRepo.ListAll(ctx)
	if err != nil {
		return err
	}
	now := time.Now()
	for _, user := range users {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		text := b.reminderSvc.DailySummary(ctx, user.Owner(), now)
		if text == "" {
			continue
		}
		if err := b.sendText(user.TelegramID, text); err != nil {
			log.Printf("send summary to %d: %v", user.TelegramID, err)
		}
	}
	return nil
}

func (b *Bot) handleExport(ctx context.Context, msg *tgbotapi.Message, format string) error {
	sess, err := b.session(ctx, msg.From)
	if err != nil {
		return err
	}
	format = strings.ToLower(format)
	if format == "" {
		format = service.FormatJSON
	}
	var buf bytes.Buffer
	if err := sess.Export(&buf, format); err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Export failed: %s", escape(err.Error())))
	}
	name := fmt.Sprintf("%s-%s.%s", sess.Schema().Name, time.Now().Format("2006-01-02"), format)
	doc := tgbotapi.NewDocument(msg.Chat.ID, tgbotapi.FileBytes{Name: name, Bytes: buf.Bytes()})
	doc.Caption = fmt.Sprintf("%d entries", len(sess.Items()))
	if _, err := b.api.Send(doc); err != nil {
		return err
	}
	log.Printf("[info] export %s for user=%d", format, msg.From.ID)
	return nil
}

func (b *Bot) handleDocument(ctx context.Context, msg *tgbotapi.Message) error {
	doc := msg.Document
	isJSON := strings.HasSuffix(strings.ToLower(doc.FileName), ".json") || doc.MimeType == "application/json"
	if !b.awaitingImport(msg.From.ID) && !isJSON {
		return b.sendText(msg.Chat.ID, "Send a .json file after /import to replace the list.")
	}
	b.setAwaitImport(msg.From.ID, false)
	if doc.FileSize > transfer.MaxImportBytes {
		return b.sendText(msg.Chat.ID, "The file is too large to import.")
	}
	sess, err := b.session(ctx, msg.From)
	if err != nil {
		return err
	}
	data, err := b.download(ctx, doc.FileID)
	if err != nil {
		cerr := &model.CollaboratorError{Op: "import", Err: err}
		sess.Notify(service.NoticeCollaborator, cerr.Error())
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Could not download the file: %s", escape(err.Error())))
	}
	n, err := sess.Import(ctx, bytes.NewReader(data))
	if err != nil {
		b.markNoticesShown(msg.From.ID, sess)
		return b.sendText(msg.Chat.ID, fmt.Sprintf("❌ Import rejected, the list is unchanged.\n%s", escape(err.Error())))
	}
	if err := b.sendText(msg.Chat.ID, fmt.Sprintf("📥 Imported %d entries.", n)); err != nil {
		return err
	}
	return b.sendList(ctx, msg.Chat.ID, sess)
}

func (b *Bot) handlePhoto(ctx context.Context, msg *tgbotapi.Message) error {
	if !b.suggestSvc.Enabled() {
		return b.sendText(msg.Chat.ID, "AI suggestions are not configured.")
	}
	if b.suggestSvc.Busy(ownerOf(msg.From)) {
		return b.sendText(msg.Chat.ID, "⏳ Still working on the previous request.")
	}
	photo := msg.Photo[len(msg.Photo)-1]
	data, err := b.download(ctx, photo.FileID)
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Could not download the photo: %s", escape(err.Error())))
	}
	att := &suggest.Attachment{Name: "photo.jpg", MimeType: "image/jpeg", Data: data}
	return b.handleExtract(ctx, msg.Chat.ID, msg.From, strings.TrimSpace(msg.Caption), att)
}

func (b *Bot) download(ctx context.Context, fileID string) ([]byte, error) {
	url, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("resolve file: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, transfer.MaxImportBytes+1))
}

func (b *Bot) handleSuggest(ctx context.Context, msg *tgbotapi.Message, goal string) error {
	if !b.suggestSvc.Enabled() {
		return b.sendText(msg.Chat.ID, "AI suggestions are not configured.")
	}
	if goal == "" {
		return b.sendText(msg.Chat.ID, "Describe what you need: /suggest plan a weekend trip")
	}
	sess, err := b.session(ctx, msg.From)
	if err != nil {
		return err
	}
	outcomes, err := b.suggestSvc.Titles(context.WithoutCancel(ctx), sess, goal)
	if errors.Is(err, suggest.ErrBusy) {
		return b.sendText(msg.Chat.ID, "⏳ Still working on the previous request.")
	}
	if err != nil {
		return b.replyError(msg.Chat.ID, sess, err)
	}
	if err := b.sendText(msg.Chat.ID, "⏳ Thinking…"); err != nil {
		return err
	}
	chatID := msg.Chat.ID
	go func() {
		out := <-outcomes
		switch {
		case out.Stale:
			return
		case out.Err != nil:
			b.markNoticesShown(msg.From.ID, sess)
			if err := b.sendText(chatID, fmt.Sprintf("🤖 No suggestions: %s", escape(out.Err.Error()))); err != nil {
				log.Printf("send suggestion error: %v", err)
			}
			return
		}
		log.Printf("[info] suggestions applied user=%d count=%d", msg.From.ID, len(out.Created))
		if err := b.sendText(chatID, fmt.Sprintf("🤖 Added %d entries.", len(out.Created))); err != nil {
			log.Printf("send suggestion result: %v", err)
			return
		}
		if err := b.sendList(ctx, chatID, sess); err != nil {
			log.Printf("send list: %v", err)
		}
	}()
	return nil
}

func (b *Bot) handleExtract(ctx context.Context, chatID int64, from *tgbotapi.User, text string, att *suggest.Attachment) error {
	if !b.suggestSvc.Enabled() {
		return b.sendText(chatID, "AI suggestions are not configured.")
	}
	if text == "" && att == nil {
		return b.sendText(chatID, "Describe the entry: /extract dentist on May 2nd, high priority")
	}
	sess, err := b.session(ctx, from)
	if err != nil {
		return err
	}
	outcomes, err := b.suggestSvc.Extract(context.WithoutCancel(ctx), sess, text, att)
	if errors.Is(err, suggest.ErrBusy) {
		return b.sendText(chatID, "⏳ Still working on the previous request.")
	}
	if err != nil {
		return b.replyError(chatID, sess, err)
	}
	if err := b.sendText(chatID, "⏳ Reading…"); err != nil {
		return err
	}
	go func() {
		out := <-outcomes
		switch {
		case out.Stale:
			return
		case out.Err != nil:
			b.markNoticesShown(from.ID, sess)
			if err := b.sendText(chatID, fmt.Sprintf("🤖 Could not extract an entry: %s", escape(out.Err.Error()))); err != nil {
				log.Printf("send extract error: %v", err)
			}
			return
		}
		if err := b.startReviewConversation(chatID, from.ID, out.Draft); err != nil {
			log.Printf("send extract review: %v", err)
		}
	}()
	return nil
}

func (b *Bot) handleCompact(ctx context.Context, msg *tgbotapi.Message) error {
	sess, err := b.session(ctx, msg.From)
	if err != nil {
		return err
	}
	sess.SetCompact(ctx, !sess.Compact())
	state := "off"
	if sess.Compact() {
		state = "on"
	}
	if err := b.sendText(msg.Chat.ID, fmt.Sprintf("Compact list: %s.", state)); err != nil {
		return err
	}
	return b.sendList(ctx, msg.Chat.ID, sess)
}

func (b *Bot) handleNotices(ctx context.Context, msg *tgbotapi.Message) error {
	sess, err := b.session(ctx, msg.From)
	if err != nil {
		return err
	}
	notices := sess.Notices()
	if len(notices) == 0 {
		return b.sendText(msg.Chat.ID, "No warnings.")
	}
	text, _ := renderNotices(notices)
	sess.DismissAll()
	return b.sendText(msg.Chat.ID, text+"\n\nAll warnings cleared.")
}

// flushNotices shows notices the user has not seen yet.
func (b *Bot) flushNotices(ctx context.Context, chatID int64, from *tgbotapi.User) {
	sess := b.lists.Open(ctx, ownerOf(from))
	b.mu.Lock()
	shown := b.shownNotices[from.ID]
	b.mu.Unlock()

	var fresh []service.Notice
	for _, n := range sess.Notices() {
		if n.ID > shown {
			fresh = append(fresh, n)
		}
	}
	if len(fresh) == 0 {
		return
	}
	b.mu.Lock()
	b.shownNotices[from.ID] = fresh[len(fresh)-1].ID
	b.mu.Unlock()

	text, markup := renderNotices(fresh)
	if err := b.sendWithReplyMarkup(chatID, text, markup); err != nil {
		log.Printf("send notices: %v", err)
	}
}

// markNoticesShown records notices already reported inline.
func (b *Bot) markNoticesShown(userID int64, sess *service.Session) {
	notices := sess.Notices()
	if len(notices) == 0 {
		return
	}
	b.mu.Lock()
	b.shownNotices[userID] = notices[len(notices)-1].ID
	b.mu.Unlock()
}

func ownerOf(from *tgbotapi.User) string {
	return model.User{TelegramID: from.ID}.Owner()
}

func (b *Bot) ensureUser(ctx context.Context, from *tgbotapi.User) (*model.User, error) {
	return b.userRepo.Remember(ctx, model.User{
		TelegramID: from.ID,
		FirstName:  from.FirstName,
		LastName:   from.LastName,
		Username:   from.UserName,
	})
}

// session registers the user and opens their list.
func (b *Bot) session(ctx context.Context, from *tgbotapi.User) (*service.Session, error) {
	user, err := b.ensureUser(ctx, from)
	if err != nil {
		return nil, err
	}
	return b.lists.Open(ctx, user.Owner()), nil
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = mainMenuKeyboard()
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendWithReplyMarkup(chatID int64, text string, markup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) setConversation(userID int64, state *conversationState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conversations[userID] = state
}

func (b *Bot) getConversation(userID int64) *conversationState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conversations[userID]
}

func (b *Bot) hasConversation(userID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.conversations[userID]
	return ok
}

func (b *Bot) clearConversation(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.conversations, userID)
}

func (b *Bot) setAwaitImport(userID int64, v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if v {
		b.awaitImport[userID] = true
	} else {
		delete(b.awaitImport, userID)
	}
}

func (b *Bot) awaitingImport(userID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.awaitImport[userID]
}
