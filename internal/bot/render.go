package bot

import (
	"fmt"
	"html"
	"sort"
	"strings"
	"time"
	"unicode"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"list-manager/internal/model"
	"list-manager/internal/service"
	"list-manager/internal/view"
)

const (
	iconDefault = "🟢"
	iconDue     = "⏳"
	iconOverdue = "⚠️"
	iconDone    = "✅"
	iconUnknown = "❓"

	shortIDLen  = 8
	maxListRows = 30
)

// renderList builds the list message and its inline buttons.
func renderList(schema *model.Schema, res view.Result, fs view.FilterState, compact bool, now time.Time) (string, *tgbotapi.InlineKeyboardMarkup) {
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("📋 <b>%s</b> · %d of %d\n", escape(schema.Title), len(res.Items), res.Total))
	if line := describeFilter(schema, fs); line != "" {
		builder.WriteString(line)
		builder.WriteByte('\n')
	}
	builder.WriteByte('\n')

	switch {
	case res.NoData():
		builder.WriteString("The list is empty. Add an entry with /new.")
		return strings.TrimSpace(builder.String()), nil
	case res.NoMatches():
		builder.WriteString("Nothing matches the current filters. Use /reset to clear them.")
		return strings.TrimSpace(builder.String()), nil
	}

	items := res.Items
	if len(items) > maxListRows {
		items = items[:maxListRows]
	}
	var buttons [][]tgbotapi.InlineKeyboardButton
	for _, rec := range items {
		builder.WriteString(formatRecord(schema, rec, compact, now))
		buttons = append(buttons, recordButtons(schema, rec))
	}
	if len(res.Items) > maxListRows {
		builder.WriteString(fmt.Sprintf("… and %d more. Narrow the list with /filter or /search.\n", len(res.Items)-maxListRows))
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(buttons...)
	return strings.TrimSpace(builder.String()), &markup
}

func recordButtons(schema *model.Schema, rec model.Record) []tgbotapi.InlineKeyboardButton {
	title := shortTitle(rec.Text(schema.TitleField().Name), 18)
	if title == "" {
		title = shortID(rec.ID)
	}
	return tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🔄 "+title, cbTogglePrefix+rec.ID),
		tgbotapi.NewInlineKeyboardButtonData("✏️", cbEditPrefix+rec.ID),
		tgbotapi.NewInlineKeyboardButtonData("🗑", cbDeletePrefix+rec.ID),
	)
}

// formatRecord renders one list entry. Compact mode shows the headline only.
func formatRecord(schema *model.Schema, rec model.Record, compact bool, now time.Time) string {
	var b strings.Builder
	titleField := schema.TitleField()
	title := normalizeTitle(rec.Text(titleField.Name))
	if title == "" {
		title = "(untitled)"
	}
	b.WriteString(fmt.Sprintf("%s <code>%s</code> %s", recordIcon(schema, rec, now), shortID(rec.ID), escape(title)))
	status := schema.Status()
	if s := rec.Text(status.Name); s != "" {
		b.WriteString(fmt.Sprintf(" <i>(%s)</i>", escape(displayValue(status, s))))
	}
	b.WriteByte('\n')
	if compact {
		return b.String()
	}
	for _, f := range schema.Fields {
		if f.Name == titleField.Name || f.Name == status.Name {
			continue
		}
		v, ok := rec.Fields[f.Name]
		if !ok {
			continue
		}
		text := model.FormatValue(f, v)
		if text == "" {
			continue
		}
		if f.Kind == model.KindEnum {
			text = displayValue(f, text)
		}
		if f.Name == schema.DueField {
			text += dueSuffix(rec, schema.DueField, now)
		}
		b.WriteString(fmt.Sprintf("   %s: %s\n", escape(f.DisplayName()), escape(shortTitle(text, 80))))
	}
	return b.String()
}

// displayValue marks enum values the schema does not declare.
func displayValue(f model.FieldDef, v string) string {
	if f.Kind == model.KindEnum && !f.Allows(v) {
		return iconUnknown + " " + v
	}
	return v
}

func recordIcon(schema *model.Schema, rec model.Record, now time.Time) string {
	if schema.IsDone(rec.Text(schema.StatusField)) {
		return iconDone
	}
	d, ok := rec.Date(schema.DueField)
	if !ok {
		return iconDefault
	}
	end := time.Date(d.Year(), d.Month(), d.Day(), 23, 59, 59, 0, now.Location())
	switch {
	case now.After(end):
		return iconOverdue
	case end.Sub(now) <= 48*time.Hour:
		return iconDue
	default:
		return iconDefault
	}
}

func dueSuffix(rec model.Record, field string, now time.Time) string {
	d, ok := rec.Date(field)
	if !ok {
		return ""
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	days := int(d.Sub(today).Hours() / 24)
	switch {
	case days < 0:
		return " (overdue)"
	case days == 0:
		return " (today)"
	default:
		return fmt.Sprintf(" (in %d d)", days)
	}
}

func describeFilter(schema *model.Schema, fs view.FilterState) string {
	var parts []string
	for _, f := range fs.Filters {
		if len(f.Values) == 0 {
			continue
		}
		label := f.Field
		if def, ok := schema.Field(f.Field); ok {
			label = def.DisplayName()
		}
		parts = append(parts, fmt.Sprintf("%s = %s", escape(label), escape(strings.Join(f.Values, " | "))))
	}
	if q := strings.TrimSpace(fs.Search); q != "" {
		parts = append(parts, fmt.Sprintf("search “%s”", escape(q)))
	}
	key := fs.SortKey
	if key == "" {
		key = schema.DefaultSort.Key
	}
	dir := "↑"
	if fs.Desc {
		dir = "↓"
	}
	sortLine := fmt.Sprintf("sort: %s %s", escape(key), dir)
	if len(parts) == 0 {
		return "<i>" + sortLine + "</i>"
	}
	return "<i>🔎 " + strings.Join(parts, "; ") + " · " + sortLine + "</i>"
}

// renderRecordCard shows every field of a record.
func renderRecordCard(schema *model.Schema, rec model.Record) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("<b>%s</b> <code>%s</code>\n", escape(normalizeTitle(rec.Text(schema.TitleField().Name))), shortID(rec.ID)))
	for _, f := range schema.Fields {
		text := model.FormatValue(f, rec.Fields[f.Name])
		if text == "" {
			continue
		}
		if f.Kind == model.KindEnum {
			text = displayValue(f, text)
		}
		b.WriteString(fmt.Sprintf("• <b>%s:</b> %s\n", escape(f.DisplayName()), escape(text)))
	}
	return strings.TrimSpace(b.String())
}

// renderDraft shows a draft before it is saved.
func renderDraft(schema *model.Schema, d map[string]string) string {
	var b strings.Builder
	for _, f := range schema.Fields {
		v := strings.TrimSpace(d[f.Name])
		if v == "" {
			continue
		}
		b.WriteString(fmt.Sprintf("• <b>%s:</b> %s\n", escape(f.DisplayName()), escape(v)))
	}
	if b.Len() == 0 {
		return "(empty)"
	}
	return strings.TrimSpace(b.String())
}

// renderValidation lists field errors in schema order.
func renderValidation(schema *model.Schema, verr *model.ValidationError) string {
	names := make([]string, 0, len(verr.Fields))
	for name := range verr.Fields {
		names = append(names, name)
	}
	order := make(map[string]int, len(schema.Fields))
	for i, f := range schema.Fields {
		order[f.Name] = i
	}
	sort.SliceStable(names, func(i, j int) bool {
		oi, iok := order[names[i]]
		oj, jok := order[names[j]]
		if iok != jok {
			return iok
		}
		if oi != oj {
			return oi < oj
		}
		return names[i] < names[j]
	})
	var b strings.Builder
	b.WriteString("⚠️ <b>Please fix:</b>\n")
	for _, name := range names {
		label := name
		if def, ok := schema.Field(name); ok {
			label = def.DisplayName()
		}
		b.WriteString(fmt.Sprintf("• %s: %s\n", escape(label), escape(verr.Fields[name])))
	}
	return strings.TrimSpace(b.String())
}

// renderNotices builds a message with one dismiss button per notice.
func renderNotices(notices []service.Notice) (string, tgbotapi.InlineKeyboardMarkup) {
	var b strings.Builder
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, n := range notices {
		b.WriteString(fmt.Sprintf("%s %s\n", noticeIcon(n.Kind), escape(n.Text)))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("✖️ Dismiss #%d", n.ID), fmt.Sprintf("%s%d", cbDismissPrefix, n.ID)),
		))
	}
	return strings.TrimSpace(b.String()), tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func noticeIcon(kind service.NoticeKind) string {
	switch kind {
	case service.NoticeCorrupted:
		return "🧯"
	case service.NoticePersistence:
		return "💾"
	case service.NoticeCollaborator:
		return "🤖"
	default:
		return iconUnknown
	}
}

func shortID(id string) string {
	if len(id) <= shortIDLen {
		return id
	}
	return id[:shortIDLen]
}

func shortTitle(title string, maxLen int) string {
	clean := strings.TrimSpace(strings.ReplaceAll(title, "\n", " "))
	runes := []rune(clean)
	if len(runes) <= maxLen {
		return clean
	}
	if maxLen <= 1 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-1]) + "…"
}

func normalizeTitle(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return value
	}
	runes := []rune(value)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

func escape(s string) string {
	return html.EscapeString(s)
}
