package bot

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"list-manager/internal/model"
)

const (
	cbTogglePrefix  = "t:"
	cbEditPrefix    = "e:"
	cbDeletePrefix  = "d:"
	cbConfirmPrefix = "y:"
	cbCancelPrefix  = "n:"
	cbDismissPrefix = "x:"
)

const (
	btnSkip         = "⏭️ Skip"
	btnClear        = "➖ Clear"
	btnYes          = "Yes"
	btnNo           = "No"
	btnSave         = "💾 Save"
	btnConfirm      = "✅ Confirm"
	btnCancel       = "↩️ Cancel"
	btnCancelDialog = "⏪ Stop editing"
	menuLabelNew    = "➕ New entry"
	menuLabelList   = "📋 List"
	menuLabelReport = "🗓 Report"
	menuLabelHelp   = "ℹ️ Help"
)

func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelNew),
			tgbotapi.NewKeyboardButton(menuLabelList),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelReport),
			tgbotapi.NewKeyboardButton(menuLabelHelp),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = false
	return kb
}

// fieldKeyboard offers the choices for one form step.
func fieldKeyboard(f model.FieldDef) tgbotapi.ReplyKeyboardMarkup {
	var rows [][]tgbotapi.KeyboardButton
	switch f.Kind {
	case model.KindEnum:
		var row []tgbotapi.KeyboardButton
		for _, v := range f.Values {
			row = append(row, tgbotapi.NewKeyboardButton(v))
			if len(row) == 3 {
				rows = append(rows, row)
				row = nil
			}
		}
		if len(row) > 0 {
			rows = append(rows, row)
		}
	case model.KindBool:
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnYes),
			tgbotapi.NewKeyboardButton(btnNo),
		))
	}
	last := tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnSkip))
	if !f.Required {
		last = append(last, tgbotapi.NewKeyboardButton(btnClear))
	}
	last = append(last, tgbotapi.NewKeyboardButton(btnCancelDialog))
	rows = append(rows, last)

	kb := tgbotapi.NewReplyKeyboard(rows...)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func reviewKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnSave),
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func confirmKeyboard(id string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(btnConfirm, cbConfirmPrefix+id),
			tgbotapi.NewInlineKeyboardButtonData(btnCancel, cbCancelPrefix+id),
		),
	)
}

func isSkipInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnSkip) || value == "skip" || value == "пропустить"
}

func isClearInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == "-" || value == strings.ToLower(btnClear) || value == "clear"
}

func isSaveInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnSave) || value == "save" || value == "сохранить"
}

func isCancelDialogInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnCancelDialog) || value == "cancel" || value == "отмена"
}

// boolInput maps keyboard answers onto the words form parsing accepts.
func boolInput(text string) string {
	switch strings.TrimSpace(text) {
	case btnYes:
		return "yes"
	case btnNo:
		return "no"
	}
	return text
}
