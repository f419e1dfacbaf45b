package bot

import (
	"strings"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"

	"momento/entity"
)

// Callback data is limited to 64 bytes: "tg:" + kind + ":" + code fits the
// 32 character code limit.
const cbToggle = "tg:"

func buildToggleKeyboard(code *entity.AccessCode) tgbotapi.InlineKeyboardMarkup {
	label := "Deactivate"
	if !code.IsActive {
		label = "Activate"
	}
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{{
		{Text: label, CallbackData: toggleData(code.Kind, code.Code)},
	}}}
}

func toggleData(kind entity.Kind, code string) string {
	return cbToggle + string(kind) + ":" + code
}

func parseToggleData(data string) (entity.Kind, string, bool) {
	rest, ok := strings.CutPrefix(data, cbToggle)
	if !ok {
		return "", "", false
	}
	kind, code, ok := strings.Cut(rest, ":")
	if !ok || code == "" || !entity.Kind(kind).Valid() {
		return "", "", false
	}
	return entity.Kind(kind), code, true
}

// onToggleCallback flips a code from the button under /code and redraws the
// message in place.
func (t *TgBot) onToggleCallback(_ *tgbotapi.Bot, ctx *ext.Context) error {
	cq := ctx.CallbackQuery
	chatId := cq.From.Id

	if !t.isAdmin(chatId) || t.core == nil {
		_, _ = cq.Answer(t.api, &tgbotapi.AnswerCallbackQueryOpts{Text: "Not authorized", ShowAlert: true})
		return nil
	}
	kind, code, ok := parseToggleData(cq.Data)
	if !ok {
		_, _ = cq.Answer(t.api, &tgbotapi.AnswerCallbackQueryOpts{Text: "Invalid code"})
		return nil
	}

	record, err := t.flip(kind, code)
	if err != nil {
		t.log.With("data", cq.Data).Warn("toggle callback", "error", err)
		_, _ = cq.Answer(t.api, &tgbotapi.AnswerCallbackQueryOpts{Text: "Error occurred"})
		return nil
	}

	if msg := cq.Message; msg != nil {
		if im, ok := msg.(tgbotapi.Message); ok {
			_, _, _ = t.api.EditMessageText(formatCode(record), &tgbotapi.EditMessageTextOpts{
				ChatId:      chatId,
				MessageId:   im.MessageId,
				ParseMode:   "MarkdownV2",
				ReplyMarkup: buildToggleKeyboard(record),
			})
		}
	}

	answer := "Deactivated"
	if record.IsActive {
		answer = "Activated"
	}
	_, _ = cq.Answer(t.api, &tgbotapi.AnswerCallbackQueryOpts{Text: answer})
	return nil
}
