package bot

import (
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"

	"momento/entity"
	"momento/lib/sl"
)

func (t *TgBot) codes(_ *tgbotapi.Bot, ctx *ext.Context) error {
	chatId := ctx.EffectiveUser.Id
	if !t.requireAdmin(chatId) || t.core == nil {
		return nil
	}

	args := strings.Fields(ctx.EffectiveMessage.Text)
	kind := entity.KindBeta
	if len(args) > 1 {
		kind = entity.Kind(strings.ToLower(args[1]))
	}
	if !kind.Valid() {
		t.plainResponse(chatId, "Usage: `/codes <beta|event>`")
		return nil
	}

	c, cancel := commandContext()
	defer cancel()
	records, err := t.core.ListCodes(c, kind)
	if err != nil {
		t.reportError(chatId, "/codes", err)
		return nil
	}
	if len(records) == 0 {
		t.plainResponse(chatId, fmt.Sprintf("No %s codes\\.", Sanitize(string(kind))))
		return nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("*%s codes* \\(%d\\)\n", Sanitize(string(kind)), len(records)))
	for _, record := range records {
		sb.WriteString(codeLine(record))
		sb.WriteString("\n")
	}
	t.plainResponse(chatId, sb.String())
	return nil
}

func (t *TgBot) code(_ *tgbotapi.Bot, ctx *ext.Context) error {
	chatId := ctx.EffectiveUser.Id
	if !t.requireAdmin(chatId) || t.core == nil {
		return nil
	}
	kind, code, err := parseCodeArgs(ctx.EffectiveMessage.Text)
	if err != nil {
		t.plainResponse(chatId, "Usage: `/code <beta|event> <code>`")
		return nil
	}

	c, cancel := commandContext()
	defer cancel()
	record, err := t.core.GetCode(c, kind, code)
	if err != nil {
		t.reportError(chatId, "/code", err)
		return nil
	}
	t.sendWithKeyboard(chatId, formatCode(record), buildToggleKeyboard(record))
	return nil
}

func (t *TgBot) toggle(_ *tgbotapi.Bot, ctx *ext.Context) error {
	chatId := ctx.EffectiveUser.Id
	if !t.requireAdmin(chatId) || t.core == nil {
		return nil
	}
	kind, code, err := parseCodeArgs(ctx.EffectiveMessage.Text)
	if err != nil {
		t.plainResponse(chatId, "Usage: `/toggle <beta|event> <code>`")
		return nil
	}

	record, err := t.flip(kind, code)
	if err != nil {
		t.reportError(chatId, "/toggle", err)
		return nil
	}
	t.plainResponse(chatId, codeLine(record))
	return nil
}

func (t *TgBot) usage(_ *tgbotapi.Bot, ctx *ext.Context) error {
	chatId := ctx.EffectiveUser.Id
	if !t.requireAdmin(chatId) || t.core == nil {
		return nil
	}
	kind, code, err := parseCodeArgs(ctx.EffectiveMessage.Text)
	if err != nil {
		t.plainResponse(chatId, "Usage: `/usage <beta|event> <code>`")
		return nil
	}

	c, cancel := commandContext()
	defer cancel()
	stats, err := t.core.CodeStats(c, kind, code)
	if err != nil {
		t.reportError(chatId, "/usage", err)
		return nil
	}
	t.plainResponse(chatId, formatStats(stats))
	return nil
}

// flip inverts is_active on the current record.
func (t *TgBot) flip(kind entity.Kind, code string) (*entity.AccessCode, error) {
	c, cancel := commandContext()
	defer cancel()
	record, err := t.core.GetCode(c, kind, code)
	if err != nil {
		return nil, err
	}
	record, err = t.core.SetCodeActive(c, kind, code, !record.IsActive)
	if err != nil {
		return nil, err
	}
	t.log.With(
		sl.Code(string(kind), record.Code),
		slog.Bool("active", record.IsActive),
	).Info("code toggled from telegram")
	return record, nil
}
