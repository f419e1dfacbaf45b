package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"

	"momento/entity"
	"momento/lib/clock"
	"momento/lib/logger"
	"momento/lib/sl"
)

const maxTelegramMessageLen = 4096

// Sanitize escapes MarkdownV2 control characters.
func Sanitize(input string) string {
	return logger.Sanitize(input)
}

func (t *TgBot) plainResponse(chatId int64, text string) {
	if text == "" {
		t.log.With("id", chatId).Debug("empty message")
		return
	}
	for _, part := range splitMessage(text, maxTelegramMessageLen) {
		t.send(chatId, part, nil)
	}
}

func (t *TgBot) sendWithKeyboard(chatId int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) {
	if text == "" {
		return
	}
	t.send(chatId, text, keyboard)
}

func (t *TgBot) send(chatId int64, text string, markup tgbotapi.ReplyMarkup) {
	_, err := t.api.SendMessage(chatId, text, &tgbotapi.SendMessageOpts{
		ParseMode:   "MarkdownV2",
		ReplyMarkup: markup,
	})
	if err != nil {
		t.log.With(slog.Int64("id", chatId)).Warn("sending message", sl.Err(err))
		_, err = t.api.SendMessage(chatId, text, &tgbotapi.SendMessageOpts{ReplyMarkup: markup})
		if err != nil {
			t.log.With(slog.Int64("id", chatId)).Error("sending safe message", sl.Err(err))
		}
	}
}

// requireAdmin answers non-admins and reports whether the command may run.
func (t *TgBot) requireAdmin(chatId int64) bool {
	if t.isAdmin(chatId) {
		return true
	}
	t.plainResponse(chatId, "Admin access required\\.")
	return false
}

func (t *TgBot) reportError(chatId int64, command string, err error) {
	t.log.With(
		slog.String("command", command),
		slog.Int64("user_id", chatId),
		sl.Err(err),
	).Error("bot command failed")
	t.plainResponse(chatId, "Command failed: `"+Sanitize(err.Error())+"`")
}

func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), commandTimeout)
}

// parseCodeArgs reads "<kind> <code>" from a command line.
func parseCodeArgs(text string) (entity.Kind, string, error) {
	args := strings.Fields(text)
	if len(args) < 3 {
		return "", "", fmt.Errorf("expected <beta|event> <code>")
	}
	kind := entity.Kind(strings.ToLower(args[1]))
	if !kind.Valid() {
		return "", "", fmt.Errorf("unknown kind %q", args[1])
	}
	return kind, entity.NormalizeCode(args[2]), nil
}

func splitMessage(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}
	var parts []string
	for len(text) > 0 {
		if len(text) <= maxLen {
			parts = append(parts, text)
			break
		}
		cutAt := maxLen
		nlIdx := strings.LastIndex(text[:maxLen], "\n")
		if nlIdx > 0 {
			cutAt = nlIdx + 1
		}
		parts = append(parts, text[:cutAt])
		text = text[cutAt:]
	}
	return parts
}

func limitText(limit *int) string {
	if limit == nil {
		return "∞"
	}
	return fmt.Sprintf("%d", *limit)
}

func codeLine(code *entity.AccessCode) string {
	state := "on"
	if !code.IsActive {
		state = "off"
	}
	return fmt.Sprintf("`%s` \\| %s \\| %s/%s",
		Sanitize(code.Code), state, Sanitize(fmt.Sprint(code.CurrentUses)), Sanitize(limitText(code.MaxUses)))
}

func formatCode(code *entity.AccessCode) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "*%s* `%s`\n", Sanitize(code.Name), Sanitize(code.Code))
	fmt.Fprintf(&sb, "Kind: %s\n", Sanitize(string(code.Kind)))
	fmt.Fprintf(&sb, "Active: %t\n", code.IsActive)
	fmt.Fprintf(&sb, "Uses: %d/%s\n", code.CurrentUses, Sanitize(limitText(code.MaxUses)))
	if code.ExpiresAt != nil {
		fmt.Fprintf(&sb, "Expires: %s\n", Sanitize(clock.Format(*code.ExpiresAt)))
	}
	if code.Kind == entity.KindEvent {
		fmt.Fprintf(&sb, "Files: %d/%s\n", code.CurrentFiles, Sanitize(limitText(code.MaxFiles)))
		if code.MaxFileSize != nil {
			fmt.Fprintf(&sb, "Max file size: %d MB\n", *code.MaxFileSize)
		}
		if len(code.AllowedTypes) > 0 {
			fmt.Fprintf(&sb, "Types: %s\n", Sanitize(strings.Join(code.AllowedTypes, ", ")))
		}
		if code.TableCount > 0 {
			fmt.Fprintf(&sb, "Tables: %d\n", code.TableCount)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatStats(stats *entity.UsageStats) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "*Usage* `%s`\n", Sanitize(stats.Code))
	fmt.Fprintf(&sb, "Uses: %d\nFiles: %d\nRecords: %d\nUnique IPs: %d\n",
		stats.CurrentUses, stats.CurrentFiles, stats.Records, stats.UniqueIps)
	if stats.Overshoots > 0 {
		fmt.Fprintf(&sb, "Overshoots: %d\n", stats.Overshoots)
	}
	for _, action := range []entity.Action{entity.ActionBetaAccess, entity.ActionEventAccess, entity.ActionFileUpload} {
		if n := stats.ByAction[action]; n > 0 {
			fmt.Fprintf(&sb, "%s: %d\n", Sanitize(string(action)), n)
		}
	}
	if stats.LastUsedAt != nil {
		fmt.Fprintf(&sb, "Last used: %s\n", Sanitize(clock.Format(*stats.LastUsedAt)))
	}
	return strings.TrimRight(sb.String(), "\n")
}
