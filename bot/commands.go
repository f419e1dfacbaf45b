package bot

import (
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"

	"momento/entity"
)

func (t *TgBot) start(_ *tgbotapi.Bot, ctx *ext.Context) error {
	chatId := ctx.EffectiveUser.Id
	if !t.isAdmin(chatId) {
		t.plainResponse(chatId, fmt.Sprintf("Your chat id is `%d`\\. Ask an operator to add it to the admin list\\.", chatId))
		t.log.With(
			slog.Int64("id", chatId),
			slog.String("username", ctx.EffectiveUser.Username),
		).Info("unknown user started bot")
		return nil
	}
	t.setEnabled(chatId, true)
	t.plainResponse(chatId, "Notifications ENABLED")
	return nil
}

func (t *TgBot) stop(_ *tgbotapi.Bot, ctx *ext.Context) error {
	chatId := ctx.EffectiveUser.Id
	if !t.requireAdmin(chatId) {
		return nil
	}
	t.setEnabled(chatId, false)
	t.plainResponse(chatId, "Notifications DISABLED")
	return nil
}

func (t *TgBot) level(_ *tgbotapi.Bot, ctx *ext.Context) error {
	chatId := ctx.EffectiveUser.Id
	if !t.requireAdmin(chatId) {
		return nil
	}

	args := strings.Fields(ctx.EffectiveMessage.Text)
	if len(args) < 2 {
		p, _ := t.prefs(chatId)
		current := p.level.String()
		t.plainResponse(chatId, fmt.Sprintf("Your current log level: %s\nAvailable levels: debug, info, warn, error", Sanitize(current)))
		return nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(args[1])); err != nil {
		t.plainResponse(chatId, fmt.Sprintf("Invalid level: %s\nAvailable levels: debug, info, warn, error", Sanitize(args[1])))
		return nil
	}
	t.setLevel(chatId, level)
	t.plainResponse(chatId, fmt.Sprintf("Log level set to: %s", Sanitize(level.String())))
	return nil
}

func (t *TgBot) topics(_ *tgbotapi.Bot, ctx *ext.Context) error {
	chatId := ctx.EffectiveUser.Id
	if !t.requireAdmin(chatId) {
		return nil
	}

	p, _ := t.prefs(chatId)
	subscribed := map[string]bool{}
	for _, topic := range p.subscribed() {
		subscribed[topic] = true
	}

	var sb strings.Builder
	sb.WriteString("*Available topics:*\n")
	for _, topic := range entity.AllTopics() {
		marker := "  "
		if subscribed[topic] {
			marker = "\\+ "
		}
		sb.WriteString(fmt.Sprintf("%s`%s`\n", marker, topic))
	}
	sb.WriteString("\nUse `/subscribe <topic|all>` or `/unsubscribe <topic>`")
	t.plainResponse(chatId, sb.String())
	return nil
}

func (t *TgBot) subscribe(_ *tgbotapi.Bot, ctx *ext.Context) error {
	return t.changeTopic(ctx, true)
}

func (t *TgBot) unsubscribe(_ *tgbotapi.Bot, ctx *ext.Context) error {
	return t.changeTopic(ctx, false)
}

func (t *TgBot) changeTopic(ctx *ext.Context, on bool) error {
	chatId := ctx.EffectiveUser.Id
	if !t.requireAdmin(chatId) {
		return nil
	}
	command := "/unsubscribe"
	if on {
		command = "/subscribe"
	}

	args := strings.Fields(ctx.EffectiveMessage.Text)
	if len(args) < 2 {
		t.plainResponse(chatId, fmt.Sprintf("Usage: `%s <topic>`\nAvailable topics: %s",
			command, Sanitize(strings.Join(entity.AllTopics(), ", "))))
		return nil
	}
	topic := strings.ToLower(args[1])
	if !(on && topic == "all") && !entity.IsValidTopic(topic) {
		t.plainResponse(chatId, "Invalid topic: `"+Sanitize(topic)+"`\nAvailable: "+Sanitize(strings.Join(entity.AllTopics(), ", ")))
		return nil
	}

	t.setTopic(chatId, topic, on)
	if on {
		t.plainResponse(chatId, "Subscribed to `"+Sanitize(topic)+"`")
	} else {
		t.plainResponse(chatId, "Unsubscribed from `"+Sanitize(topic)+"`")
	}
	return nil
}

func (t *TgBot) help(_ *tgbotapi.Bot, ctx *ext.Context) error {
	chatId := ctx.EffectiveUser.Id
	if !t.requireAdmin(chatId) {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("*Available Commands*\n\n")
	sb.WriteString("`/start` \\- Enable notifications\n")
	sb.WriteString("`/stop` \\- Disable notifications\n")
	sb.WriteString("`/level <debug|info|warn|error>` \\- Set log level\n")
	sb.WriteString("`/topics` \\- View topic subscriptions\n")
	sb.WriteString("`/subscribe <topic|all>` \\- Subscribe to topic\n")
	sb.WriteString("`/unsubscribe <topic>` \\- Unsubscribe from topic\n")
	sb.WriteString("\n*Codes:*\n")
	sb.WriteString("`/codes <beta|event>` \\- List codes\n")
	sb.WriteString("`/code <kind> <code>` \\- Show a code\n")
	sb.WriteString("`/toggle <kind> <code>` \\- Activate or deactivate\n")
	sb.WriteString("`/usage <kind> <code>` \\- Usage summary\n")
	sb.WriteString("`/help` \\- Show this help\n")

	t.plainResponse(chatId, sb.String())
	return nil
}
