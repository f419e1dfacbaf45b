package logger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"momento/lib/sl"
)

// Notifier delivers a formatted record to administrators.
type Notifier interface {
	SendMessageWithLevel(msg string, level slog.Level, topic string)
}

// TelegramHandler passes every record to the wrapped handler and forwards
// those at minLevel or above to the notifier. A tg_topic attribute selects
// the notification topic and is not repeated in the message body.
type TelegramHandler struct {
	handler  slog.Handler
	notifier Notifier
	minLevel slog.Level
	attrs    []slog.Attr
	group    string
}

func NewTelegramHandler(handler slog.Handler, notifier Notifier, minLevel slog.Level) *TelegramHandler {
	return &TelegramHandler{
		handler:  handler,
		notifier: notifier,
		minLevel: minLevel,
	}
}

func (h *TelegramHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level) || (h.notifier != nil && level >= h.minLevel)
}

func (h *TelegramHandler) Handle(ctx context.Context, record slog.Record) error {
	var err error
	if h.handler.Enabled(ctx, record.Level) {
		err = h.handler.Handle(ctx, record)
	}
	if h.notifier == nil || record.Level < h.minLevel {
		return err
	}

	var b strings.Builder
	if h.group != "" {
		fmt.Fprintf(&b, "*%s* `%s.%s`", record.Level.String(), h.group, record.Message)
	} else {
		fmt.Fprintf(&b, "*%s* `%s`", record.Level.String(), record.Message)
	}

	topic := ""
	write := func(attr slog.Attr) {
		switch attr.Key {
		case sl.TopicKey:
			topic = attr.Value.String()
		case "error":
			fmt.Fprintf(&b, "\n%s: ```error %v ```", attr.Key, attr.Value)
		default:
			b.WriteString(Sanitize(fmt.Sprintf("\n%s: %v", attr.Key, attr.Value)))
		}
	}
	for _, attr := range h.attrs {
		write(attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		write(attr)
		return true
	})

	h.notifier.SendMessageWithLevel(b.String(), record.Level, topic)
	return err
}

func (h *TelegramHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	copy(newAttrs[len(h.attrs):], attrs)

	return &TelegramHandler{
		handler:  h.handler.WithAttrs(attrs),
		notifier: h.notifier,
		minLevel: h.minLevel,
		attrs:    newAttrs,
		group:    h.group,
	}
}

func (h *TelegramHandler) WithGroup(name string) slog.Handler {
	group := name
	if h.group != "" {
		group = h.group + "." + name
	}
	return &TelegramHandler{
		handler:  h.handler.WithGroup(name),
		notifier: h.notifier,
		minLevel: h.minLevel,
		attrs:    h.attrs,
		group:    group,
	}
}

var markdownEscaper = strings.NewReplacer(
	"\\", "\\\\", "_", "\\_", "*", "\\*", "[", "\\[", "]", "\\]", "(", "\\(", ")", "\\)",
	"~", "\\~", "`", "\\`", ">", "\\>", "#", "\\#", "+", "\\+", "-", "\\-",
	"=", "\\=", "|", "\\|", "{", "\\{", "}", "\\}", ".", "\\.", "!", "\\!",
)

// Sanitize escapes MarkdownV2 control characters.
func Sanitize(input string) string {
	return markdownEscaper.Replace(input)
}
