package sl

import (
	"fmt"
	"log/slog"
)

// TopicKey tags a record with a Telegram notification topic.
const TopicKey = "tg_topic"

func Err(err error) slog.Attr {
	return slog.Attr{
		Key:   "error",
		Value: slog.StringValue(err.Error()),
	}
}

// Secret keeps the first 5 characters of value, used to hide tokens in logs
func Secret(key, value string) slog.Attr {
	r := "***"
	if len(value) > 5 {
		r = fmt.Sprintf("%s***", value[0:5])
	}
	if value == "" {
		r = "?"
	}
	return slog.Attr{
		Key:   key,
		Value: slog.StringValue(r),
	}
}

func Module(mod string) slog.Attr {
	return slog.Attr{
		Key:   "mod",
		Value: slog.StringValue(mod),
	}
}

func Topic(topic string) slog.Attr {
	return slog.String(TopicKey, topic)
}

// Code logs an access code together with its kind, e.g. "event:PARTY2024".
func Code(kind, code string) slog.Attr {
	return slog.String("code", kind+":"+code)
}
