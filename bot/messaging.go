package bot

import (
	"log/slog"

	"momento/entity"
)

func (t *TgBot) SendMessage(msg string) {
	t.SendMessageWithLevel(msg, slog.LevelInfo, entity.TopicSystem)
}

// SendMessageWithLevel sends msg to every admin whose level and topic filter
// accept it. Records without a topic go to system, or error at error level.
func (t *TgBot) SendMessageWithLevel(msg string, level slog.Level, topic string) {
	if t.api == nil {
		return
	}
	for _, id := range t.recipients(level, topic) {
		t.plainResponse(id, msg)
	}
}

func (t *TgBot) recipients(level slog.Level, topic string) []int64 {
	if topic == "" {
		topic = entity.TopicSystem
		if level >= slog.LevelError {
			topic = entity.TopicError
		}
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]int64, 0, len(t.admins))
	for id, p := range t.admins {
		if p.wants(level, topic) {
			ids = append(ids, id)
		}
	}
	return ids
}
