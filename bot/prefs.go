package bot

import (
	"log/slog"
	"sort"

	"momento/entity"
)

// topicNone keeps the filter non-empty after the last topic is removed.
const topicNone = "none"

// adminPrefs filters forwarded records for one admin. An empty topic set
// means all topics.
type adminPrefs struct {
	enabled bool
	level   slog.Level
	topics  map[string]bool
}

func newAdminPrefs(level slog.Level) *adminPrefs {
	return &adminPrefs{enabled: true, level: level, topics: map[string]bool{}}
}

// wants reports whether a record goes to this admin. Errors skip the topic
// filter.
func (p *adminPrefs) wants(level slog.Level, topic string) bool {
	if !p.enabled {
		return false
	}
	if level >= slog.LevelError {
		return true
	}
	if level < p.level {
		return false
	}
	return len(p.topics) == 0 || p.topics[topic]
}

func (p *adminPrefs) subscribed() []string {
	if len(p.topics) == 0 {
		return entity.AllTopics()
	}
	topics := make([]string, 0, len(p.topics))
	for topic := range p.topics {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

func (t *TgBot) setLevel(chatId int64, level slog.Level) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.admins[chatId]; ok {
		p.level = level
	}
}

func (t *TgBot) setEnabled(chatId int64, enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.admins[chatId]; ok {
		p.enabled = enabled
	}
}

// setTopic adds or removes a topic; "all" clears the filter.
func (t *TgBot) setTopic(chatId int64, topic string, on bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.admins[chatId]
	if !ok {
		return
	}
	if topic == "all" {
		p.topics = map[string]bool{}
		return
	}
	if on {
		delete(p.topics, topicNone)
		p.topics[topic] = true
		return
	}
	if len(p.topics) == 0 {
		for _, tp := range entity.AllTopics() {
			p.topics[tp] = true
		}
	}
	delete(p.topics, topic)
	if len(p.topics) == 0 {
		p.topics[topicNone] = true
	}
}
