// Package entity defines domain types shared across the application.

package entity

// Notification topics used to label records forwarded to Telegram admins.
// Log calls tag messages with sl.Topic(entity.TopicXxx).
const (
	TopicUsage    = "usage"
	TopicUpload   = "upload"
	TopicError    = "error"
	TopicSystem   = "system"
	TopicSecurity = "security"
)

var allTopics = []string{
	TopicUsage,
	TopicUpload,
	TopicError,
	TopicSystem,
	TopicSecurity,
}

func AllTopics() []string {
	result := make([]string, len(allTopics))
	copy(result, allTopics)
	return result
}

func IsValidTopic(topic string) bool {
	for _, t := range allTopics {
		if t == topic {
			return true
		}
	}
	return false
}
