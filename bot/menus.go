package bot

import (
	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
)

var commandsAnonymous = []tgbotapi.BotCommand{
	{Command: "start", Description: "Show your chat id"},
}

var commandsAdmin = []tgbotapi.BotCommand{
	{Command: "start", Description: "Enable notifications"},
	{Command: "stop", Description: "Disable notifications"},
	{Command: "level", Description: "Set log level filter"},
	{Command: "topics", Description: "Manage topic subscriptions"},
	{Command: "codes", Description: "List access codes"},
	{Command: "code", Description: "Show an access code"},
	{Command: "toggle", Description: "Activate or deactivate a code"},
	{Command: "usage", Description: "Usage summary for a code"},
	{Command: "help", Description: "Show available commands"},
}

// setCommands sets the anonymous menu by default and the full menu in each
// admin chat.
func (t *TgBot) setCommands() {
	_, err := t.api.SetMyCommands(commandsAnonymous, &tgbotapi.SetMyCommandsOpts{
		Scope: tgbotapi.BotCommandScopeDefault{},
	})
	if err != nil {
		t.log.Warn("setting default commands", "error", err)
	}

	t.mu.RLock()
	ids := make([]int64, 0, len(t.admins))
	for id := range t.admins {
		ids = append(ids, id)
	}
	t.mu.RUnlock()

	for _, chatId := range ids {
		_, err = t.api.SetMyCommands(commandsAdmin, &tgbotapi.SetMyCommandsOpts{
			Scope: tgbotapi.BotCommandScopeChat{ChatId: chatId},
		})
		if err != nil {
			t.log.Warn("setting admin commands", "chat_id", chatId, "error", err)
		}
	}
}
