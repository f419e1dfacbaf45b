// Package bot runs the Telegram admin bot.
//
// Admins are the chat ids listed in config. They receive forwarded log
// records filtered by their own level and topics, and can inspect and toggle
// access codes from the chat. Preferences live in memory and reset on restart.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
	"github.com/PaulSonOfLars/gotgbot/v2/ext/handlers"
	"github.com/PaulSonOfLars/gotgbot/v2/ext/handlers/filters/callbackquery"

	"momento/entity"
	"momento/lib/sl"
)

const commandTimeout = 10 * time.Second

// Core is the part of the application the bot drives.
type Core interface {
	ListCodes(ctx context.Context, kind entity.Kind) ([]*entity.AccessCode, error)
	GetCode(ctx context.Context, kind entity.Kind, code string) (*entity.AccessCode, error)
	SetCodeActive(ctx context.Context, kind entity.Kind, code string, active bool) (*entity.AccessCode, error)
	CodeStats(ctx context.Context, kind entity.Kind, code string) (*entity.UsageStats, error)
}

type TgBot struct {
	log     *slog.Logger
	api     *tgbotapi.Bot
	core    Core
	mu      sync.RWMutex
	admins  map[int64]*adminPrefs
	updater *ext.Updater
}

func NewTgBot(apiKey string, adminIds []int64, minLevel slog.Level, log *slog.Logger) (*TgBot, error) {
	api, err := tgbotapi.NewBot(apiKey, nil)
	if err != nil {
		return nil, fmt.Errorf("creating api instance: %v", err)
	}
	tgBot := newBot(adminIds, minLevel, log)
	tgBot.api = api
	return tgBot, nil
}

func newBot(adminIds []int64, minLevel slog.Level, log *slog.Logger) *TgBot {
	admins := make(map[int64]*adminPrefs, len(adminIds))
	for _, id := range adminIds {
		admins[id] = newAdminPrefs(minLevel)
	}
	return &TgBot{
		log:    log.With(sl.Module("tgbot")),
		admins: admins,
	}
}

func (t *TgBot) SetCore(core Core) {
	t.core = core
}

// Start polls for updates and blocks until Stop is called.
func (t *TgBot) Start() error {
	dispatcher := ext.NewDispatcher(&ext.DispatcherOpts{
		Error: func(b *tgbotapi.Bot, ctx *ext.Context, err error) ext.DispatcherAction {
			t.log.Error("handling update:", sl.Err(err))
			return ext.DispatcherActionNoop
		},
		MaxRoutines: ext.DefaultMaxRoutines,
	})
	t.updater = ext.NewUpdater(dispatcher, nil)

	dispatcher.AddHandler(handlers.NewCommand("start", t.start))
	dispatcher.AddHandler(handlers.NewCommand("stop", t.stop))
	dispatcher.AddHandler(handlers.NewCommand("help", t.help))
	dispatcher.AddHandler(handlers.NewCommand("level", t.level))
	dispatcher.AddHandler(handlers.NewCommand("topics", t.topics))
	dispatcher.AddHandler(handlers.NewCommand("subscribe", t.subscribe))
	dispatcher.AddHandler(handlers.NewCommand("unsubscribe", t.unsubscribe))

	dispatcher.AddHandler(handlers.NewCommand("codes", t.codes))
	dispatcher.AddHandler(handlers.NewCommand("code", t.code))
	dispatcher.AddHandler(handlers.NewCommand("toggle", t.toggle))
	dispatcher.AddHandler(handlers.NewCommand("usage", t.usage))

	dispatcher.AddHandler(handlers.NewCallback(callbackquery.Prefix(cbToggle), t.onToggleCallback))

	t.setCommands()

	err := t.updater.StartPolling(t.api, &ext.PollingOpts{
		DropPendingUpdates: true,
		GetUpdatesOpts: &tgbotapi.GetUpdatesOpts{
			Timeout: 9,
			RequestOpts: &tgbotapi.RequestOpts{
				Timeout: time.Second * 10,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to start polling: %w", err)
	}

	t.log.With(slog.Int("admins", len(t.admins))).Info("telegram bot started")
	t.updater.Idle()
	return nil
}

func (t *TgBot) Stop() {
	if t.updater != nil {
		t.log.Info("stopping telegram bot")
		t.updater.Stop()
	}
}

func (t *TgBot) isAdmin(chatId int64) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.admins[chatId]
	return ok
}

// prefs returns a copy of an admin's preferences taken under the lock.
func (t *TgBot) prefs(chatId int64) (adminPrefs, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.admins[chatId]
	if !ok {
		return adminPrefs{}, false
	}
	cp := *p
	cp.topics = maps.Clone(p.topics)
	return cp, true
}
