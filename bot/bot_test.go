package bot

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"momento/entity"
)

func sorted(ids []int64) []int64 {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func TestRecipients(t *testing.T) {
	b := newBot([]int64{1, 2}, slog.LevelWarn, slog.New(slog.DiscardHandler))

	assert.Empty(t, b.recipients(slog.LevelInfo, entity.TopicUsage))
	assert.Equal(t, []int64{1, 2}, sorted(b.recipients(slog.LevelWarn, entity.TopicUsage)))

	b.setLevel(2, slog.LevelError)
	assert.Equal(t, []int64{1}, b.recipients(slog.LevelWarn, entity.TopicUsage))

	b.setEnabled(1, false)
	assert.Empty(t, b.recipients(slog.LevelWarn, entity.TopicUsage))
	assert.Equal(t, []int64{2}, b.recipients(slog.LevelError, ""))
}

func TestTopicFilter(t *testing.T) {
	b := newBot([]int64{1}, slog.LevelInfo, slog.New(slog.DiscardHandler))

	b.setTopic(1, entity.TopicUpload, true)
	assert.Equal(t, []int64{1}, b.recipients(slog.LevelWarn, entity.TopicUpload))
	assert.Empty(t, b.recipients(slog.LevelWarn, entity.TopicUsage))
	p, ok := b.prefs(1)
	require.True(t, ok)
	assert.Equal(t, []string{entity.TopicUpload}, p.subscribed())

	b.setTopic(1, entity.TopicUpload, false)
	assert.Empty(t, b.recipients(slog.LevelWarn, entity.TopicUpload))
	assert.Equal(t, []int64{1}, b.recipients(slog.LevelError, entity.TopicUpload))

	b.setTopic(1, "all", true)
	assert.Equal(t, []int64{1}, b.recipients(slog.LevelWarn, entity.TopicSecurity))

	b.setTopic(1, entity.TopicSecurity, false)
	assert.Empty(t, b.recipients(slog.LevelWarn, entity.TopicSecurity))
	assert.Equal(t, []int64{1}, b.recipients(slog.LevelWarn, entity.TopicUsage))
}

func TestErrorsBypassTopicFilter(t *testing.T) {
	b := newBot([]int64{1}, slog.LevelInfo, slog.New(slog.DiscardHandler))
	b.setTopic(1, entity.TopicUsage, true)

	assert.Equal(t, []int64{1}, b.recipients(slog.LevelError, entity.TopicUpload))
	assert.Equal(t, []int64{1}, b.recipients(slog.LevelError, entity.TopicError))
	assert.Equal(t, []int64{1}, b.recipients(slog.LevelError, ""))
	assert.Empty(t, b.recipients(slog.LevelWarn, entity.TopicUpload))

	b.setEnabled(1, false)
	assert.Empty(t, b.recipients(slog.LevelError, entity.TopicError))
}

func TestPrefsCopyIsDetached(t *testing.T) {
	b := newBot([]int64{1}, slog.LevelInfo, slog.New(slog.DiscardHandler))
	b.setTopic(1, entity.TopicUsage, true)

	p, ok := b.prefs(1)
	require.True(t, ok)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			b.setTopic(1, entity.TopicUpload, i%2 == 0)
			b.setLevel(1, slog.LevelWarn)
		}
	}()
	for i := 0; i < 100; i++ {
		_ = p.subscribed()
		_ = p.level.String()
	}
	wg.Wait()

	assert.Equal(t, []string{entity.TopicUsage}, p.subscribed())
	assert.Equal(t, slog.LevelInfo, p.level)
}

func TestUnknownChatIsNotAdmin(t *testing.T) {
	b := newBot([]int64{1}, slog.LevelInfo, slog.New(slog.DiscardHandler))
	assert.True(t, b.isAdmin(1))
	assert.False(t, b.isAdmin(7))
	b.setLevel(7, slog.LevelDebug)
	_, ok := b.prefs(7)
	assert.False(t, ok)
}

func TestParseCodeArgs(t *testing.T) {
	kind, code, err := parseCodeArgs("/code Event party2024")
	require.NoError(t, err)
	assert.Equal(t, entity.KindEvent, kind)
	assert.Equal(t, "PARTY2024", code)

	_, _, err = parseCodeArgs("/code event")
	assert.Error(t, err)
	_, _, err = parseCodeArgs("/code vip X")
	assert.Error(t, err)
}

func TestToggleData(t *testing.T) {
	data := toggleData(entity.KindBeta, "BETA_01")
	assert.LessOrEqual(t, len(toggleData(entity.KindEvent, strings.Repeat("A", 32))), 64)

	kind, code, ok := parseToggleData(data)
	require.True(t, ok)
	assert.Equal(t, entity.KindBeta, kind)
	assert.Equal(t, "BETA_01", code)

	for _, bad := range []string{"x:beta:A", "tg:vip:A", "tg:beta:", "tg:beta"} {
		_, _, ok = parseToggleData(bad)
		assert.False(t, ok, bad)
	}
}

func TestFormatCode(t *testing.T) {
	maxUses, maxFiles, size := 100, 500, 50
	expires := time.Date(2024, 12, 31, 23, 0, 0, 0, time.UTC)
	text := formatCode(&entity.AccessCode{
		Kind: entity.KindEvent, Code: "PARTY_2024", Name: "Summer party.",
		IsActive: true, MaxUses: &maxUses, CurrentUses: 3, ExpiresAt: &expires,
		MaxFiles: &maxFiles, CurrentFiles: 7, MaxFileSize: &size,
		AllowedTypes: []string{"image/*"}, TableCount: 12,
	})
	assert.Contains(t, text, "`PARTY\\_2024`")
	assert.Contains(t, text, "Summer party\\.")
	assert.Contains(t, text, "Uses: 3/100")
	assert.Contains(t, text, "Files: 7/500")
	assert.Contains(t, text, "Max file size: 50 MB")
	assert.Contains(t, text, "Tables: 12")
	assert.Contains(t, text, "2024\\-12\\-31")

	beta := formatCode(&entity.AccessCode{Kind: entity.KindBeta, Code: "B", Name: "b"})
	assert.Contains(t, beta, "Uses: 0/∞")
	assert.NotContains(t, beta, "Files")
}

func TestFormatStats(t *testing.T) {
	last := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	text := formatStats(&entity.UsageStats{
		Code: "EV", CurrentUses: 4, CurrentFiles: 3, Records: 4, UniqueIps: 2, Overshoots: 1,
		ByAction:   map[entity.Action]int{entity.ActionFileUpload: 3, entity.ActionEventAccess: 1},
		LastUsedAt: &last,
	})
	assert.Contains(t, text, "Overshoots: 1")
	assert.Contains(t, text, "file\\_upload: 3")
	assert.Contains(t, text, "event\\_access: 1")
	assert.NotContains(t, text, "beta\\_access")
}

func TestSplitMessage(t *testing.T) {
	assert.Equal(t, []string{"short"}, splitMessage("short", 10))

	parts := splitMessage("line one\nline two\nline three", 12)
	assert.Equal(t, []string{"line one\n", "line two\n", "line three"}, parts)

	parts = splitMessage(strings.Repeat("x", 25), 10)
	assert.Len(t, parts, 3)
}
