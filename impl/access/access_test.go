package access

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"momento/entity"
	"momento/internal/database"
	"momento/lib/clock"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func intPtr(v int) *int { return &v }

func timePtr(t time.Time) *time.Time { return &t }

type env struct {
	store     *countingStore
	validator *Validator
	tracker   *Tracker
	gate      *Gate
	metrics   *recordingMetrics
}

func newEnv(t *testing.T, codes ...*entity.AccessCode) *env {
	t.Helper()
	mem := database.NewMemory()
	for _, c := range codes {
		require.NoError(t, mem.CreateCode(context.Background(), c))
	}
	store := &countingStore{Memory: mem}
	clk := clock.Func(func() time.Time { return testNow })
	metrics := &recordingMetrics{}
	log := slog.New(slog.DiscardHandler)
	v := NewValidator(store, clk, metrics, log)
	tr := NewTracker(store, v, clk, metrics, log)
	return &env{
		store:     store,
		validator: v,
		tracker:   tr,
		gate:      NewGate(v, tr, log),
		metrics:   metrics,
	}
}

// countingStore counts writes and can inject failures.
type countingStore struct {
	*database.Memory
	mu         sync.Mutex
	increments int
	getErr     error
	incErr     error
	addErr     error
}

func (s *countingStore) GetCode(ctx context.Context, kind entity.Kind, code string) (*entity.AccessCode, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.Memory.GetCode(ctx, kind, code)
}

func (s *countingStore) IncrementUsage(ctx context.Context, kind entity.Kind, code string, uses, files int, at time.Time) (*entity.AccessCode, error) {
	s.mu.Lock()
	s.increments++
	s.mu.Unlock()
	if s.incErr != nil {
		return nil, s.incErr
	}
	return s.Memory.IncrementUsage(ctx, kind, code, uses, files, at)
}

func (s *countingStore) IncrementUsageBelow(ctx context.Context, kind entity.Kind, code string, at time.Time) (*entity.AccessCode, error) {
	s.mu.Lock()
	s.increments++
	s.mu.Unlock()
	if s.incErr != nil {
		return nil, s.incErr
	}
	return s.Memory.IncrementUsageBelow(ctx, kind, code, at)
}

func (s *countingStore) AddUsage(ctx context.Context, record *entity.UsageRecord) error {
	if s.addErr != nil {
		return s.addErr
	}
	return s.Memory.AddUsage(ctx, record)
}

func (s *countingStore) incrementCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.increments
}

type recordingMetrics struct {
	mu         sync.Mutex
	results    []string
	tracked    int
	overshoots int
}

func (m *recordingMetrics) Validation(_ entity.Kind, result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, result)
}

func (m *recordingMetrics) Tracked(entity.Kind, entity.Action) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracked++
}

func (m *recordingMetrics) Overshoot(entity.Kind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overshoots++
}

func requireReason(t *testing.T, err error, want Reason) {
	t.Helper()
	require.Error(t, err)
	reason, ok := ReasonOf(err)
	require.True(t, ok, "expected rejection, got %v", err)
	assert.Equal(t, want, reason)
}

func TestReasonMessagesAreDistinct(t *testing.T) {
	reasons := []Reason{
		ReasonNotFound, ReasonInactive, ReasonExpired, ReasonLimitReached,
		ReasonFileTooLarge, ReasonInvalidType, ReasonFileLimitReached,
		ReasonInvalidTable, ReasonStoreError,
	}
	seen := map[string]Reason{}
	for _, r := range reasons {
		msg := r.Message()
		assert.NotEqual(t, "Request rejected.", msg, r)
		if prev, ok := seen[msg]; ok {
			t.Errorf("%s and %s share message %q", prev, r, msg)
		}
		seen[msg] = r
	}
}

func TestReasonOf(t *testing.T) {
	_, ok := ReasonOf(nil)
	assert.False(t, ok)

	reason, ok := ReasonOf(errors.New("boom"))
	assert.False(t, ok)
	assert.Equal(t, ReasonStoreError, reason)

	reason, ok = ReasonOf(Rejectf(ReasonExpired, "x"))
	assert.True(t, ok)
	assert.Equal(t, ReasonExpired, reason)
}
