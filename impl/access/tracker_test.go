package access

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"momento/entity"
)

func TestPartyScenario(t *testing.T) {
	e := newEnv(t, &entity.AccessCode{Kind: entity.KindBeta, Code: "PARTY2024", IsActive: true, MaxUses: intPtr(2)})
	ctx := context.Background()

	for want := 1; want <= 2; want++ {
		snapshot, err := e.validator.Validate(ctx, entity.KindBeta, "party2024")
		require.NoError(t, err)
		_, err = e.tracker.Track(ctx, snapshot, entity.UsageInput{Action: entity.ActionBetaAccess})
		require.NoError(t, err)

		got, err := e.store.Memory.GetCode(ctx, entity.KindBeta, "PARTY2024")
		require.NoError(t, err)
		assert.Equal(t, want, got.CurrentUses)
	}

	_, err := e.validator.Validate(ctx, entity.KindBeta, "PARTY2024")
	requireReason(t, err, ReasonLimitReached)
}

func TestTrackWritesUsageRecord(t *testing.T) {
	e := newEnv(t, &entity.AccessCode{Id: "id-1", Kind: entity.KindEvent, Code: "EV", IsActive: true})
	ctx := context.Background()

	snapshot, err := e.validator.Validate(ctx, entity.KindEvent, "EV")
	require.NoError(t, err)
	record, err := e.tracker.Track(ctx, snapshot, entity.UsageInput{
		UserId: "guest", UserAgent: "ua", IpAddress: "10.0.0.1",
		Action: entity.ActionFileUpload, FileCount: 3, TableNumber: 4,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, record.Id)
	assert.Equal(t, "id-1", record.CodeId)
	assert.Equal(t, testNow, record.UsedAt)
	assert.False(t, record.Overshoot)

	got, err := e.store.Memory.GetCode(ctx, entity.KindEvent, "EV")
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentUses)
	assert.Equal(t, 3, got.CurrentFiles)
	assert.Equal(t, testNow, *got.LastUsedAt)

	records, err := e.store.ListUsage(ctx, entity.KindEvent, "EV", 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, record.Id, records[0].Id)
	assert.Equal(t, 1, e.metrics.tracked)
}

func TestTrackFlagsOvershoot(t *testing.T) {
	e := newEnv(t, &entity.AccessCode{Kind: entity.KindEvent, Code: "EV", IsActive: true, MaxUses: intPtr(1)})
	ctx := context.Background()

	snapshot, err := e.validator.Validate(ctx, entity.KindEvent, "EV")
	require.NoError(t, err)

	first, err := e.tracker.Track(ctx, snapshot, entity.UsageInput{Action: entity.ActionEventAccess})
	require.NoError(t, err)
	assert.False(t, first.Overshoot)

	// a second guest validated before the first one was tracked
	second, err := e.tracker.Track(ctx, snapshot, entity.UsageInput{Action: entity.ActionEventAccess})
	require.NoError(t, err)
	assert.True(t, second.Overshoot)
	assert.Equal(t, 1, e.metrics.overshoots)

	records, err := e.store.ListUsage(ctx, entity.KindEvent, "EV", 0)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestTrackStoreErrors(t *testing.T) {
	code := &entity.AccessCode{Kind: entity.KindEvent, Code: "EV", IsActive: true}

	t.Run("increment", func(t *testing.T) {
		e := newEnv(t, code.Clone())
		e.store.incErr = errors.New("timeout")
		_, err := e.tracker.Track(context.Background(), code, entity.UsageInput{Action: entity.ActionEventAccess})
		assert.ErrorIs(t, err, ErrStore)
	})

	t.Run("add usage", func(t *testing.T) {
		e := newEnv(t, code.Clone())
		e.store.addErr = errors.New("timeout")
		_, err := e.tracker.Track(context.Background(), code, entity.UsageInput{Action: entity.ActionEventAccess})
		assert.ErrorIs(t, err, ErrStore)
	})

	t.Run("code deleted", func(t *testing.T) {
		e := newEnv(t)
		_, err := e.tracker.Track(context.Background(), code, entity.UsageInput{Action: entity.ActionEventAccess})
		requireReason(t, err, ReasonNotFound)
	})
}

func TestConsume(t *testing.T) {
	e := newEnv(t, &entity.AccessCode{Kind: entity.KindBeta, Code: "BETA", IsActive: true, MaxUses: intPtr(1)})
	ctx := context.Background()

	record, err := e.tracker.Consume(ctx, entity.KindBeta, "beta", entity.UsageInput{UserId: "u1"})
	require.NoError(t, err)
	assert.Equal(t, entity.ActionBetaAccess, record.Action)
	assert.Equal(t, "BETA", record.Code)

	_, err = e.tracker.Consume(ctx, entity.KindBeta, "beta", entity.UsageInput{})
	requireReason(t, err, ReasonLimitReached)

	_, err = e.tracker.Consume(ctx, entity.KindBeta, "missing", entity.UsageInput{})
	requireReason(t, err, ReasonNotFound)
}

func TestConsumeConcurrent(t *testing.T) {
	const n = 25
	e := newEnv(t, &entity.AccessCode{Kind: entity.KindEvent, Code: "CROWD", IsActive: true, MaxUses: intPtr(n)})
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted, limited := 0, 0
	for i := 0; i < n+10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.tracker.Consume(ctx, entity.KindEvent, "CROWD", entity.UsageInput{})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				accepted++
				return
			}
			if reason, ok := ReasonOf(err); ok && reason == ReasonLimitReached {
				limited++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, n, accepted)
	assert.Equal(t, 10, limited)
	got, err := e.store.Memory.GetCode(ctx, entity.KindEvent, "CROWD")
	require.NoError(t, err)
	assert.Equal(t, n, got.CurrentUses)

	records, err := e.store.ListUsage(ctx, entity.KindEvent, "CROWD", 0)
	require.NoError(t, err)
	assert.Len(t, records, n)
}

func TestTrackConcurrentFlagsEveryOvershoot(t *testing.T) {
	const n = 10
	e := newEnv(t, &entity.AccessCode{Kind: entity.KindEvent, Code: "RUSH", IsActive: true, MaxUses: intPtr(n)})
	ctx := context.Background()
	snapshot, err := e.validator.Validate(ctx, entity.KindEvent, "RUSH")
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	flagged := 0
	for i := 0; i < n+1; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			record, err := e.tracker.Track(ctx, snapshot, entity.UsageInput{Action: entity.ActionEventAccess})
			if err != nil {
				return
			}
			if record.Overshoot {
				mu.Lock()
				flagged++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	got, err := e.store.Memory.GetCode(ctx, entity.KindEvent, "RUSH")
	require.NoError(t, err)
	assert.Equal(t, n+1, got.CurrentUses)
	assert.Equal(t, 1, flagged)
}

func TestConsumeStoreError(t *testing.T) {
	e := newEnv(t, &entity.AccessCode{Kind: entity.KindBeta, Code: "BETA", IsActive: true})
	e.store.incErr = errors.New("down")
	_, err := e.tracker.Consume(context.Background(), entity.KindBeta, "BETA", entity.UsageInput{})
	assert.ErrorIs(t, err, ErrStore)
}
