package access

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"momento/entity"
	"momento/internal/database"
	"momento/lib/clock"
	"momento/lib/sl"
)

type Store interface {
	CodeReader
	IncrementUsage(ctx context.Context, kind entity.Kind, code string, uses, files int, at time.Time) (*entity.AccessCode, error)
	IncrementUsageBelow(ctx context.Context, kind entity.Kind, code string, at time.Time) (*entity.AccessCode, error)
	AddUsage(ctx context.Context, record *entity.UsageRecord) error
}

type Tracker struct {
	store     Store
	validator *Validator
	clock     clock.Clock
	metrics   Metrics
	log       *slog.Logger
}

func NewTracker(store Store, validator *Validator, clk clock.Clock, metrics Metrics, log *slog.Logger) *Tracker {
	if clk == nil {
		clk = clock.System{}
	}
	if metrics == nil {
		metrics = noMetrics{}
	}
	return &Tracker{
		store:     store,
		validator: validator,
		clock:     clk,
		metrics:   metrics,
		log:       log.With(sl.Module("access.tracker")),
	}
}

// Track records an action against an already validated code. The counters
// are moved by one atomic store increment; if that pushes a counter past its
// bound the usage is still kept and flagged for reconciliation.
func (t *Tracker) Track(ctx context.Context, code *entity.AccessCode, in entity.UsageInput) (*entity.UsageRecord, error) {
	now := t.clock.Now()
	files := 0
	if in.Action == entity.ActionFileUpload {
		if in.FileCount <= 0 {
			in.FileCount = 1
		}
		files = in.FileCount
	}

	after, err := t.store.IncrementUsage(ctx, code.Kind, code.Code, 1, files, now)
	if errors.Is(err, database.ErrNotFound) {
		return nil, Rejectf(ReasonNotFound, "code %s removed before tracking", code.Code)
	}
	if err != nil {
		return nil, storeError("increment usage", err)
	}

	record := newUsageRecord(after, in, now)
	record.Overshoot = after.Overshoot()
	if record.Overshoot {
		t.flagOvershoot(after, record)
	}
	return record, t.save(ctx, record)
}

// Consume validates a code and takes one use from it in a single conditional
// increment, so concurrent guests can never push current_uses past max_uses.
func (t *Tracker) Consume(ctx context.Context, kind entity.Kind, code string, in entity.UsageInput) (*entity.UsageRecord, error) {
	snapshot, err := t.validator.Validate(ctx, kind, code)
	if err != nil {
		return nil, err
	}

	now := t.clock.Now()
	after, err := t.store.IncrementUsageBelow(ctx, kind, snapshot.Code, now)
	if errors.Is(err, database.ErrConditionFailed) {
		// lost a race; report what the code looks like now
		if _, err = t.validator.Validate(ctx, kind, snapshot.Code); err != nil {
			return nil, err
		}
		return nil, Reject(ReasonLimitReached)
	}
	if err != nil {
		return nil, storeError("increment usage", err)
	}

	if in.Action == "" {
		in.Action = kind.AccessAction()
	}
	record := newUsageRecord(after, in, now)
	return record, t.save(ctx, record)
}

func (t *Tracker) save(ctx context.Context, record *entity.UsageRecord) error {
	if err := t.store.AddUsage(ctx, record); err != nil {
		t.log.With(
			sl.Code(string(record.Kind), record.Code),
			slog.String("usage_id", record.Id),
			sl.Topic(entity.TopicError),
			sl.Err(err),
		).Error("usage counted but record not saved")
		return storeError("add usage", err)
	}
	t.metrics.Tracked(record.Kind, record.Action)
	return nil
}

func (t *Tracker) flagOvershoot(code *entity.AccessCode, record *entity.UsageRecord) {
	t.metrics.Overshoot(code.Kind)
	log := t.log.With(
		sl.Code(string(code.Kind), code.Code),
		slog.String("usage_id", record.Id),
		slog.String("action", string(record.Action)),
		slog.Int("current_uses", code.CurrentUses),
		slog.Int("current_files", code.CurrentFiles),
		sl.Topic(entity.TopicUsage),
	)
	if code.MaxUses != nil {
		log = log.With(slog.Int("max_uses", *code.MaxUses))
	}
	if code.MaxFiles != nil {
		log = log.With(slog.Int("max_files", *code.MaxFiles))
	}
	log.Warn("usage limit overshoot")
}

func newUsageRecord(code *entity.AccessCode, in entity.UsageInput, now time.Time) *entity.UsageRecord {
	return &entity.UsageRecord{
		Id:          ulid.Make().String(),
		Kind:        code.Kind,
		CodeId:      code.Id,
		Code:        code.Code,
		UserId:      in.UserId,
		UserAgent:   in.UserAgent,
		IpAddress:   in.IpAddress,
		Action:      in.Action,
		UsedAt:      now,
		FileCount:   in.FileCount,
		TableNumber: in.TableNumber,
		FileId:      in.FileId,
	}
}
