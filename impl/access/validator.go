// Package access holds the code validation and usage tracking core shared by
// beta entry, event entry and guest uploads.
//
// Validation is read-only. Counters move only through Tracker, which relies
// on the store's atomic increments; no lock is held across storage writes.
package access

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"momento/entity"
	"momento/internal/database"
	"momento/lib/clock"
	"momento/lib/sl"
)

type CodeReader interface {
	GetCode(ctx context.Context, kind entity.Kind, code string) (*entity.AccessCode, error)
}

type Validator struct {
	store   CodeReader
	clock   clock.Clock
	metrics Metrics
	log     *slog.Logger
}

func NewValidator(store CodeReader, clk clock.Clock, metrics Metrics, log *slog.Logger) *Validator {
	if clk == nil {
		clk = clock.System{}
	}
	if metrics == nil {
		metrics = noMetrics{}
	}
	return &Validator{
		store:   store,
		clock:   clk,
		metrics: metrics,
		log:     log.With(sl.Module("access.validator")),
	}
}

// Validate looks up a code and returns a snapshot when it may be used.
// Rejections come back as *Rejection; store failures wrap ErrStore.
func (v *Validator) Validate(ctx context.Context, kind entity.Kind, code string) (*entity.AccessCode, error) {
	code = entity.NormalizeCode(code)
	if code == "" {
		v.metrics.Validation(kind, string(ReasonNotFound))
		return nil, Reject(ReasonNotFound)
	}

	record, err := v.store.GetCode(ctx, kind, code)
	if errors.Is(err, database.ErrNotFound) {
		v.metrics.Validation(kind, string(ReasonNotFound))
		return nil, Reject(ReasonNotFound)
	}
	if err != nil {
		v.metrics.Validation(kind, string(ReasonStoreError))
		return nil, storeError("get code", err)
	}

	if err = Check(record, v.clock.Now()); err != nil {
		reason, _ := ReasonOf(err)
		v.metrics.Validation(kind, string(reason))
		v.log.With(
			sl.Code(string(kind), code),
			slog.String("reason", string(reason)),
		).Debug("code rejected")
		return nil, err
	}
	v.metrics.Validation(kind, "accepted")
	return record.Clone(), nil
}

// Check applies the code-level rules in order; the first failing rule wins,
// so an inactive code is reported as inactive even when it is also expired.
func Check(record *entity.AccessCode, now time.Time) error {
	switch {
	case !record.IsActive:
		return Reject(ReasonInactive)
	case record.IsExpired(now):
		return Reject(ReasonExpired)
	case record.UsesExhausted():
		return Rejectf(ReasonLimitReached, "%d of %d uses", record.CurrentUses, *record.MaxUses)
	}
	return nil
}
