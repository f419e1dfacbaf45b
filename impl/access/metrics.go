package access

import "momento/entity"

// Metrics receives counters from the access core.
type Metrics interface {
	Validation(kind entity.Kind, result string)
	Tracked(kind entity.Kind, action entity.Action)
	Overshoot(kind entity.Kind)
}

type noMetrics struct{}

func (noMetrics) Validation(entity.Kind, string)     {}
func (noMetrics) Tracked(entity.Kind, entity.Action) {}
func (noMetrics) Overshoot(entity.Kind)              {}
