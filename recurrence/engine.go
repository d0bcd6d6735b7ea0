package recurrence

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/mo"

	"github.com/cyp0633/libschedule/internal/timeutil"
)

// Engine compiles rules and memoizes their expansions.
type Engine struct {
	cache  *RecurrenceCache
	config EngineConfig
	logger zerolog.Logger
}

// NewEngine creates an engine with the default configuration.
func NewEngine(opts ...Option) *Engine {
	return NewEngineWithConfig(DefaultEngineConfig, opts...)
}

// Compile is Compile bound to the engine, for callers that only hold an Engine.
func (e *Engine) Compile(rule Rule, start time.Time, endOfRecurrence mo.Option[time.Time], loc *time.Location) (*Stream, error) {
	return Compile(rule, start, endOfRecurrence, loc)
}

// Between returns every start in [rangeStart, rangeEnd], inclusive at both
// ends. Results are cached when the engine has a cache.
func (e *Engine) Between(
	rule Rule,
	start time.Time,
	endOfRecurrence mo.Option[time.Time],
	loc *time.Location,
	rangeStart, rangeEnd time.Time,
) ([]time.Time, error) {
	key := CacheKey{
		Operation:       "between",
		Rule:            rule,
		Start:           start,
		EndOfRecurrence: endOfRecurrence,
		Location:        loc,
		RangeStart:      rangeStart,
		RangeEnd:        rangeEnd,
	}
	if e.cache != nil {
		if cached, ok := e.cache.Get(key); ok {
			return append([]time.Time(nil), cached.([]time.Time)...), nil
		}
	}

	stream, err := Compile(rule, start, endOfRecurrence, loc)
	if err != nil {
		return nil, err
	}

	var starts []time.Time
	next := stream.Iterator()
	for {
		t, ok := next()
		if !ok || t.After(rangeEnd) {
			break
		}
		if t.Before(rangeStart) {
			continue
		}
		starts = append(starts, t)
		if limit := e.config.MaxExpansionOccurrences; limit > 0 && len(starts) >= limit {
			e.logger.Warn().
				Str("rule", rule.Name).
				Int("limit", limit).
				Time("range_start", rangeStart).
				Time("range_end", rangeEnd).
				Msg("recurrence expansion truncated")
			break
		}
	}

	if e.cache != nil {
		e.cache.Set(key, append([]time.Time(nil), starts...))
	}
	return starts, nil
}

// HasOccurrenceInRange reports whether an event spanning [start, end) and
// repeating by rule (nil for a one-off) has any occurrence touching
// [rangeStart, rangeEnd).
func (e *Engine) HasOccurrenceInRange(
	rule *Rule,
	start, end time.Time,
	endOfRecurrence mo.Option[time.Time],
	loc *time.Location,
	rangeStart, rangeEnd time.Time,
) (bool, error) {
	if rule == nil {
		return timeutil.Overlaps(start, end, rangeStart, rangeEnd), nil
	}

	key := CacheKey{
		Operation:       fmt.Sprintf("has:%d", end.Sub(start)),
		Rule:            *rule,
		Start:           start,
		EndOfRecurrence: endOfRecurrence,
		Location:        loc,
		RangeStart:      rangeStart,
		RangeEnd:        rangeEnd,
	}
	if e.cache != nil {
		if cached, ok := e.cache.Get(key); ok {
			return cached.(bool), nil
		}
	}

	stream, err := Compile(*rule, start, endOfRecurrence, loc)
	if err != nil {
		return false, fmt.Errorf("failed to check rule occurrences: %w", err)
	}

	found := hasStreamOccurrence(stream, end.Sub(start), rangeStart, rangeEnd)
	if e.cache != nil {
		e.cache.Set(key, found)
	}
	return found, nil
}

func hasStreamOccurrence(stream *Stream, duration time.Duration, rangeStart, rangeEnd time.Time) bool {
	if prev, ok := stream.Before(rangeStart, false).Get(); ok && prev.Add(duration).After(rangeStart) {
		return true
	}
	next, ok := stream.After(rangeStart, true).Get()
	return ok && next.Before(rangeEnd)
}

// CacheStats reports the cache state; zero when caching is disabled.
func (e *Engine) CacheStats() CacheStats {
	if e.cache == nil {
		return CacheStats{}
	}
	return e.cache.Stats()
}

// Close releases the cache goroutine.
func (e *Engine) Close() {
	if e.cache != nil {
		e.cache.Close()
	}
}
