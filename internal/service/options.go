package service

import (
	"fmt"
	"strings"
	"time"

	"trading-journal/internal/config"
	"trading-journal/internal/filter"
)

// Metrics receives pipeline and notification measurements.
type Metrics interface {
	RecordPipeline(scope string, matched int, elapsed time.Duration)
	RecordNotification(ok bool)
	RecordQuoteError(symbol string)
}

type nopMetrics struct{}

func (nopMetrics) RecordPipeline(string, int, time.Duration) {}
func (nopMetrics) RecordNotification(bool)                   {}
func (nopMetrics) RecordQuoteError(string)                   {}

// PipelineOptions derives the filter options of schema from the filters section.
// Threshold keys match schema fields case-insensitively; non-numeric or unknown
// fields are ignored.
func PipelineOptions(cfg config.FiltersConfig, schema filter.Schema, clock func() time.Time) (filter.Options, error) {
	missing, err := filter.ParseMissingPolicy(cfg.MissingNumbers)
	if err != nil {
		return filter.Options{}, fmt.Errorf("filters.missing_numbers: %w", err)
	}

	window := strings.ToLower(strings.TrimSpace(cfg.DefaultWindow))
	if window != "" && window != filter.WindowAll {
		if _, ok := filter.LookupWindow(window); !ok {
			return filter.Options{}, fmt.Errorf("filters.default_window: unknown window %q", cfg.DefaultWindow)
		}
	}

	ranges := make(map[string]filter.Range)
	for key, min := range cfg.MinDefaults {
		for field, kind := range schema.Fields {
			if kind == filter.KindNumber && strings.EqualFold(field, key) {
				ranges[field] = filter.AtLeast(min)
			}
		}
	}

	return filter.Options{
		Defaults: filter.Defaults{Window: window, Ranges: ranges},
		Missing:  missing,
		Clock:    clock,
	}, nil
}
