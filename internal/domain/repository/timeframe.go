package repository

import (
	"fmt"
	"time"
)

// Range is a lookback window such as "3mo".
type Range string

// Interval is a bar resolution such as "1d".
type Interval string

var rangeSpans = map[Range]func(time.Time) time.Time{
	"1d":  func(t time.Time) time.Time { return t.AddDate(0, 0, -1) },
	"5d":  func(t time.Time) time.Time { return t.AddDate(0, 0, -5) },
	"1mo": func(t time.Time) time.Time { return t.AddDate(0, -1, 0) },
	"3mo": func(t time.Time) time.Time { return t.AddDate(0, -3, 0) },
	"6mo": func(t time.Time) time.Time { return t.AddDate(0, -6, 0) },
	"1y":  func(t time.Time) time.Time { return t.AddDate(-1, 0, 0) },
	"2y":  func(t time.Time) time.Time { return t.AddDate(-2, 0, 0) },
	"5y":  func(t time.Time) time.Time { return t.AddDate(-5, 0, 0) },
}

type aggregation struct {
	multiplier int
	timespan   string
}

var intervalAggregations = map[Interval]aggregation{
	"1m":  {1, "minute"},
	"5m":  {5, "minute"},
	"15m": {15, "minute"},
	"30m": {30, "minute"},
	"1h":  {1, "hour"},
	"1d":  {1, "day"},
	"1wk": {1, "week"},
	"1mo": {1, "month"},
}

func DefaultRange() Range       { return "3mo" }
func DefaultInterval() Interval { return "1d" }

func IsValidRange(r Range) bool {
	_, ok := rangeSpans[r]
	return ok
}

func IsValidInterval(i Interval) bool {
	_, ok := intervalAggregations[i]
	return ok
}

// NormalizeRange converts a raw string to a valid range, or the default.
func NormalizeRange(s string) Range {
	if r := Range(s); IsValidRange(r) {
		return r
	}
	return DefaultRange()
}

// NormalizeInterval converts a raw string to a valid interval, or the default.
func NormalizeInterval(s string) Interval {
	if i := Interval(s); IsValidInterval(i) {
		return i
	}
	return DefaultInterval()
}

// BarQuery is the upstream request shape derived from (range, interval).
type BarQuery struct {
	Symbol     string
	From       time.Time
	To         time.Time
	Multiplier int
	Timespan   string
}

// NewBarQuery resolves range and interval against now.
func NewBarQuery(symbol string, r Range, i Interval, now time.Time) (BarQuery, error) {
	span, ok := rangeSpans[r]
	if !ok {
		return BarQuery{}, fmt.Errorf("unsupported range %q", r)
	}
	agg, ok := intervalAggregations[i]
	if !ok {
		return BarQuery{}, fmt.Errorf("unsupported interval %q", i)
	}
	return BarQuery{
		Symbol:     symbol,
		From:       span(now),
		To:         now,
		Multiplier: agg.multiplier,
		Timespan:   agg.timespan,
	}, nil
}
