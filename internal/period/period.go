// Package period computes QBR reporting period boundaries.
//
// A period is one calendar month identified by a "YYYY-MM" token. Boundaries
// are evaluated in the configured civil time zone and then converted to UTC,
// because the ConnectWise API interprets date filters in that same zone;
// naive UTC month boundaries would drift across DST transitions.
package period

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/qbr/internal/clock"
	"github.com/smallbiznis/qbr/internal/config"
	"go.uber.org/fx"
)

// Module provides the period calculator.
var Module = fx.Provide(New)

// ErrInvalidPeriod reports a malformed period token.
var ErrInvalidPeriod = errors.New("invalid period token")

// Calculator converts period tokens into concrete UTC instants.
type Calculator struct {
	loc *time.Location
}

// New builds a Calculator for the configured reporting time zone.
func New(cfg config.Config) (*Calculator, error) {
	return NewInZone(cfg.ReportingTimezone)
}

// NewInZone builds a Calculator for an explicit IANA zone name.
func NewInZone(zone string) (*Calculator, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("load reporting timezone %q: %w", zone, err)
	}
	return &Calculator{loc: loc}, nil
}

// Parse validates a "YYYY-MM" token and returns its year and month.
func Parse(period string) (int, time.Month, error) {
	parts := strings.Split(period, "-")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidPeriod, period)
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil || year <= 0 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidPeriod, period)
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil || month < 1 || month > 12 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidPeriod, period)
	}
	return year, time.Month(month), nil
}

// Boundaries returns the first and last instant of the period's calendar
// month as read in the reporting zone, converted to UTC.
func (c *Calculator) Boundaries(period string) (time.Time, time.Time, error) {
	year, month, err := Parse(period)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	start := time.Date(year, month, 1, 0, 0, 0, 0, c.loc)
	lastDay := start.AddDate(0, 1, 0).AddDate(0, 0, -1)
	end := time.Date(lastDay.Year(), lastDay.Month(), lastDay.Day(), 23, 59, 59, 0, c.loc)

	return start.UTC(), end.UTC(), nil
}

// Current derives the current "YYYY-MM" token from the clock's UTC instant.
func (c *Calculator) Current(clk clock.Clock) string {
	now := clk.Now().UTC()
	return fmt.Sprintf("%04d-%02d", now.Year(), int(now.Month()))
}

// Enumerate lists periods from start to end inclusive, ascending one month
// per step.
func Enumerate(start, end string) ([]string, error) {
	startYear, startMonth, err := Parse(start)
	if err != nil {
		return nil, err
	}
	endYear, endMonth, err := Parse(end)
	if err != nil {
		return nil, err
	}

	cursor := time.Date(startYear, startMonth, 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(endYear, endMonth, 1, 0, 0, 0, 0, time.UTC)
	if cursor.After(last) {
		return nil, fmt.Errorf("%w: start %q after end %q", ErrInvalidPeriod, start, end)
	}

	var periods []string
	for !cursor.After(last) {
		periods = append(periods, fmt.Sprintf("%04d-%02d", cursor.Year(), int(cursor.Month())))
		cursor = cursor.AddDate(0, 1, 0)
	}
	return periods, nil
}

// FormatQuery renders an instant in the bracketed UTC literal the
// ConnectWise conditions language expects, e.g. [2024-03-01T05:00:00Z].
func FormatQuery(t time.Time) string {
	return "[" + t.UTC().Format("2006-01-02T15:04:05Z") + "]"
}
