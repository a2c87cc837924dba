// Package scheduler triggers batch matching passes on a timetable.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Runner is the work invoked on every tick.
type Runner interface {
	RunOnce(ctx context.Context) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context) error

func (f RunnerFunc) RunOnce(ctx context.Context) error { return f(ctx) }

// ClockTime is a time of day.
type ClockTime struct {
	Hour   int
	Minute int
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// ParseClockTimes parses a comma separated list of HH:MM values.
func ParseClockTimes(raw string) ([]ClockTime, error) {
	var times []ClockTime
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		hh, mm, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("invalid time %q: want HH:MM", part)
		}
		h, err := strconv.Atoi(hh)
		if err != nil || h < 0 || h > 23 {
			return nil, fmt.Errorf("invalid hour in %q", part)
		}
		m, err := strconv.Atoi(mm)
		if err != nil || m < 0 || m > 59 {
			return nil, fmt.Errorf("invalid minute in %q", part)
		}
		times = append(times, ClockTime{Hour: h, Minute: m})
	}
	sort.Slice(times, func(i, j int) bool {
		if times[i].Hour != times[j].Hour {
			return times[i].Hour < times[j].Hour
		}
		return times[i].Minute < times[j].Minute
	})
	return times, nil
}

// Config selects the timetable. A positive Interval wins over Times.
type Config struct {
	Times    []ClockTime
	Interval time.Duration
	Location *time.Location
}

// Scheduler fires a Runner at fixed times of day or on a fixed interval.
type Scheduler struct {
	cfg    Config
	runner Runner
	log    logrus.FieldLogger
	now    func() time.Time
	after  func(d time.Duration) <-chan time.Time
}

// New creates a Scheduler.
func New(cfg Config, runner Runner, log logrus.FieldLogger) (*Scheduler, error) {
	if cfg.Interval <= 0 && len(cfg.Times) == 0 {
		return nil, errors.New("scheduler: no batch times or interval configured")
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Scheduler{
		cfg:    cfg,
		runner: runner,
		log:    log,
		now:    time.Now,
		after:  time.After,
	}, nil
}

// Next returns the first fire time strictly after from.
func (s *Scheduler) Next(from time.Time) time.Time {
	if s.cfg.Interval > 0 {
		return from.Add(s.cfg.Interval)
	}

	local := from.In(s.cfg.Location)
	for day := 0; day <= 1; day++ {
		y, m, d := local.AddDate(0, 0, day).Date()
		for _, ct := range s.cfg.Times {
			at := time.Date(y, m, d, ct.Hour, ct.Minute, 0, 0, s.cfg.Location)
			if at.After(from) {
				return at
			}
		}
	}
	// Unreachable with at least one configured time.
	return from.Add(24 * time.Hour)
}

// Run blocks until ctx is cancelled, invoking the runner at every fire time.
// A failed run is logged and the schedule continues.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		next := s.Next(s.now())
		s.log.WithField("next_run", next.Format(time.RFC3339)).Debug("batch scheduled")

		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case <-s.after(next.Sub(s.now())):
		}

		if err := s.runner.RunOnce(ctx); err != nil {
			s.log.WithError(err).Error("scheduled batch failed")
		}
	}
}
