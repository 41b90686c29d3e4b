// Package schedule fires lamp actions on cron schedules.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"gyverlamp-go-home/internal/lamp"
	"gyverlamp-go-home/internal/protocol"
)

const (
	actionUpload = "upload"
	runTimeout   = 10 * time.Second
)

var (
	ErrUnknownLamp = errors.New("unknown lamp")
	ErrInvalidSpec = errors.New("invalid cron spec")
)

// Entry is one scheduled action, e.g. {lamp: living, cron: "0 7 * * 1-5", action: on}.
// Action is a control action name (on, off, next, prev, select, reboot) or
// "upload" to push settings. select requires Preset.
type Entry struct {
	Name   string `yaml:"name" json:"name,omitempty"`
	Lamp   string `yaml:"lamp" json:"lamp"`
	Cron   string `yaml:"cron" json:"cron"`
	Action string `yaml:"action" json:"action"`
	Preset int    `yaml:"preset" json:"preset,omitempty"`
}

// Status is an entry together with its next and previous fire times.
type Status struct {
	Entry
	Next time.Time `json:"next"`
	Prev time.Time `json:"prev,omitempty"`
}

type job struct {
	entry  Entry
	id     cron.EntryID
	upload bool
	action protocol.Action
}

// Scheduler owns a cron instance whose jobs drive lamp managers.
type Scheduler struct {
	cron   *cron.Cron
	lamps  *lamp.Lamps
	logger *slog.Logger
	jobs   []*job
}

// New validates entries and registers them. Nothing fires until Start.
// A nil location means local time.
func New(lamps *lamp.Lamps, entries []Entry, loc *time.Location, logger *slog.Logger) (*Scheduler, error) {
	if loc == nil {
		loc = time.Local
	}
	logger = logger.With("component", "schedule")
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cronLogger{logger}),
			cron.WithChain(cron.Recover(cronLogger{logger})),
		),
		lamps:  lamps,
		logger: logger,
	}

	for i, e := range entries {
		j, err := s.compile(e)
		if err != nil {
			return nil, fmt.Errorf("schedule %d (%s): %w", i+1, e.label(), err)
		}
		j.id, err = s.cron.AddFunc(e.Cron, func() { s.run(j) })
		if err != nil {
			return nil, fmt.Errorf("schedule %d (%s): %w: %v", i+1, e.label(), ErrInvalidSpec, err)
		}
		s.jobs = append(s.jobs, j)
	}
	return s, nil
}

func (e Entry) label() string {
	if e.Name != "" {
		return e.Name
	}
	return e.Lamp + " " + e.Action
}

func (s *Scheduler) compile(e Entry) (*job, error) {
	if _, ok := s.lamps.Get(e.Lamp); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLamp, e.Lamp)
	}
	j := &job{entry: e}
	if strings.EqualFold(strings.TrimSpace(e.Action), actionUpload) {
		j.upload = true
		return j, nil
	}
	action, err := protocol.ParseAction(e.Action)
	if err != nil {
		return nil, err
	}
	if action == protocol.ActionSelectPreset && e.Preset < 1 {
		return nil, fmt.Errorf("%w: preset", protocol.ErrMissingArgument)
	}
	j.action = action
	return j, nil
}

// Start begins firing entries in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", "entries", len(s.jobs))
}

// Stop halts the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// Entries returns every entry with its upcoming fire time. Next is zero
// until the scheduler has started.
func (s *Scheduler) Entries() []Status {
	out := make([]Status, len(s.jobs))
	for i, j := range s.jobs {
		ce := s.cron.Entry(j.id)
		out[i] = Status{Entry: j.entry, Next: ce.Next, Prev: ce.Prev}
	}
	return out
}

func (s *Scheduler) run(j *job) {
	m, ok := s.lamps.Get(j.entry.Lamp)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	var err error
	switch {
	case j.upload:
		err = m.UploadSettings(ctx)
	case j.action == protocol.ActionSelectPreset:
		err = m.SendControl(ctx, j.action, j.entry.Preset)
	default:
		err = m.SendControl(ctx, j.action)
	}
	if err != nil {
		s.logger.Warn("scheduled action rejected", "entry", j.entry.label(), "lamp", j.entry.Lamp, "err", err)
		return
	}
	s.logger.Info("scheduled action fired", "entry", j.entry.label(), "lamp", j.entry.Lamp, "action", j.entry.Action)
}

// cronLogger adapts slog to cron's logr-style interface.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron "+msg, append(keysAndValues, "err", err)...)
}
