package shell

import (
	"fmt"
	"sort"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/mfields/tradeshell/pkg/logger"
)

// ScheduledCommand is one registered cron entry.
type ScheduledCommand struct {
	ID      string
	Spec    string
	Command string
}

// Scheduler runs command lines on cron schedules. Entries are keyed by a
// caller-chosen id so they can be listed and removed.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]cron.EntryID
	specs   map[string]ScheduledCommand
	logger  *logger.Logger
}

// NewScheduler creates and starts the scheduler.
func NewScheduler(log *logger.Logger) *Scheduler {
	s := &Scheduler{
		cron:    cron.New(),
		entries: make(map[string]cron.EntryID),
		specs:   make(map[string]ScheduledCommand),
		logger:  log,
	}
	s.cron.Start()
	return s
}

// Add registers run under id on the standard five-field cron spec.
// Reusing a live id is an error; remove it first.
func (s *Scheduler) Add(id, spec, command string, run func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[id]; exists {
		return fmt.Errorf("schedule %q already exists", id)
	}

	entryID, err := s.cron.AddFunc(spec, func() {
		s.logger.WithFields(map[string]interface{}{
			"schedule": id,
			"command":  command,
		}).Info("Running scheduled command")
		run()
	})
	if err != nil {
		return fmt.Errorf("bad schedule %q: %w", spec, err)
	}

	s.entries[id] = entryID
	s.specs[id] = ScheduledCommand{ID: id, Spec: spec, Command: command}
	return nil
}

// Remove drops the entry registered under id.
func (s *Scheduler) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entryID, ok := s.entries[id]
	if !ok {
		return fmt.Errorf("no schedule %q", id)
	}
	s.cron.Remove(entryID)
	delete(s.entries, id)
	delete(s.specs, id)
	return nil
}

// List returns registered entries sorted by id.
func (s *Scheduler) List() []ScheduledCommand {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ScheduledCommand, 0, len(s.specs))
	for _, sc := range s.specs {
		out = append(out, sc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Stop halts the scheduler, waiting for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
