// Package decay implements C7 DecayEngine: periodic velocity half-life and
// stale-use decrement across the lesson corpus (spec.md §4.7).
package decay

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/pbrown/claude-recall/internal/atomicfile"
	"github.com/pbrown/claude-recall/internal/errs"
	"github.com/pbrown/claude-recall/internal/lessons"
	"github.com/pbrown/claude-recall/internal/lock"
	"github.com/pbrown/claude-recall/internal/models"
)

const staleUseAfter = 30 * 24 * time.Hour

// state is decay-state.json's shape. SessionsSinceRun is the explicit
// counter the Open Question in spec.md §10 resolves for: rather than
// inferring activity from checkpoint-file mtimes (fragile under clock
// skew and concurrent cleanup), the engine tracks how many sessions have
// run since the last decay cycle and that counter alone gates the skip.
type state struct {
	LastRun          time.Time `json:"last_run"`
	SessionsSinceRun int       `json:"sessions_since_run"`
}

// Engine runs decay cycles against a Store's lessons.
type Engine struct {
	Store           *lessons.Store
	StatePath       string // decay-state.json
	IntervalDays    int
	LockTimeout     time.Duration
}

// NewEngine builds an Engine persisting state under stateDir.
func NewEngine(store *lessons.Store, stateDir string) *Engine {
	return &Engine{
		Store:        store,
		StatePath:    stateDir + "/decay-state.json",
		IntervalDays: 7,
		LockTimeout:  lock.DefaultTimeout,
	}
}

func (e *Engine) lockTimeout() time.Duration {
	if e.LockTimeout <= 0 {
		return lock.DefaultTimeout
	}
	return e.LockTimeout
}

func (e *Engine) intervalDays() int {
	if e.IntervalDays <= 0 {
		return 7
	}
	return e.IntervalDays
}

// RecordSessionStart increments the sessions-since-last-run counter. Call
// this once per hook invocation that represents session activity.
func (e *Engine) RecordSessionStart() error {
	fl, err := lock.Acquire(e.StatePath+".lock", e.lockTimeout())
	if err != nil {
		return err
	}
	defer fl.Release()

	st := e.readState()
	st.SessionsSinceRun++
	return e.writeState(st)
}

// Result summarizes one Run invocation.
type Result struct {
	Ran           bool
	LessonsAged   int
	UsesDecremented int
}

// Run applies a decay cycle if due: at most once per IntervalDays, and
// skipped when no sessions have occurred since the last run, unless
// force is set. On completion it resets the session counter and
// persists last_run.
func (e *Engine) Run(force bool) (Result, error) {
	fl, err := lock.Acquire(e.StatePath+".lock", e.lockTimeout())
	if err != nil {
		return Result{}, err
	}
	defer fl.Release()

	st := e.readState()
	if !force {
		if !st.LastRun.IsZero() && time.Since(st.LastRun) < time.Duration(e.intervalDays())*24*time.Hour {
			return Result{Ran: false}, nil
		}
		if st.SessionsSinceRun == 0 && !st.LastRun.IsZero() {
			return Result{Ran: false}, nil
		}
	}

	decremented := 0
	aged, err := e.Store.Decay(func(l *models.Lesson) bool {
		changed := false
		if l.Velocity > 0 {
			l.Velocity *= models.VelocityDecayFactor
			if l.Velocity < models.VelocityEpsilon {
				l.Velocity = 0
			}
			changed = true
		}
		if !l.LastUsed.IsZero() && time.Since(l.LastUsed) > staleUseAfter {
			if l.Uses > 1 {
				l.Uses--
			} else {
				l.Uses = 1
			}
			decremented++
			changed = true
		}
		return changed
	})
	if err != nil {
		return Result{}, err
	}

	st.LastRun = time.Now()
	st.SessionsSinceRun = 0
	if err := e.writeState(st); err != nil {
		return Result{}, err
	}

	return Result{Ran: true, LessonsAged: aged, UsesDecremented: decremented}, nil
}

func (e *Engine) readState() state {
	data, err := os.ReadFile(e.StatePath)
	if err != nil {
		return state{}
	}
	var st state
	if json.Unmarshal(data, &st) != nil {
		return state{}
	}
	return st
}

func (e *Engine) writeState(st state) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal decay state: %w", err)
	}
	if err := atomicfile.Write(e.StatePath, data, 0644); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrIO, err)
	}
	return nil
}
