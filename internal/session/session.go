// Package session owns the server-side lifecycle of a single exam attempt:
// phase transitions, the 1 Hz timer, the periodic autosave of the answer
// buffer, and the exactly-once submission protocol. Handlers and the
// WebSocket stream drive a Controller; persistence goes through the Gateway
// interface so the core stays testable against fakes.
package session

import (
	"time"

	"github.com/google/uuid"
)

// Phase is the lifecycle state of an exam attempt.
type Phase string

const (
	// PhaseLoading is the initial state before Load resolves.
	PhaseLoading Phase = "LOADING"
	// PhaseNotYetOpen means the exam window has not opened.
	PhaseNotYetOpen Phase = "NOT_YET_OPEN"
	// PhaseReadyToStart means the window is open and no attempt has begun.
	PhaseReadyToStart Phase = "READY_TO_START"
	// PhaseActive means the attempt is running: timers tick, answers buffer.
	PhaseActive Phase = "ACTIVE"
	// PhaseSubmitted is terminal; the submission is sealed.
	PhaseSubmitted Phase = "SUBMITTED"
	// PhaseExpired means the window closed without a successful submission.
	PhaseExpired Phase = "EXPIRED"
	// PhaseInterrupted means the student exited mid-attempt; the submission
	// stays started so a later Load resumes straight into PhaseActive.
	PhaseInterrupted Phase = "INTERRUPTED"
)

// Terminal reports whether no further transitions can leave the phase.
func (p Phase) Terminal() bool {
	return p == PhaseSubmitted || p == PhaseExpired || p == PhaseInterrupted
}

// TimerState is derived on every tick from the exam's fixed start/end
// timestamps and the current clock reading. It is never persisted and never
// counted down locally, so a suspended process cannot desynchronize it from
// the true deadline.
type TimerState struct {
	Now        time.Time     `json:"now"`
	UntilStart time.Duration `json:"until_start"`
	Remaining  time.Duration `json:"remaining"`
	Elapsed    time.Duration `json:"elapsed"`
	Started    bool          `json:"started"`
	Ended      bool          `json:"ended"`
	TimeUp     bool          `json:"time_up"`
}

// computeTimer derives TimerState from the exam window at now.
func computeTimer(now, startAt, endAt time.Time) TimerState {
	t := TimerState{Now: now}

	if now.Before(startAt) {
		t.UntilStart = startAt.Sub(now)
	} else {
		t.Started = true
		t.Elapsed = now.Sub(startAt)
	}

	if now.Before(endAt) {
		if t.Started {
			t.Remaining = endAt.Sub(now)
		} else {
			t.Remaining = endAt.Sub(startAt)
		}
	} else {
		t.Ended = true
		t.TimeUp = true
	}

	return t
}

// Snapshot is an immutable view of a controller, published to subscribers on
// every tick and transition. It is what the UI renders.
type Snapshot struct {
	ExamID       uuid.UUID  `json:"exam_id"`
	StudentID    int        `json:"student_id"`
	Phase        Phase      `json:"phase"`
	Timer        TimerState `json:"timer"`
	Resumed      bool       `json:"resumed"`
	Dirty        bool       `json:"unsaved_changes"`
	LastSavedAt  *time.Time `json:"last_saved_at,omitempty"`
	PendingFiles int        `json:"pending_files"`
	Uploaded     []string   `json:"uploaded_files,omitempty"`
}

// Clock supplies the current time. Production code uses SystemClock; tests
// substitute a manual clock to step through the exam window.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock reads the server wall clock.
var SystemClock Clock = systemClock{}

// Options tunes a controller. Zero values fall back to defaults.
type Options struct {
	// TickInterval drives timer recomputation and the auto-submit check.
	TickInterval time.Duration
	// AutosaveInterval drives periodic persistence of the answer buffer.
	AutosaveInterval time.Duration
	// MaxAnswerFiles caps local file attachments per attempt.
	MaxAnswerFiles int
}

const (
	defaultTickInterval     = time.Second
	defaultAutosaveInterval = 30 * time.Second
	defaultMaxAnswerFiles   = 5
)

func (o Options) withDefaults() Options {
	if o.TickInterval <= 0 {
		o.TickInterval = defaultTickInterval
	}
	if o.AutosaveInterval <= 0 {
		o.AutosaveInterval = defaultAutosaveInterval
	}
	if o.MaxAnswerFiles <= 0 {
		o.MaxAnswerFiles = defaultMaxAnswerFiles
	}
	return o
}
