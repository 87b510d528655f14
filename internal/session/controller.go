package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opencampus/portal-backend/internal/model"
	"github.com/rs/zerolog"
)

// Controller owns one student's attempt at one exam. All transitions are
// serialized on an internal mutex so the timer tick, the autosave tick and
// user actions are mutually exclusive; in particular only one submit call
// can ever reach the gateway. Timers are owned by the controller and torn
// down on every exit path.
type Controller struct {
	gw    Gateway
	clock Clock
	log   zerolog.Logger
	opts  Options

	examID    uuid.UUID
	studentID int

	mu          sync.Mutex
	phase       Phase
	exam        *model.Exam
	sub         *model.Submission
	questions   []model.Question
	buffer      *AnswerBuffer
	timer       TimerState
	resumed     bool
	lastSavedAt *time.Time
	submitting  bool

	subscribers map[int]func(Snapshot)
	nextSubID   int

	loopStarted bool
	stop        chan struct{}
	stopOnce    sync.Once
	done        chan struct{}
}

// NewController creates a controller in the loading phase. Call Load before
// any other operation.
func NewController(gw Gateway, clock Clock, log zerolog.Logger, opts Options, examID uuid.UUID, studentID int) *Controller {
	return &Controller{
		gw:          gw,
		clock:       clock,
		opts:        opts.withDefaults(),
		examID:      examID,
		studentID:   studentID,
		phase:       PhaseLoading,
		buffer:      newAnswerBuffer(),
		subscribers: make(map[int]func(Snapshot)),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
		log: log.With().
			Str("component", "session_controller").
			Str("exam_id", examID.String()).
			Int("student_id", studentID).
			Logger(),
	}
}

// Load fetches the exam and any existing submission and settles the initial
// phase: not-yet-open before the window, ready-to-start inside it, straight
// back into active when a started submission is resumable, submitted when
// the attempt was already sealed, expired when the window has passed. A
// started submission found after the deadline gets one forced finalize
// attempt. Timers start only for non-terminal phases.
func (c *Controller) Load(ctx context.Context) error {
	exam, err := c.gw.FetchExam(ctx, c.examID)
	if err != nil {
		return err
	}
	if exam.Modality == model.ModalityPhysical {
		return ErrExamNotOnline
	}

	var questions []model.Question
	if exam.Modality == model.ModalityOnline {
		questions, err = c.gw.FetchQuestions(ctx, c.examID)
		if err != nil {
			return &PersistError{Op: "fetch questions", Err: err}
		}
	}

	sub, err := c.gw.FetchSubmission(ctx, c.examID, c.studentID)
	if err != nil {
		return &PersistError{Op: "fetch submission", Err: err}
	}

	c.mu.Lock()
	c.exam = exam
	c.questions = questions
	c.sub = sub

	now := c.clock.Now()
	c.timer = computeTimer(now, exam.StartAt, exam.EndAt)

	switch {
	case sub != nil && sub.Sealed():
		c.phase = PhaseSubmitted
	case exam.OpensAfter(now):
		c.phase = PhaseNotYetOpen
	case exam.OpenAt(now):
		if sub != nil && sub.Status == model.SubmissionStarted {
			c.buffer.restore(sub)
			c.resumed = true
			c.phase = PhaseActive
		} else {
			c.phase = PhaseReadyToStart
		}
	default: // window closed
		if sub != nil && sub.Status == model.SubmissionStarted {
			// Deadline passed while the attempt was open elsewhere; force one
			// finalize attempt with whatever was persisted.
			c.buffer.restore(sub)
			c.finalizeLocked(ctx, true)
		} else {
			c.phase = PhaseExpired
		}
	}

	if !c.phase.Terminal() {
		c.startLoopLocked()
	}

	snap, fns := c.snapshotLocked()
	c.mu.Unlock()
	fanOut(snap, fns)

	c.log.Debug().Str("phase", string(snap.Phase)).Bool("resumed", snap.Resumed).Msg("Session loaded")
	return nil
}

// ConfirmStart begins the attempt. Valid only in the ready-to-start phase
// and only while the window is open. The submission record is created
// before the phase advances; if the write fails the phase does not change
// and the error is returned for the user to retry.
func (c *Controller) ConfirmStart(ctx context.Context) error {
	c.mu.Lock()

	switch c.phase {
	case PhaseReadyToStart:
		// proceed
	case PhaseSubmitted:
		c.mu.Unlock()
		return ErrAlreadySubmitted
	case PhaseNotYetOpen, PhaseExpired:
		c.mu.Unlock()
		return ErrWindowNotOpen
	default:
		c.mu.Unlock()
		return ErrInvalidPhase
	}

	now := c.clock.Now()
	if !c.exam.OpenAt(now) {
		if c.exam.ClosedAt(now) {
			c.phase = PhaseExpired
			c.stopTimersLocked()
		}
		snap, fns := c.snapshotLocked()
		c.mu.Unlock()
		fanOut(snap, fns)
		return ErrWindowNotOpen
	}

	sub, err := c.gw.CreateSubmission(ctx, c.examID, c.studentID, now)
	if err != nil {
		c.mu.Unlock()
		return &PersistError{Op: "create submission", Err: err}
	}

	if sub.Sealed() {
		// A concurrent session already finished this attempt.
		c.sub = sub
		c.phase = PhaseSubmitted
		c.stopTimersLocked()
		snap, fns := c.snapshotLocked()
		c.mu.Unlock()
		fanOut(snap, fns)
		return ErrAlreadySubmitted
	}

	c.sub = sub
	if len(sub.Answers) > 0 || sub.AnswerText != nil || len(sub.AnswerFiles) > 0 {
		c.buffer.restore(sub)
	}
	c.phase = PhaseActive
	c.timer = computeTimer(now, c.exam.StartAt, c.exam.EndAt)

	snap, fns := c.snapshotLocked()
	c.mu.Unlock()
	fanOut(snap, fns)

	c.log.Info().Msg("Attempt started")
	return nil
}

// SetAnswer records an answer in the in-memory buffer. Nothing is persisted
// until the next autosave tick or an explicit SaveProgress.
func (c *Controller) SetAnswer(questionID, value string) error {
	c.mu.Lock()
	if c.phase != PhaseActive {
		c.mu.Unlock()
		return ErrInvalidPhase
	}
	c.buffer.set(questionID, value)
	snap, fns := c.snapshotLocked()
	c.mu.Unlock()
	fanOut(snap, fns)
	return nil
}

// SetAnswerText replaces the free-text answer of a written exam.
func (c *Controller) SetAnswerText(text string) error {
	c.mu.Lock()
	if c.phase != PhaseActive {
		c.mu.Unlock()
		return ErrInvalidPhase
	}
	c.buffer.setText(text)
	snap, fns := c.snapshotLocked()
	c.mu.Unlock()
	fanOut(snap, fns)
	return nil
}

// AttachFile queues a local answer file for upload on submit. The cap is
// enforced here; excess files are rejected with ErrTooManyFiles.
func (c *Controller) AttachFile(f AnswerFile) error {
	c.mu.Lock()
	if c.phase != PhaseActive {
		c.mu.Unlock()
		return ErrInvalidPhase
	}
	err := c.buffer.attach(f, c.opts.MaxAnswerFiles)
	snap, fns := c.snapshotLocked()
	c.mu.Unlock()
	fanOut(snap, fns)
	return err
}

// SaveProgress persists the answer buffer immediately. Failures block
// nothing but are returned so the UI can prompt a retry.
func (c *Controller) SaveProgress(ctx context.Context) error {
	c.mu.Lock()
	if c.phase != PhaseActive {
		c.mu.Unlock()
		return ErrInvalidPhase
	}
	err := c.saveLocked(ctx)
	snap, fns := c.snapshotLocked()
	c.mu.Unlock()
	fanOut(snap, fns)
	return err
}

// Submit seals the attempt. Idempotent with respect to the auto-submit
// path: when the deadline tick already finalized the attempt, Submit
// observes the submitted phase and no-ops without touching the gateway.
// A PartialUploadError return means the submission itself succeeded but
// some answer files did not make it.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	if c.phase == PhaseSubmitted {
		c.mu.Unlock()
		return nil
	}
	if c.phase != PhaseActive {
		c.mu.Unlock()
		return ErrInvalidPhase
	}
	err := c.finalizeLocked(ctx, false)
	snap, fns := c.snapshotLocked()
	c.mu.Unlock()
	fanOut(snap, fns)
	return err
}

// Exit leaves the attempt without submitting. An active attempt gets one
// best-effort save; the submission stays started so a later Load resumes
// straight into the active phase. Every exit ends in a terminal phase: the
// timer loop cannot be restarted once stopped, so the instance must never
// be handed out again for a live attempt.
func (c *Controller) Exit(ctx context.Context) error {
	c.mu.Lock()
	switch c.phase {
	case PhaseActive:
		if err := c.saveLocked(ctx); err != nil && !errors.Is(err, ErrAlreadySubmitted) {
			c.log.Warn().Err(err).Msg("Best-effort save on exit failed")
		}
		if c.phase == PhaseActive { // saveLocked may have discovered a sealed record
			c.phase = PhaseInterrupted
		}
	case PhaseLoading, PhaseNotYetOpen, PhaseReadyToStart:
		// Nothing started yet, so there is nothing to save. Going
		// interrupted anyway makes the registry replace this instance on
		// the next load.
		c.phase = PhaseInterrupted
	}
	c.stopTimersLocked()
	snap, fns := c.snapshotLocked()
	c.mu.Unlock()
	fanOut(snap, fns)
	return nil
}

// Close releases timers without changing phase. Safe to call repeatedly;
// used on registry eviction and process shutdown.
func (c *Controller) Close() {
	c.mu.Lock()
	c.stopTimersLocked()
	c.mu.Unlock()
}

// Subscribe registers a callback invoked with a snapshot on every tick and
// transition. The returned function cancels the subscription.
func (c *Controller) Subscribe(fn func(Snapshot)) func() {
	c.mu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.subscribers, id)
		c.mu.Unlock()
	}
}

// Snapshot returns the current state of the attempt.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, _ := c.snapshotLocked()
	return snap
}

// Phase returns the current lifecycle phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Exam returns the loaded exam descriptor.
func (c *Controller) Exam() *model.Exam {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exam
}

// Questions returns the question set of a structured exam.
func (c *Controller) Questions() []model.Question {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.questions
}

// Submission returns the persisted attempt record, or nil before the
// attempt starts.
func (c *Controller) Submission() *model.Submission {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sub
}

// Answers returns a copy of the buffered answers and the free-text answer.
func (c *Controller) Answers() (map[string]string, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buffer.answersCopy(), c.buffer.text
}

// ─── Internal transitions ──────────────────────────────────────────────

// saveLocked flushes the buffer through the gateway. Caller holds mu.
func (c *Controller) saveLocked(ctx context.Context) error {
	upd := SubmissionUpdate{
		Answers:    c.buffer.answersCopy(),
		AnswerText: c.buffer.textPtr(),
	}
	sub, err := c.gw.UpdateSubmission(ctx, c.sub.ID, upd)
	if errors.Is(err, ErrAlreadySubmitted) {
		// Another session sealed the record; adopt reality.
		if sub != nil {
			c.sub = sub
		}
		c.phase = PhaseSubmitted
		c.stopTimersLocked()
		return ErrAlreadySubmitted
	}
	if err != nil {
		return &PersistError{Op: "save answers", Err: err}
	}
	if sub != nil {
		c.sub = sub
	}
	now := c.clock.Now()
	c.lastSavedAt = &now
	c.buffer.dirty = false
	return nil
}

// finalizeLocked uploads pending files and seals the submission. Caller
// holds mu. The auto flag marks the deadline-triggered path: it gets
// exactly one attempt, falling back to the expired phase on failure (the
// deadline sweep worker is the backstop there).
func (c *Controller) finalizeLocked(ctx context.Context, auto bool) error {
	if c.submitting {
		return nil
	}
	c.submitting = true

	// Upload whatever we can; failures never block the submission itself.
	var failed map[string]error
	var stillPending []AnswerFile
	for _, f := range c.buffer.pending {
		url, err := c.gw.UploadAnswerFile(ctx, c.examID, c.studentID, f)
		if err != nil {
			if failed == nil {
				failed = make(map[string]error)
			}
			failed[f.Name] = err
			stillPending = append(stillPending, f)
			c.log.Warn().Err(err).Str("file", f.Name).Msg("Answer file upload failed")
			continue
		}
		c.buffer.uploaded = append(c.buffer.uploaded, url)
	}
	c.buffer.pending = stillPending

	now := c.clock.Now()
	status := model.SubmissionSubmitted
	upd := SubmissionUpdate{
		Answers:     c.buffer.answersCopy(),
		AnswerText:  c.buffer.textPtr(),
		AnswerFiles: c.buffer.uploadedCopy(),
		Status:      &status,
		SubmittedAt: &now,
	}

	sub, err := c.gw.UpdateSubmission(ctx, c.sub.ID, upd)
	switch {
	case errors.Is(err, ErrAlreadySubmitted):
		// Lost the race against a concurrent finalize; that is not an error.
		if sub != nil {
			c.sub = sub
		}
		c.phase = PhaseSubmitted
		c.stopTimersLocked()
		return nil
	case err != nil:
		c.submitting = false
		if auto {
			c.log.Error().Err(err).Msg("Deadline auto-submit failed")
			c.phase = PhaseExpired
			c.stopTimersLocked()
			return &PersistError{Op: "finalize submission", Err: err}
		}
		return &PersistError{Op: "finalize submission", Err: err}
	}

	c.sub = sub
	c.phase = PhaseSubmitted
	c.stopTimersLocked()
	c.log.Info().Bool("auto", auto).Int("failed_uploads", len(failed)).Msg("Attempt submitted")

	if len(failed) > 0 {
		return &PartialUploadError{Failed: failed}
	}
	return nil
}

// ─── Timer loop ────────────────────────────────────────────────────────

// startLoopLocked launches the single goroutine that drives the 1 Hz timer
// tick and the autosave tick. Caller holds mu.
func (c *Controller) startLoopLocked() {
	if c.loopStarted {
		return
	}
	c.loopStarted = true
	go c.run()
}

func (c *Controller) run() {
	defer close(c.done)

	tick := time.NewTicker(c.opts.TickInterval)
	defer tick.Stop()
	save := time.NewTicker(c.opts.AutosaveInterval)
	defer save.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-tick.C:
			c.handleTick(context.Background())
		case <-save.C:
			c.handleAutosaveTick(context.Background())
		}
	}
}

// handleTick recomputes the derived timer state and applies time-driven
// transitions: window opening, window expiry, and the deadline auto-submit.
func (c *Controller) handleTick(ctx context.Context) {
	c.mu.Lock()
	if c.phase.Terminal() || c.phase == PhaseLoading {
		c.mu.Unlock()
		return
	}

	c.timer = computeTimer(c.clock.Now(), c.exam.StartAt, c.exam.EndAt)

	switch c.phase {
	case PhaseNotYetOpen:
		if c.timer.Started {
			c.phase = PhaseReadyToStart
		}
	case PhaseReadyToStart:
		if c.timer.Ended {
			c.phase = PhaseExpired
			c.stopTimersLocked()
		}
	case PhaseActive:
		if c.timer.TimeUp {
			if err := c.finalizeLocked(ctx, true); err != nil {
				var pe *PartialUploadError
				if !errors.As(err, &pe) {
					c.log.Warn().Err(err).Msg("Auto-submit did not finalize")
				}
			}
		}
	}

	snap, fns := c.snapshotLocked()
	c.mu.Unlock()
	fanOut(snap, fns)
}

// handleAutosaveTick persists the buffer if it changed since the last save.
// Failures are logged and retried on the next tick without interrupting
// the attempt.
func (c *Controller) handleAutosaveTick(ctx context.Context) {
	c.mu.Lock()
	if c.phase != PhaseActive || !c.buffer.dirty {
		c.mu.Unlock()
		return
	}
	if err := c.saveLocked(ctx); err != nil && !errors.Is(err, ErrAlreadySubmitted) {
		c.log.Warn().Err(err).Msg("Autosave failed, retrying next tick")
	}
	snap, fns := c.snapshotLocked()
	c.mu.Unlock()
	fanOut(snap, fns)
}

// stopTimersLocked shuts the timer loop down. Idempotent; caller holds mu.
func (c *Controller) stopTimersLocked() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// snapshotLocked builds a snapshot and copies the subscriber list so the
// fan-out can run outside the lock. Caller holds mu.
func (c *Controller) snapshotLocked() (Snapshot, []func(Snapshot)) {
	snap := Snapshot{
		ExamID:       c.examID,
		StudentID:    c.studentID,
		Phase:        c.phase,
		Timer:        c.timer,
		Resumed:      c.resumed,
		Dirty:        c.buffer.dirty,
		LastSavedAt:  c.lastSavedAt,
		PendingFiles: len(c.buffer.pending),
		Uploaded:     c.buffer.uploadedCopy(),
	}
	fns := make([]func(Snapshot), 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		fns = append(fns, fn)
	}
	return snap, fns
}

func fanOut(snap Snapshot, fns []func(Snapshot)) {
	for _, fn := range fns {
		fn(snap)
	}
}
