package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencampus/portal-backend/internal/model"
)

func TestLoadBeforeWindow(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	clock := newManualClock(start.Add(-30 * time.Minute))
	gw := &fakeGateway{exam: onlineExam(start, start.Add(2*time.Hour))}

	c := mustLoad(t, gw, clock)

	assert.Equal(t, PhaseNotYetOpen, c.Phase())
	snap := c.Snapshot()
	assert.Equal(t, 30*time.Minute, snap.Timer.UntilStart)
	assert.False(t, snap.Resumed)
}

func TestLoadInsideWindowFreshAttempt(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	clock := newManualClock(start.Add(5 * time.Minute))
	gw := &fakeGateway{exam: onlineExam(start, start.Add(2*time.Hour))}

	c := mustLoad(t, gw, clock)

	assert.Equal(t, PhaseReadyToStart, c.Phase())
	assert.Nil(t, c.Submission())
}

func TestLoadResumesStartedAttempt(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	clock := newManualClock(start.Add(20 * time.Minute))
	exam := onlineExam(start, start.Add(2*time.Hour))
	startedAt := start.Add(time.Minute)
	text := "draft essay"
	gw := &fakeGateway{
		exam: exam,
		sub: &model.Submission{
			ID:         newSubID(),
			ExamID:     exam.ID,
			StudentID:  testStudentID,
			Status:     model.SubmissionStarted,
			StartedAt:  &startedAt,
			Answers:    map[string]string{"q1": "B", "q2": "D"},
			AnswerText: &text,
		},
	}

	c := mustLoad(t, gw, clock)

	assert.Equal(t, PhaseActive, c.Phase())
	snap := c.Snapshot()
	assert.True(t, snap.Resumed)

	answers, gotText := c.Answers()
	assert.Equal(t, map[string]string{"q1": "B", "q2": "D"}, answers)
	assert.Equal(t, "draft essay", gotText)
}

func TestLoadSealedAttempt(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	clock := newManualClock(start.Add(30 * time.Minute))
	exam := onlineExam(start, start.Add(2*time.Hour))
	submittedAt := start.Add(25 * time.Minute)
	gw := &fakeGateway{
		exam: exam,
		sub: &model.Submission{
			ID:          newSubID(),
			ExamID:      exam.ID,
			StudentID:   testStudentID,
			Status:      model.SubmissionSubmitted,
			SubmittedAt: &submittedAt,
			Answers:     map[string]string{"q1": "A"},
		},
	}

	c := mustLoad(t, gw, clock)

	assert.Equal(t, PhaseSubmitted, c.Phase())
	// Sealed attempts must not re-submit.
	assert.NoError(t, c.Submit(context.Background()))
	assert.Zero(t, gw.finalizeCalls)
}

func TestLoadAfterDeadlineFinalizesStartedAttempt(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	clock := newManualClock(end.Add(10 * time.Minute))
	exam := onlineExam(start, end)
	startedAt := start.Add(time.Minute)
	gw := &fakeGateway{
		exam: exam,
		sub: &model.Submission{
			ID:        newSubID(),
			ExamID:    exam.ID,
			StudentID: testStudentID,
			Status:    model.SubmissionStarted,
			StartedAt: &startedAt,
			Answers:   map[string]string{"q1": "C"},
		},
	}

	c := mustLoad(t, gw, clock)

	assert.Equal(t, PhaseSubmitted, c.Phase())
	sealed := gw.submission()
	assert.Equal(t, model.SubmissionSubmitted, sealed.Status)
	assert.Equal(t, "C", sealed.Answers["q1"])
}

func TestLoadExpiredWithoutAttempt(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	clock := newManualClock(end.Add(time.Minute))
	gw := &fakeGateway{exam: onlineExam(start, end)}

	c := mustLoad(t, gw, clock)

	assert.Equal(t, PhaseExpired, c.Phase())
	assert.ErrorIs(t, c.ConfirmStart(context.Background()), ErrWindowNotOpen)
}

func TestLoadPhysicalExamRejected(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	clock := newManualClock(start)
	exam := onlineExam(start, start.Add(time.Hour))
	exam.Modality = model.ModalityPhysical
	gw := &fakeGateway{exam: exam}

	c := newTestController(t, gw, clock)
	assert.ErrorIs(t, c.Load(context.Background()), ErrExamNotOnline)
}

func TestConfirmStartBeforeWindow(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	clock := newManualClock(start.Add(-time.Minute))
	gw := &fakeGateway{exam: onlineExam(start, start.Add(time.Hour))}

	c := mustLoad(t, gw, clock)

	assert.ErrorIs(t, c.ConfirmStart(context.Background()), ErrWindowNotOpen)
	assert.Zero(t, gw.createCalls)
}

func TestConfirmStartAfterWindowClosedUnderneath(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	clock := newManualClock(start.Add(59 * time.Minute))
	gw := &fakeGateway{exam: onlineExam(start, end)}

	c := mustLoad(t, gw, clock)
	require.Equal(t, PhaseReadyToStart, c.Phase())

	// The deadline passes while the student stares at the start button.
	clock.set(end.Add(time.Second))

	assert.ErrorIs(t, c.ConfirmStart(context.Background()), ErrWindowNotOpen)
	assert.Equal(t, PhaseExpired, c.Phase())
	assert.Zero(t, gw.createCalls)
}

func TestConfirmStartPersistFailureKeepsPhase(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	clock := newManualClock(start.Add(time.Minute))
	gw := &fakeGateway{exam: onlineExam(start, start.Add(time.Hour))}

	c := mustLoad(t, gw, clock)

	gw.mu.Lock()
	gw.failCreate = errors.New("connection refused")
	gw.mu.Unlock()

	err := c.ConfirmStart(context.Background())
	var pe *PersistError
	assert.ErrorAs(t, err, &pe)
	assert.Equal(t, PhaseReadyToStart, c.Phase())

	// Retry succeeds once the backend recovers.
	gw.mu.Lock()
	gw.failCreate = nil
	gw.mu.Unlock()

	assert.NoError(t, c.ConfirmStart(context.Background()))
	assert.Equal(t, PhaseActive, c.Phase())
}

func TestConfirmStartIdempotentCreateRestoresAnswers(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	clock := newManualClock(start.Add(time.Minute))
	exam := onlineExam(start, start.Add(time.Hour))
	startedAt := start
	gw := &fakeGateway{
		exam: exam,
		sub: &model.Submission{
			ID:        newSubID(),
			ExamID:    exam.ID,
			StudentID: testStudentID,
			Status:    model.SubmissionStarted,
			StartedAt: &startedAt,
			Answers:   map[string]string{"q3": "A"},
		},
	}

	// A second device lands on ready-to-start because its Load raced the
	// first device's start; ConfirmStart must adopt the existing attempt.
	c := newTestController(t, gw, clock)
	c.mu.Lock()
	c.exam = exam
	c.phase = PhaseReadyToStart
	c.timer = computeTimer(clock.Now(), exam.StartAt, exam.EndAt)
	c.mu.Unlock()

	require.NoError(t, c.ConfirmStart(context.Background()))
	assert.Equal(t, PhaseActive, c.Phase())

	answers, _ := c.Answers()
	assert.Equal(t, "A", answers["q3"])
}

func TestAnswersBufferUntilSaved(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	clock := newManualClock(start.Add(time.Minute))
	gw := &fakeGateway{exam: onlineExam(start, start.Add(time.Hour))}

	c := startActive(t, gw, clock)

	require.NoError(t, c.SetAnswer("q1", "B"))
	require.NoError(t, c.SetAnswer("q2", "D"))
	assert.True(t, c.Snapshot().Dirty)
	assert.Empty(t, gw.submission().Answers)

	require.NoError(t, c.SaveProgress(context.Background()))

	snap := c.Snapshot()
	assert.False(t, snap.Dirty)
	require.NotNil(t, snap.LastSavedAt)
	assert.Equal(t, map[string]string{"q1": "B", "q2": "D"}, gw.submission().Answers)
}

func TestAutosaveTickSkipsCleanBuffer(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	clock := newManualClock(start.Add(time.Minute))
	gw := &fakeGateway{exam: onlineExam(start, start.Add(time.Hour))}

	c := startActive(t, gw, clock)

	c.handleAutosaveTick(context.Background())
	assert.Zero(t, gw.saveCalls)

	require.NoError(t, c.SetAnswer("q1", "A"))
	c.handleAutosaveTick(context.Background())
	assert.Equal(t, 1, gw.saveCalls)
	assert.Equal(t, "A", gw.submission().Answers["q1"])
}

func TestAutosaveFailureKeepsAttemptRunning(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	clock := newManualClock(start.Add(time.Minute))
	gw := &fakeGateway{exam: onlineExam(start, start.Add(time.Hour))}

	c := startActive(t, gw, clock)
	require.NoError(t, c.SetAnswer("q1", "A"))

	gw.mu.Lock()
	gw.failSave = errors.New("redis down")
	gw.mu.Unlock()

	c.handleAutosaveTick(context.Background())
	assert.Equal(t, PhaseActive, c.Phase())
	assert.True(t, c.Snapshot().Dirty)

	gw.mu.Lock()
	gw.failSave = nil
	gw.mu.Unlock()

	c.handleAutosaveTick(context.Background())
	assert.False(t, c.Snapshot().Dirty)
}

func TestSubmitSealsAttempt(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	clock := newManualClock(start.Add(time.Minute))
	gw := &fakeGateway{exam: writtenExam(start, start.Add(time.Hour))}

	c := startActive(t, gw, clock)
	require.NoError(t, c.SetAnswerText("final essay text"))

	require.NoError(t, c.Submit(context.Background()))

	assert.Equal(t, PhaseSubmitted, c.Phase())
	sealed := gw.submission()
	assert.Equal(t, model.SubmissionSubmitted, sealed.Status)
	require.NotNil(t, sealed.AnswerText)
	assert.Equal(t, "final essay text", *sealed.AnswerText)
	require.NotNil(t, sealed.SubmittedAt)
}

func TestSubmitIdempotent(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	clock := newManualClock(start.Add(time.Minute))
	gw := &fakeGateway{exam: onlineExam(start, start.Add(time.Hour))}

	c := startActive(t, gw, clock)

	require.NoError(t, c.Submit(context.Background()))
	require.NoError(t, c.Submit(context.Background()))
	require.NoError(t, c.Submit(context.Background()))

	assert.Equal(t, 1, gw.finalizeCalls)
}

func TestAutoSubmitOnDeadline(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	clock := newManualClock(start.Add(time.Minute))
	gw := &fakeGateway{exam: onlineExam(start, end)}

	c := startActive(t, gw, clock)
	require.NoError(t, c.SetAnswer("q1", "B"))

	clock.set(end.Add(time.Second))
	c.handleTick(context.Background())

	assert.Equal(t, PhaseSubmitted, c.Phase())
	assert.Equal(t, 1, gw.finalizeCalls)
	sealed := gw.submission()
	assert.Equal(t, model.SubmissionSubmitted, sealed.Status)
	assert.Equal(t, "B", sealed.Answers["q1"])
}

func TestManualSubmitAfterAutoSubmitIsNoOp(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	clock := newManualClock(start.Add(time.Minute))
	gw := &fakeGateway{exam: onlineExam(start, end)}

	c := startActive(t, gw, clock)

	clock.set(end.Add(time.Second))
	c.handleTick(context.Background())
	require.Equal(t, PhaseSubmitted, c.Phase())

	// The student's submit click lands a moment after the deadline fired.
	assert.NoError(t, c.Submit(context.Background()))
	assert.Equal(t, 1, gw.finalizeCalls)
}

func TestRepeatedDeadlineTicksFinalizeOnce(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	clock := newManualClock(start.Add(time.Minute))
	gw := &fakeGateway{exam: onlineExam(start, end)}

	c := startActive(t, gw, clock)

	clock.set(end.Add(time.Second))
	c.handleTick(context.Background())
	c.handleTick(context.Background())
	c.handleTick(context.Background())

	assert.Equal(t, 1, gw.finalizeCalls)
}

func TestConcurrentSealDiscoveredOnSave(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	clock := newManualClock(start.Add(time.Minute))
	gw := &fakeGateway{exam: onlineExam(start, start.Add(time.Hour))}

	c := startActive(t, gw, clock)
	require.NoError(t, c.SetAnswer("q1", "A"))

	// Another session (or the deadline sweep) seals the record first.
	gw.sealExternally()

	assert.ErrorIs(t, c.SaveProgress(context.Background()), ErrAlreadySubmitted)
	assert.Equal(t, PhaseSubmitted, c.Phase())
}

func TestConcurrentSealDiscoveredOnSubmit(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	clock := newManualClock(start.Add(time.Minute))
	gw := &fakeGateway{exam: onlineExam(start, start.Add(time.Hour))}

	c := startActive(t, gw, clock)
	gw.sealExternally()

	// Losing the finalize race is not an error for the student.
	assert.NoError(t, c.Submit(context.Background()))
	assert.Equal(t, PhaseSubmitted, c.Phase())
}

func TestSubmitPersistFailureAllowsRetry(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	clock := newManualClock(start.Add(time.Minute))
	gw := &fakeGateway{exam: onlineExam(start, start.Add(time.Hour))}

	c := startActive(t, gw, clock)

	gw.mu.Lock()
	gw.failFinalize = errors.New("database down")
	gw.mu.Unlock()

	err := c.Submit(context.Background())
	var pe *PersistError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, PhaseActive, c.Phase())

	gw.mu.Lock()
	gw.failFinalize = nil
	gw.mu.Unlock()

	assert.NoError(t, c.Submit(context.Background()))
	assert.Equal(t, PhaseSubmitted, c.Phase())
}

func TestAttachFileCap(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	clock := newManualClock(start.Add(time.Minute))
	gw := &fakeGateway{exam: writtenExam(start, start.Add(time.Hour))}

	c := startActive(t, gw, clock)

	for i := 0; i < 5; i++ {
		require.NoError(t, c.AttachFile(AnswerFile{
			Name: string(rune('a'+i)) + ".pdf", ContentType: "application/pdf",
		}))
	}
	assert.ErrorIs(t, c.AttachFile(AnswerFile{Name: "f.pdf"}), ErrTooManyFiles)
	assert.Equal(t, 5, c.Snapshot().PendingFiles)
}

func TestSubmitWithPartialUpload(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	clock := newManualClock(start.Add(time.Minute))
	gw := &fakeGateway{
		exam:       writtenExam(start, start.Add(time.Hour)),
		failUpload: map[string]error{"broken.pdf": errors.New("network reset")},
	}

	c := startActive(t, gw, clock)
	require.NoError(t, c.AttachFile(AnswerFile{Name: "good.pdf"}))
	require.NoError(t, c.AttachFile(AnswerFile{Name: "broken.pdf"}))

	err := c.Submit(context.Background())

	var pue *PartialUploadError
	require.ErrorAs(t, err, &pue)
	assert.Contains(t, pue.Failed, "broken.pdf")

	// The submission is sealed regardless, with the files that made it.
	assert.Equal(t, PhaseSubmitted, c.Phase())
	sealed := gw.submission()
	assert.Equal(t, model.SubmissionSubmitted, sealed.Status)
	assert.Equal(t, []string{"https://files.test/good.pdf"}, sealed.AnswerFiles)
}

func TestExitKeepsAttemptResumable(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	clock := newManualClock(start.Add(time.Minute))
	gw := &fakeGateway{exam: onlineExam(start, start.Add(time.Hour))}

	c := startActive(t, gw, clock)
	require.NoError(t, c.SetAnswer("q1", "D"))

	require.NoError(t, c.Exit(context.Background()))
	assert.Equal(t, PhaseInterrupted, c.Phase())

	// The record stays started with the exit-time save applied.
	stored := gw.submission()
	assert.Equal(t, model.SubmissionStarted, stored.Status)
	assert.Equal(t, "D", stored.Answers["q1"])

	// A fresh controller resumes straight into the active phase.
	clock.advance(5 * time.Minute)
	c2 := mustLoad(t, gw, clock)
	assert.Equal(t, PhaseActive, c2.Phase())
	assert.True(t, c2.Snapshot().Resumed)
	answers, _ := c2.Answers()
	assert.Equal(t, "D", answers["q1"])
}

func TestExitBeforeStartEndsSession(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	clock := newManualClock(start.Add(time.Minute))
	gw := &fakeGateway{exam: onlineExam(start, start.Add(time.Hour))}

	c := mustLoad(t, gw, clock)
	require.Equal(t, PhaseReadyToStart, c.Phase())

	// Leaving without starting must not park the instance in a phase the
	// timer loop can never serve again.
	require.NoError(t, c.Exit(context.Background()))
	assert.Equal(t, PhaseInterrupted, c.Phase())

	require.ErrorIs(t, c.ConfirmStart(context.Background()), ErrInvalidPhase)
	assert.Zero(t, gw.createCalls)
}

func TestExitBeforeWindowOpensEndsSession(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	clock := newManualClock(start.Add(-30 * time.Minute))
	gw := &fakeGateway{exam: onlineExam(start, start.Add(time.Hour))}

	c := mustLoad(t, gw, clock)
	require.Equal(t, PhaseNotYetOpen, c.Phase())

	require.NoError(t, c.Exit(context.Background()))
	assert.Equal(t, PhaseInterrupted, c.Phase())
	assert.Nil(t, gw.submission())
}

func TestTickTransitionsWindowOpening(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	clock := newManualClock(start.Add(-time.Second))
	gw := &fakeGateway{exam: onlineExam(start, end)}

	c := mustLoad(t, gw, clock)
	require.Equal(t, PhaseNotYetOpen, c.Phase())

	clock.set(start)
	c.handleTick(context.Background())
	assert.Equal(t, PhaseReadyToStart, c.Phase())

	// Never started; the window closing expires the attempt.
	clock.set(end)
	c.handleTick(context.Background())
	assert.Equal(t, PhaseExpired, c.Phase())
}

func TestActionsRejectedOutsideActivePhase(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	clock := newManualClock(start.Add(time.Minute))
	gw := &fakeGateway{exam: onlineExam(start, start.Add(time.Hour))}

	c := mustLoad(t, gw, clock)
	require.Equal(t, PhaseReadyToStart, c.Phase())

	assert.ErrorIs(t, c.SetAnswer("q1", "A"), ErrInvalidPhase)
	assert.ErrorIs(t, c.SetAnswerText("x"), ErrInvalidPhase)
	assert.ErrorIs(t, c.AttachFile(AnswerFile{Name: "a.pdf"}), ErrInvalidPhase)
	assert.ErrorIs(t, c.SaveProgress(context.Background()), ErrInvalidPhase)
	assert.ErrorIs(t, c.Submit(context.Background()), ErrInvalidPhase)
}

func TestSubscribersSeePhaseTransitions(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	clock := newManualClock(start.Add(time.Minute))
	gw := &fakeGateway{exam: onlineExam(start, end)}

	c := mustLoad(t, gw, clock)

	var phases []Phase
	cancel := c.Subscribe(func(s Snapshot) {
		phases = append(phases, s.Phase)
	})
	defer cancel()

	require.NoError(t, c.ConfirmStart(context.Background()))
	clock.set(end.Add(time.Second))
	c.handleTick(context.Background())

	require.NotEmpty(t, phases)
	assert.Equal(t, PhaseActive, phases[0])
	assert.Equal(t, PhaseSubmitted, phases[len(phases)-1])
}
