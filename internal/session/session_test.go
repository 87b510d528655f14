package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencampus/portal-backend/internal/model"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

// manualClock lets tests walk through the exam window deterministically.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock(now time.Time) *manualClock {
	return &manualClock{now: now}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *manualClock) set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func TestComputeTimerBeforeWindow(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)
	now := start.Add(-10 * time.Minute)

	timer := computeTimer(now, start, end)

	assert.False(t, timer.Started)
	assert.False(t, timer.Ended)
	assert.False(t, timer.TimeUp)
	assert.Equal(t, 10*time.Minute, timer.UntilStart)
	assert.Equal(t, 2*time.Hour, timer.Remaining)
	assert.Equal(t, time.Duration(0), timer.Elapsed)
}

func TestComputeTimerDuringWindow(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)
	now := start.Add(45 * time.Minute)

	timer := computeTimer(now, start, end)

	assert.True(t, timer.Started)
	assert.False(t, timer.Ended)
	assert.False(t, timer.TimeUp)
	assert.Equal(t, time.Duration(0), timer.UntilStart)
	assert.Equal(t, 45*time.Minute, timer.Elapsed)
	assert.Equal(t, 75*time.Minute, timer.Remaining)
}

func TestComputeTimerAfterWindow(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)
	now := end.Add(time.Second)

	timer := computeTimer(now, start, end)

	assert.True(t, timer.Started)
	assert.True(t, timer.Ended)
	assert.True(t, timer.TimeUp)
	assert.Equal(t, time.Duration(0), timer.Remaining)
}

func TestComputeTimerExactBoundaries(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	atStart := computeTimer(start, start, end)
	assert.True(t, atStart.Started)
	assert.False(t, atStart.Ended)
	assert.Equal(t, time.Hour, atStart.Remaining)

	// The window is half-open: end itself is already outside.
	atEnd := computeTimer(end, start, end)
	assert.True(t, atEnd.Ended)
	assert.True(t, atEnd.TimeUp)
}

// ─── Gateway fake ──────────────────────────────────────────────────────

type fakeGateway struct {
	mu        sync.Mutex
	exam      *model.Exam
	sub       *model.Submission
	questions []model.Question

	failCreate   error
	failSave     error
	failFinalize error
	failUpload   map[string]error

	createCalls   int
	saveCalls     int
	finalizeCalls int
	uploadCalls   int
}

func (g *fakeGateway) FetchExam(ctx context.Context, examID uuid.UUID) (*model.Exam, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.exam == nil || g.exam.ID != examID {
		return nil, ErrExamNotFound
	}
	e := *g.exam
	return &e, nil
}

func (g *fakeGateway) FetchSubmission(ctx context.Context, examID uuid.UUID, studentID int) (*model.Submission, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sub == nil {
		return nil, nil
	}
	return g.copySubLocked(), nil
}

func (g *fakeGateway) CreateSubmission(ctx context.Context, examID uuid.UUID, studentID int, startedAt time.Time) (*model.Submission, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createCalls++
	if g.failCreate != nil {
		return nil, g.failCreate
	}
	if g.sub != nil {
		return g.copySubLocked(), nil
	}
	g.sub = &model.Submission{
		ID:        uuid.New(),
		ExamID:    examID,
		StudentID: studentID,
		Status:    model.SubmissionStarted,
		StartedAt: &startedAt,
		Answers:   make(map[string]string),
	}
	return g.copySubLocked(), nil
}

func (g *fakeGateway) UpdateSubmission(ctx context.Context, submissionID uuid.UUID, upd SubmissionUpdate) (*model.Submission, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	sealing := upd.Status != nil && *upd.Status == model.SubmissionSubmitted
	if sealing {
		g.finalizeCalls++
		if g.failFinalize != nil {
			return nil, g.failFinalize
		}
	} else {
		g.saveCalls++
		if g.failSave != nil {
			return nil, g.failSave
		}
	}

	if g.sub.Sealed() {
		return g.copySubLocked(), ErrAlreadySubmitted
	}

	if upd.Answers != nil {
		g.sub.Answers = upd.Answers
	}
	if upd.AnswerText != nil {
		g.sub.AnswerText = upd.AnswerText
	}
	if upd.AnswerFiles != nil {
		g.sub.AnswerFiles = upd.AnswerFiles
	}
	if sealing {
		g.sub.Status = model.SubmissionSubmitted
		g.sub.SubmittedAt = upd.SubmittedAt
	}
	return g.copySubLocked(), nil
}

func (g *fakeGateway) UploadAnswerFile(ctx context.Context, examID uuid.UUID, studentID int, file AnswerFile) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.uploadCalls++
	if err, ok := g.failUpload[file.Name]; ok {
		return "", err
	}
	return "https://files.test/" + file.Name, nil
}

func (g *fakeGateway) FetchQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]model.Question(nil), g.questions...), nil
}

func (g *fakeGateway) copySubLocked() *model.Submission {
	s := *g.sub
	s.Answers = make(map[string]string, len(g.sub.Answers))
	for k, v := range g.sub.Answers {
		s.Answers[k] = v
	}
	s.AnswerFiles = append([]string(nil), g.sub.AnswerFiles...)
	return &s
}

func (g *fakeGateway) submission() *model.Submission {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sub == nil {
		return nil
	}
	return g.copySubLocked()
}

func (g *fakeGateway) sealExternally() {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := time.Now()
	g.sub.Status = model.SubmissionSubmitted
	g.sub.SubmittedAt = &now
}

// ─── Test fixtures ─────────────────────────────────────────────────────

const testStudentID = 42

func newSubID() uuid.UUID { return uuid.New() }

// inertOptions keeps the background loop from racing tests; transitions are
// driven by calling handleTick directly.
func inertOptions() Options {
	return Options{
		TickInterval:     time.Hour,
		AutosaveInterval: time.Hour,
		MaxAnswerFiles:   5,
	}
}

func onlineExam(start, end time.Time) *model.Exam {
	return &model.Exam{
		ID:              uuid.New(),
		Title:           "Distributed Systems Final",
		CourseCode:      "CS4320",
		Modality:        model.ModalityOnline,
		StartAt:         start,
		EndAt:           end,
		DurationMinutes: int(end.Sub(start) / time.Minute),
		TotalMarks:      100,
		Status:          model.ExamStatusPublished,
	}
}

func writtenExam(start, end time.Time) *model.Exam {
	e := onlineExam(start, end)
	e.Modality = model.ModalityWrittenOnline
	return e
}

func newTestController(t *testing.T, gw *fakeGateway, clock Clock) *Controller {
	t.Helper()
	c := NewController(gw, clock, testLogger(), inertOptions(), gw.exam.ID, testStudentID)
	t.Cleanup(c.Close)
	return c
}

func mustLoad(t *testing.T, gw *fakeGateway, clock Clock) *Controller {
	t.Helper()
	c := newTestController(t, gw, clock)
	require.NoError(t, c.Load(context.Background()))
	return c
}

func startActive(t *testing.T, gw *fakeGateway, clock Clock) *Controller {
	t.Helper()
	c := mustLoad(t, gw, clock)
	require.NoError(t, c.ConfirmStart(context.Background()))
	require.Equal(t, PhaseActive, c.Phase())
	return c
}
