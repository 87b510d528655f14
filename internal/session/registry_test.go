package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencampus/portal-backend/internal/model"
)

func newTestRegistry(gw *fakeGateway, clock Clock) *Registry {
	return NewRegistry(gw, clock, testLogger(), inertOptions())
}

func TestRegistryReusesLiveController(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	clock := newManualClock(start.Add(time.Minute))
	gw := &fakeGateway{exam: onlineExam(start, start.Add(time.Hour))}
	r := newTestRegistry(gw, clock)
	defer r.CloseAll()

	c1, err := r.Load(context.Background(), gw.exam.ID, testStudentID)
	require.NoError(t, err)

	c2, err := r.Load(context.Background(), gw.exam.ID, testStudentID)
	require.NoError(t, err)

	assert.Same(t, c1, c2)
}

func TestRegistryEvictsOnSubmit(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	clock := newManualClock(start.Add(time.Minute))
	gw := &fakeGateway{exam: onlineExam(start, start.Add(time.Hour))}
	r := newTestRegistry(gw, clock)
	defer r.CloseAll()

	c, err := r.Load(context.Background(), gw.exam.ID, testStudentID)
	require.NoError(t, err)
	require.NoError(t, c.ConfirmStart(context.Background()))

	require.NoError(t, c.Submit(context.Background()))

	_, live := r.Get(gw.exam.ID, testStudentID)
	assert.False(t, live)
}

func TestRegistryReplacesTerminalController(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	clock := newManualClock(start.Add(time.Minute))
	gw := &fakeGateway{exam: onlineExam(start, start.Add(time.Hour))}
	r := newTestRegistry(gw, clock)
	defer r.CloseAll()

	c1, err := r.Load(context.Background(), gw.exam.ID, testStudentID)
	require.NoError(t, err)
	require.NoError(t, c1.ConfirmStart(context.Background()))
	require.NoError(t, c1.Exit(context.Background()))
	require.Equal(t, PhaseInterrupted, c1.Phase())

	// The interrupted attempt resumes through a fresh controller.
	c2, err := r.Load(context.Background(), gw.exam.ID, testStudentID)
	require.NoError(t, err)
	assert.NotSame(t, c1, c2)
	assert.Equal(t, PhaseActive, c2.Phase())
}

func TestRegistryReplacesControllerExitedBeforeStart(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	clock := newManualClock(start.Add(time.Minute))
	gw := &fakeGateway{exam: onlineExam(start, end)}
	r := newTestRegistry(gw, clock)
	defer r.CloseAll()

	c1, err := r.Load(context.Background(), gw.exam.ID, testStudentID)
	require.NoError(t, err)
	require.Equal(t, PhaseReadyToStart, c1.Phase())

	require.NoError(t, c1.Exit(context.Background()))
	_, live := r.Get(gw.exam.ID, testStudentID)
	require.False(t, live)

	// The next load hands out a fresh controller whose deadline handling
	// still works end to end.
	c2, err := r.Load(context.Background(), gw.exam.ID, testStudentID)
	require.NoError(t, err)
	require.NotSame(t, c1, c2)
	require.NoError(t, c2.ConfirmStart(context.Background()))
	require.Equal(t, PhaseActive, c2.Phase())

	clock.set(end.Add(time.Second))
	c2.handleTick(context.Background())

	assert.Equal(t, PhaseSubmitted, c2.Phase())
	assert.Equal(t, 1, gw.finalizeCalls)
	assert.Equal(t, model.SubmissionSubmitted, gw.submission().Status)
}

func TestRegistryLoadFailureLeavesNothingBehind(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	clock := newManualClock(start.Add(time.Minute))
	exam := onlineExam(start, start.Add(time.Hour))
	exam.Modality = model.ModalityPhysical
	gw := &fakeGateway{exam: exam}
	r := newTestRegistry(gw, clock)
	defer r.CloseAll()

	_, err := r.Load(context.Background(), exam.ID, testStudentID)
	require.ErrorIs(t, err, ErrExamNotOnline)

	_, live := r.Get(exam.ID, testStudentID)
	assert.False(t, live)
}

func TestRegistryIsolatesAttempts(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	clock := newManualClock(start.Add(time.Minute))
	gw := &fakeGateway{exam: onlineExam(start, start.Add(time.Hour))}
	r := newTestRegistry(gw, clock)
	defer r.CloseAll()

	c1, err := r.Load(context.Background(), gw.exam.ID, testStudentID)
	require.NoError(t, err)

	c2, err := r.Load(context.Background(), gw.exam.ID, testStudentID+1)
	require.NoError(t, err)

	assert.NotSame(t, c1, c2)
}
