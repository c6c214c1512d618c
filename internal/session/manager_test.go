// internal/session/manager_test.go
package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stderrors "trip-report-bot/internal/common/errors"
	"trip-report-bot/internal/common/logger"
	"trip-report-bot/internal/filter"
)

// scriptedExtractor returns pre-programmed candidates in order and
// records the partial filter passed with each call.
type scriptedExtractor struct {
	replies  []filter.Candidate
	errs     []error
	calls    int
	partials []filter.Filter
	gate     chan struct{}
}

func (s *scriptedExtractor) Extract(ctx context.Context, text string, partial filter.Filter) (filter.Candidate, error) {
	if s.gate != nil {
		<-s.gate
	}
	s.partials = append(s.partials, partial)
	i := s.calls
	s.calls++
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	var c filter.Candidate
	if i < len(s.replies) {
		c = s.replies[i]
	}
	return c, err
}

func newTestManager(t *testing.T, ex CandidateExtractor, timeout time.Duration) (*Manager, *time.Time) {
	t.Helper()
	now := time.Date(2025, time.June, 15, 10, 0, 0, 0, time.UTC)
	v := filter.NewValidator(filter.MustDefault(), time.UTC, func() time.Time { return now }, logger.NewTestLogger(t))
	m := NewManager(ex, v, timeout, logger.NewTestLogger(t))
	m.now = func() time.Time { return now }
	return m, &now
}

func TestHandleMessageSingleTurn(t *testing.T) {
	ex := &scriptedExtractor{replies: []filter.Candidate{{
		Categories: []string{"MC"},
		Areas:      []string{"Area-1"},
		PeriodText: "jan 2025",
	}}}
	m, _ := newTestManager(t, ex, 10*time.Minute)

	out, err := m.HandleMessage(context.Background(), 42, "MC trips area 1 jan 2025")
	require.NoError(t, err)
	require.NotNil(t, out.Filter)
	assert.Empty(t, out.Prompt)
	assert.True(t, out.Filter.Complete())

	// The session is gone once dispatched.
	assert.Equal(t, 0, m.ActiveCount())
}

func TestHandleMessageMultiTurn(t *testing.T) {
	ex := &scriptedExtractor{replies: []filter.Candidate{
		{Categories: []string{"MC"}},
		{PeriodText: "feb 2025"},
		{Areas: []string{"all"}},
	}}
	m, _ := newTestManager(t, ex, 10*time.Minute)
	ctx := context.Background()

	// Turn 1: only categories arrive; period is asked first.
	out, err := m.HandleMessage(ctx, 42, "MC trips")
	require.NoError(t, err)
	assert.Nil(t, out.Filter)
	assert.Contains(t, out.Prompt, "period")
	firstSession := out.SessionID

	// Turn 2: period arrives; areas are asked next.
	out, err = m.HandleMessage(ctx, 42, "feb 2025")
	require.NoError(t, err)
	assert.Nil(t, out.Filter)
	assert.Contains(t, out.Prompt, "areas")
	assert.Equal(t, firstSession, out.SessionID)

	// Turn 3: areas complete the filter.
	out, err = m.HandleMessage(ctx, 42, "all areas")
	require.NoError(t, err)
	require.NotNil(t, out.Filter)
	assert.Equal(t, []filter.Category{filter.CategoryMC}, out.Filter.Categories)
	assert.Len(t, out.Filter.Areas, 15)
}

func TestHandleMessageRepeatAskIsShorter(t *testing.T) {
	ex := &scriptedExtractor{replies: []filter.Candidate{
		{Categories: []string{"MC"}, Areas: []string{"Area-1"}},
		{},
	}}
	m, _ := newTestManager(t, ex, 10*time.Minute)
	ctx := context.Background()

	out, err := m.HandleMessage(ctx, 42, "MC trips area 1")
	require.NoError(t, err)
	assert.Contains(t, out.Prompt, "For example")

	// The second ask for the same field drops the examples.
	out, err = m.HandleMessage(ctx, 42, "whenever")
	require.NoError(t, err)
	assert.Contains(t, out.Prompt, "still need the period")
}

// trackingExtractor counts how many Extract calls are in flight at once.
type trackingExtractor struct {
	inflight atomic.Int32
	peak     atomic.Int32
	calls    atomic.Int32
	release  chan struct{}
}

func (e *trackingExtractor) Extract(ctx context.Context, text string, partial filter.Filter) (filter.Candidate, error) {
	n := e.inflight.Add(1)
	for {
		p := e.peak.Load()
		if n <= p || e.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if e.release != nil {
		<-e.release
	} else {
		time.Sleep(10 * time.Millisecond)
	}
	e.inflight.Add(-1)
	e.calls.Add(1)
	return filter.Candidate{}, nil
}

func TestHandleMessageSerializesTurnsPerChat(t *testing.T) {
	ex := &trackingExtractor{}
	m, _ := newTestManager(t, ex, 10*time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.HandleMessage(context.Background(), 42, "MC trips")
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(2), ex.calls.Load())
	assert.Equal(t, int32(1), ex.peak.Load(), "turns for one chat must not overlap")
}

func TestHandleMessageChatsDoNotBlockEachOther(t *testing.T) {
	ex := &trackingExtractor{release: make(chan struct{})}
	m, _ := newTestManager(t, ex, 10*time.Minute)

	var wg sync.WaitGroup
	for _, chatID := range []int64{1, 2} {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, _ = m.HandleMessage(context.Background(), id, "MC trips")
		}(chatID)
	}

	require.Eventually(t, func() bool { return ex.inflight.Load() == 2 },
		time.Second, 5*time.Millisecond, "different chats should extract concurrently")
	close(ex.release)
	wg.Wait()
	assert.Equal(t, int32(2), ex.peak.Load())
}

func TestHandleMessagePassesPartialFilter(t *testing.T) {
	ex := &scriptedExtractor{replies: []filter.Candidate{
		{Categories: []string{"MC"}, PeriodText: "jan 2025"},
		{Areas: []string{"all"}},
	}}
	m, _ := newTestManager(t, ex, 10*time.Minute)
	ctx := context.Background()

	_, err := m.HandleMessage(ctx, 42, "MC trips jan 2025")
	require.NoError(t, err)
	_, err = m.HandleMessage(ctx, 42, "all areas")
	require.NoError(t, err)

	require.Len(t, ex.partials, 2)
	assert.Empty(t, ex.partials[0].Categories, "first turn starts from nothing")
	assert.Equal(t, []filter.Category{filter.CategoryMC}, ex.partials[1].Categories)
	require.NotNil(t, ex.partials[1].Period)
}

func TestHandleMessageKeepsValidFields(t *testing.T) {
	ex := &scriptedExtractor{replies: []filter.Candidate{
		{Categories: []string{"MC"}, PeriodText: "jan 2025"},
		// A later turn mentioning other categories must not overwrite.
		{Categories: []string{"JR"}, Areas: []string{"Area-2"}},
	}}
	m, _ := newTestManager(t, ex, 10*time.Minute)
	ctx := context.Background()

	_, err := m.HandleMessage(ctx, 42, "MC trips jan 2025")
	require.NoError(t, err)

	out, err := m.HandleMessage(ctx, 42, "JR for area 2")
	require.NoError(t, err)
	require.NotNil(t, out.Filter)
	assert.Equal(t, []filter.Category{filter.CategoryMC}, out.Filter.Categories)
}

func TestHandleMessageExtractionError(t *testing.T) {
	ex := &scriptedExtractor{
		errs: []error{stderrors.NewExtractionError(assert.AnError)},
		replies: []filter.Candidate{
			{},
			{Categories: []string{"all"}, Areas: []string{"all"}, PeriodText: "2024"},
		},
	}
	m, _ := newTestManager(t, ex, 10*time.Minute)
	ctx := context.Background()

	_, err := m.HandleMessage(ctx, 42, "garbled")
	require.Error(t, err)
	assert.Equal(t, stderrors.ErrCodeExtractionFailed, stderrors.CodeOf(err))

	// The session survives the failure and the next message proceeds.
	assert.Equal(t, 1, m.ActiveCount())
	out, err := m.HandleMessage(ctx, 42, "everything for 2024")
	require.NoError(t, err)
	require.NotNil(t, out.Filter)
}

func TestSweepExpired(t *testing.T) {
	ex := &scriptedExtractor{replies: []filter.Candidate{
		{Categories: []string{"MC"}},
		{Categories: []string{"JR"}},
	}}
	m, now := newTestManager(t, ex, 10*time.Minute)
	ctx := context.Background()

	_, err := m.HandleMessage(ctx, 1, "MC")
	require.NoError(t, err)
	_, err = m.HandleMessage(ctx, 2, "JR")
	require.NoError(t, err)
	assert.Equal(t, 2, m.ActiveCount())

	*now = now.Add(5 * time.Minute)
	assert.Equal(t, 0, m.SweepExpired())

	*now = now.Add(6 * time.Minute)
	assert.Equal(t, 2, m.SweepExpired())
	assert.Equal(t, 0, m.ActiveCount())
}

func TestInFlightResultDiscardedAfterExpiry(t *testing.T) {
	gate := make(chan struct{})
	ex := &scriptedExtractor{
		gate:    gate,
		replies: []filter.Candidate{{Categories: []string{"MC"}}},
	}
	m, now := newTestManager(t, ex, 10*time.Minute)

	done := make(chan struct{})
	var out Outcome
	var err error
	go func() {
		out, err = m.HandleMessage(context.Background(), 42, "MC trips")
		close(done)
	}()

	// Let the session be created, then expire it while extraction blocks.
	require.Eventually(t, func() bool { return m.ActiveCount() == 1 }, time.Second, 5*time.Millisecond)
	*now = now.Add(11 * time.Minute)
	require.Equal(t, 1, m.SweepExpired())

	close(gate)
	<-done

	require.Error(t, err)
	assert.Equal(t, stderrors.ErrCodeSessionExpired, stderrors.CodeOf(err))
	assert.Nil(t, out.Filter)
	assert.Equal(t, 0, m.ActiveCount())
}
