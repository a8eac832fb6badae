package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/courtvision/analysis-client/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fastPoller(api *fakeAPI, maxDuration time.Duration) *Poller {
	return NewPoller(api, PollerConfig{Interval: time.Millisecond, MaxDuration: maxDuration}, zap.NewNop())
}

func TestPoller_StopsAfterCompletedWithOneResultFetch(t *testing.T) {
	api := &fakeAPI{statuses: []entity.StatusReport{processing(10), processing(60), completed()}}

	var seen []entity.JobStatus
	res, err := fastPoller(api, 0).Poll(context.Background(), "vid-1", func(r entity.StatusReport) {
		seen = append(seen, r.Status)
	})

	require.NoError(t, err)
	assert.Equal(t, "vid-1", res.VideoID)
	_, statusCalls, resultCalls := api.counts()
	assert.Equal(t, 3, statusCalls)
	assert.Equal(t, 1, resultCalls)
	assert.Equal(t, []entity.JobStatus{entity.JobStatusProcessing, entity.JobStatusProcessing, entity.JobStatusCompleted}, seen)
}

func TestPoller_FailedSurfacesServerMessage(t *testing.T) {
	api := &fakeAPI{statuses: []entity.StatusReport{
		{Status: entity.JobStatusQueued},
		{Status: entity.JobStatusFailed, ErrorMessage: "No player detected in video"},
	}}

	_, err := fastPoller(api, 0).Poll(context.Background(), "vid-2", nil)

	var jobErr *entity.JobFailedError
	require.ErrorAs(t, err, &jobErr)
	assert.Equal(t, "No player detected in video", jobErr.Message)
	_, statusCalls, resultCalls := api.counts()
	assert.Equal(t, 2, statusCalls)
	assert.Zero(t, resultCalls)
}

func TestPoller_NetworkErrorIsNotRetried(t *testing.T) {
	netErr := &entity.NetworkError{Op: "get status", Err: errors.New("connection refused")}
	api := &fakeAPI{statusErr: netErr}

	_, err := fastPoller(api, 0).Poll(context.Background(), "vid-3", nil)

	assert.ErrorIs(t, err, netErr)
	_, statusCalls, _ := api.counts()
	assert.Equal(t, 1, statusCalls)
}

func TestPoller_CancelStopsPolling(t *testing.T) {
	api := &fakeAPI{}
	ctx, cancel := context.WithCancel(context.Background())
	p := NewPoller(api, PollerConfig{Interval: time.Hour}, zap.NewNop())

	errCh := make(chan error, 1)
	go func() {
		_, err := p.Poll(ctx, "vid-4", nil)
		errCh <- err
	}()
	waitFor(t, func() bool { _, n, _ := api.counts(); return n == 1 }, "first poll")
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("poll did not stop on cancel")
	}
	_, statusCalls, _ := api.counts()
	assert.Equal(t, 1, statusCalls)
}

func TestPoller_MaxDuration(t *testing.T) {
	api := &fakeAPI{}
	p := NewPoller(api, PollerConfig{Interval: 5 * time.Millisecond, MaxDuration: 30 * time.Millisecond}, zap.NewNop())

	_, err := p.Poll(context.Background(), "vid-5", nil)

	assert.ErrorIs(t, err, entity.ErrPollTimeout)
	_, statusCalls, resultCalls := api.counts()
	assert.GreaterOrEqual(t, statusCalls, 2)
	assert.Zero(t, resultCalls)
}

func TestPoller_MaxDurationBoundsStalledRequest(t *testing.T) {
	api := &fakeAPI{statusStall: true}
	p := NewPoller(api, PollerConfig{Interval: time.Hour, MaxDuration: 30 * time.Millisecond}, zap.NewNop())

	start := time.Now()
	_, err := p.Poll(context.Background(), "vid-6", nil)

	assert.ErrorIs(t, err, entity.ErrPollTimeout)
	assert.Less(t, time.Since(start), time.Second)
	_, statusCalls, _ := api.counts()
	assert.Equal(t, 1, statusCalls)
}

func TestPoller_CallerCancelWinsOverMaxDuration(t *testing.T) {
	api := &fakeAPI{statusStall: true}
	p := NewPoller(api, PollerConfig{Interval: time.Hour, MaxDuration: time.Hour}, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.Poll(ctx, "vid-7", nil)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, entity.ErrPollTimeout)
}

func TestPoller_DefaultInterval(t *testing.T) {
	p := NewPoller(&fakeAPI{}, PollerConfig{}, zap.NewNop())
	assert.Equal(t, 2*time.Second, p.cfg.Interval)
}
