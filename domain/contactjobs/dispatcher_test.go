package contactjobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrm-platform/hrm-service/internal/config"
	"github.com/hrm-platform/hrm-service/internal/queue"
)

var testChannels = queue.Channels{Prefix: "test"}

func newTestConfig() *config.ContactJobsConfig {
	return &config.ContactJobsConfig{
		Enabled:                true,
		PollInterval:           time.Second,
		Backoff:                5 * time.Minute,
		MaxPerTick:             10,
		CompletionPollInterval: time.Second,
		CompletionBatch:        10,
		CompletionConcurrency:  4,
		Retention:              24 * time.Hour,
		CleanupSchedule:        "0 0 3 * * *",
		CleanupPageSize:        100,
	}
}

// flakyPublisher fails the first n publishes.
type flakyPublisher struct {
	mu    sync.Mutex
	fails int
	next  queue.Publisher
}

func (p *flakyPublisher) Publish(ctx context.Context, channel string, body []byte) error {
	p.mu.Lock()
	if p.fails > 0 {
		p.fails--
		p.mu.Unlock()
		return errPublish
	}
	p.mu.Unlock()
	return p.next.Publish(ctx, channel, body)
}

type dispatchFixture struct {
	clock      *testClock
	store      *memStore
	resources  *fakeResources
	queue      *queue.Memory
	dispatcher *Dispatcher
}

func newDispatchFixture(t *testing.T, cfg *config.ContactJobsConfig, pub queue.Publisher) *dispatchFixture {
	t.Helper()
	clock := newTestClock()
	q := queue.NewMemory(time.Minute, 0, queue.WithClock(clock.Now))
	if pub == nil {
		pub = q
	}
	store := newMemStore(clock)
	d := NewDispatcher(store, pub, testChannels, cfg, slog.Default())
	d.now = clock.Now
	return &dispatchFixture{clock: clock, store: store, resources: newFakeResources(), queue: q, dispatcher: d}
}

func (f *dispatchFixture) received(t *testing.T, jobType JobType) []DispatchMessage {
	t.Helper()
	msgs, err := f.queue.Receive(context.Background(), testChannels.Dispatch(string(jobType)), 100)
	require.NoError(t, err)

	out := make([]DispatchMessage, 0, len(msgs))
	for _, m := range msgs {
		var dm DispatchMessage
		require.NoError(t, json.Unmarshal(m.Body, &dm))
		out = append(out, dm)
		require.NoError(t, f.queue.Ack(context.Background(), testChannels.Dispatch(string(jobType)), m))
	}
	return out
}

func TestDispatcher_PublishesDueJobs(t *testing.T) {
	f := newDispatchFixture(t, newTestConfig(), nil)
	job, media := createTranscriptJob(t, f.store, f.resources, JobTypeRetrieveTranscript, "")

	n, err := f.dispatcher.Dispatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	msgs := f.received(t, JobTypeRetrieveTranscript)
	require.Len(t, msgs, 1)
	assert.Equal(t, job.ID, msgs[0].JobID)
	assert.Equal(t, JobTypeRetrieveTranscript, msgs[0].JobType)
	assert.Equal(t, 1, msgs[0].AttemptNumber)
	assert.Equal(t, testAccount, msgs[0].AccountSID)
	assert.Equal(t, job.ContactID, msgs[0].ContactID)
	assert.JSONEq(t, string(job.Resource), string(msgs[0].ResourceSnapshot))
	assert.JSONEq(t, `{"conversationMediaId":"`+media.ID+`"}`, string(msgs[0].AdditionalPayload))

	stored, err := f.store.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastAttempt)
	assert.True(t, stored.LastAttempt.Equal(t0))
	assert.Equal(t, 1, stored.AttemptNumber)
}

func TestDispatcher_WillNotRepublishIfAlreadySent(t *testing.T) {
	f := newDispatchFixture(t, newTestConfig(), nil)
	createTranscriptJob(t, f.store, f.resources, JobTypeRetrieveTranscript, "")

	n, err := f.dispatcher.Dispatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	f.clock.Advance(5*time.Minute - time.Second)
	n, err = f.dispatcher.Dispatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Len(t, f.received(t, JobTypeRetrieveTranscript), 1)
}

func TestDispatcher_WillRepublishIfPreviousAttemptExpires(t *testing.T) {
	f := newDispatchFixture(t, newTestConfig(), nil)
	job, _ := createTranscriptJob(t, f.store, f.resources, JobTypeRetrieveTranscript, "")

	_, err := f.dispatcher.Dispatch(context.Background())
	require.NoError(t, err)
	f.clock.Advance(5 * time.Minute)
	n, err := f.dispatcher.Dispatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	msgs := f.received(t, JobTypeRetrieveTranscript)
	require.Len(t, msgs, 2)
	assert.Equal(t, job.ID, msgs[1].JobID)
	assert.Equal(t, []int{1, 2}, []int{msgs[0].AttemptNumber, msgs[1].AttemptNumber})
}

func TestDispatcher_PublishFailureRetriesAfterBackoff(t *testing.T) {
	cfg := newTestConfig()
	pub := &flakyPublisher{fails: 1}
	f := newDispatchFixture(t, cfg, pub)
	pub.next = f.queue
	job, _ := createTranscriptJob(t, f.store, f.resources, JobTypeRetrieveTranscript, "")

	n, err := f.dispatcher.Dispatch(context.Background())
	require.NoError(t, err, "publish failures are not surfaced")
	assert.Zero(t, n)

	// Claimed but unpublished: not due again until the backoff elapses.
	n, err = f.dispatcher.Dispatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock.Advance(cfg.Backoff)
	n, err = f.dispatcher.Dispatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	msgs := f.received(t, JobTypeRetrieveTranscript)
	require.Len(t, msgs, 1)
	assert.Equal(t, job.ID, msgs[0].JobID)
	assert.Equal(t, 2, msgs[0].AttemptNumber)
}

func TestDispatcher_RespectsMaxPerTick(t *testing.T) {
	cfg := newTestConfig()
	cfg.MaxPerTick = 2
	f := newDispatchFixture(t, cfg, nil)
	for range 5 {
		createTranscriptJob(t, f.store, f.resources, JobTypeRetrieveTranscript, "")
	}

	counts := []int{}
	for range 3 {
		n, err := f.dispatcher.Dispatch(context.Background())
		require.NoError(t, err)
		counts = append(counts, n)
	}
	assert.Equal(t, []int{2, 2, 1}, counts)

	seen := map[string]bool{}
	for _, m := range f.received(t, JobTypeRetrieveTranscript) {
		assert.False(t, seen[m.JobID], "job %s published twice", m.JobID)
		seen[m.JobID] = true
	}
	assert.Len(t, seen, 5)
}

func TestDispatcher_MaxAttempts(t *testing.T) {
	cfg := newTestConfig()
	cfg.MaxAttempts = 2
	f := newDispatchFixture(t, cfg, nil)
	createTranscriptJob(t, f.store, f.resources, JobTypeRetrieveTranscript, "")

	published := 0
	for range 4 {
		n, err := f.dispatcher.Dispatch(context.Background())
		require.NoError(t, err)
		published += n
		f.clock.Advance(cfg.Backoff)
	}
	assert.Equal(t, 2, published)
}

func TestDispatcher_SkipsCompletedJobs(t *testing.T) {
	f := newDispatchFixture(t, newTestConfig(), nil)
	job, _ := createTranscriptJob(t, f.store, f.resources, JobTypeRetrieveTranscript, "")
	f.store.complete(t, job.ID, t0)

	n, err := f.dispatcher.Dispatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDispatcher_ConcurrentDispatchersPublishOnce(t *testing.T) {
	f := newDispatchFixture(t, newTestConfig(), nil)
	for range 20 {
		createTranscriptJob(t, f.store, f.resources, JobTypeRetrieveTranscript, "")
	}

	other := NewDispatcher(f.store, f.queue, testChannels, newTestConfig(), slog.Default())
	other.now = f.clock.Now

	var wg sync.WaitGroup
	totals := make([]int, 2)
	for i, d := range []*Dispatcher{f.dispatcher, other} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 3 {
				n, err := d.Dispatch(context.Background())
				assert.NoError(t, err)
				totals[i] += n
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, totals[0]+totals[1])
	assert.Len(t, f.received(t, JobTypeRetrieveTranscript), 20)
}

func TestDispatcher_ClaimError(t *testing.T) {
	f := newDispatchFixture(t, newTestConfig(), nil)
	f.store.pullErr = errors.New("connection refused")

	n, err := f.dispatcher.Dispatch(context.Background())
	assert.Error(t, err)
	assert.Zero(t, n)
}

func TestDispatcher_RoutesByJobType(t *testing.T) {
	f := newDispatchFixture(t, newTestConfig(), nil)
	createTranscriptJob(t, f.store, f.resources, JobTypeRetrieveTranscript, "")
	createTranscriptJob(t, f.store, f.resources, JobTypeScrubTranscript, "s3://bucket/raw")

	n, err := f.dispatcher.Dispatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Len(t, f.received(t, JobTypeRetrieveTranscript), 1)
	assert.Len(t, f.received(t, JobTypeScrubTranscript), 1)
}
