package contactjobs

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock { return &testClock{now: t0} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// memStore is an in-memory Store. RunInTx restores the previous state when fn
// fails, so rollback behaviour can be asserted.
type memStore struct {
	mu    sync.Mutex
	jobs  map[string]*ContactJob
	clock *testClock

	pullErr   error
	deleteErr error
}

func newMemStore(clock *testClock) *memStore {
	return &memStore{jobs: make(map[string]*ContactJob), clock: clock}
}

var _ Store = (*memStore)(nil)

func cloneJob(j *ContactJob) *ContactJob {
	c := *j
	c.FailedAttemptsPayloads = slices.Clone(j.FailedAttemptsPayloads)
	if j.LastAttempt != nil {
		t := *j.LastAttempt
		c.LastAttempt = &t
	}
	if j.Completed != nil {
		t := *j.Completed
		c.Completed = &t
	}
	return &c
}

func (s *memStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx bun.IDB) error) error {
	s.mu.Lock()
	saved := make(map[string]*ContactJob, len(s.jobs))
	for id, j := range s.jobs {
		saved[id] = cloneJob(j)
	}
	s.mu.Unlock()

	if err := fn(ctx, nil); err != nil {
		s.mu.Lock()
		s.jobs = saved
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *memStore) Create(_ context.Context, _ bun.IDB, p CreateParams) (*ContactJob, error) {
	job, err := newJob(p)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	job.CreatedAt = s.clock.Now().Add(time.Duration(len(s.jobs)) * time.Microsecond)
	s.jobs[job.ID] = job
	return cloneJob(job), nil
}

func (s *memStore) PullDueJobs(_ context.Context, _ bun.IDB, p PullParams) ([]*ContactJob, error) {
	if s.pullErr != nil {
		return nil, s.pullErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*ContactJob
	for _, j := range s.jobs {
		if !j.IsDue(p.Now, p.Backoff) {
			continue
		}
		if p.MaxAttempts > 0 && j.AttemptNumber >= p.MaxAttempts {
			continue
		}
		due = append(due, j)
	}
	sort.Slice(due, func(a, b int) bool { return due[a].CreatedAt.Before(due[b].CreatedAt) })
	if len(due) > p.Limit {
		due = due[:p.Limit]
	}

	out := make([]*ContactJob, 0, len(due))
	for _, j := range due {
		now := p.Now
		j.LastAttempt = &now
		j.AttemptNumber++
		out = append(out, cloneJob(j))
	}
	return out, nil
}

func (s *memStore) Complete(_ context.Context, _ bun.IDB, id string, completedAt time.Time, payload json.RawMessage) (*ContactJob, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, false, nil
	}
	if j.Completed != nil {
		return cloneJob(j), false, nil
	}
	j.Completed = &completedAt
	j.CompletionPayload = payload
	return cloneJob(j), true, nil
}

func (s *memStore) AppendFailedAttemptPayload(_ context.Context, id string, attemptNumber int, payload json.RawMessage) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok || j.Completed != nil {
		return false, nil
	}
	j.FailedAttemptsPayloads = append(j.FailedAttemptsPayloads, FailedAttempt{AttemptNumber: attemptNumber, Payload: payload})
	return true, nil
}

func (s *memStore) GetByID(_ context.Context, id string) (*ContactJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	return cloneJob(j), nil
}

func (s *memStore) ListCleanupCandidates(_ context.Context, q CleanupQuery) ([]*ContactJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*ContactJob
	for _, j := range s.jobs {
		if j.Completed == nil || j.Completed.After(q.CompletedBefore) {
			continue
		}
		if !slices.Contains(q.JobTypes, j.JobType) || j.ID <= q.AfterID {
			continue
		}
		out = append(out, cloneJob(j))
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *memStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return false, s.deleteErr
	}
	j, ok := s.jobs[id]
	if !ok || j.Completed == nil {
		return false, nil
	}
	delete(s.jobs, id)
	return true, nil
}

func (s *memStore) Stats(_ context.Context) ([]TypeStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byType := map[JobType]*TypeStats{}
	for _, j := range s.jobs {
		st, ok := byType[j.JobType]
		if !ok {
			st = &TypeStats{JobType: j.JobType}
			byType[j.JobType] = st
		}
		if j.Completed == nil {
			st.Pending++
		} else {
			st.Completed++
		}
		if len(j.FailedAttemptsPayloads) > 0 {
			st.WithFailures++
		}
	}

	var out []TypeStats
	for _, st := range byType {
		out = append(out, *st)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].JobType < out[b].JobType })
	return out, nil
}

func (s *memStore) byType(t JobType) []*ContactJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*ContactJob
	for _, j := range s.jobs {
		if j.JobType == t {
			out = append(out, cloneJob(j))
		}
	}
	return out
}

// complete marks a job completed at the given time.
func (s *memStore) complete(t *testing.T, id string, at time.Time) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	require.True(t, ok)
	j.Completed = &at
	j.CompletionPayload = json.RawMessage(`{"location":"s3://bucket/scrubbed"}`)
}

// fakeResources is an in-memory ResourceClient.
type fakeResources struct {
	mu        sync.Mutex
	items     map[string]*Resource
	deletes   map[string]int
	deleteErr map[string]error
	// gone marks resources whose stored data was removed out of band.
	gone map[string]bool
}

func newFakeResources() *fakeResources {
	return &fakeResources{
		items:     make(map[string]*Resource),
		deletes:   make(map[string]int),
		deleteErr: make(map[string]error),
		gone:      make(map[string]bool),
	}
}

var _ ResourceClient = (*fakeResources)(nil)

func (f *fakeResources) add(accountSID, contactID, location string) *Resource {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := &Resource{ID: uuid.NewString(), AccountSID: accountSID, ContactID: contactID, Location: location}
	f.items[r.ID] = r
	c := *r
	return &c
}

func (f *fakeResources) get(id string) *Resource {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.items[id]
	if !ok {
		return nil
	}
	c := *r
	return &c
}

func (f *fakeResources) GetResource(_ context.Context, accountSID, id string) (*Resource, error) {
	r := f.get(id)
	if r == nil || r.AccountSID != accountSID {
		return nil, nil
	}
	return r, nil
}

func (f *fakeResources) UpdateResource(_ context.Context, _ bun.IDB, accountSID, id string, u ResourceUpdate) (*Resource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.items[id]
	if !ok || r.AccountSID != accountSID {
		return nil, nil
	}
	if u.Location != nil {
		r.Location = *u.Location
	}
	if u.ScrubbedLocation != nil {
		r.ScrubbedLocation = *u.ScrubbedLocation
	}
	c := *r
	return &c, nil
}

func (f *fakeResources) DeleteResource(_ context.Context, accountSID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes[id]++
	if err := f.deleteErr[id]; err != nil {
		return err
	}
	r, ok := f.items[id]
	if ok && r.AccountSID == accountSID {
		r.Location = ""
	}
	if f.gone[id] {
		return ErrAttachmentGone
	}
	return nil
}

func (f *fakeResources) deleteCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deletes[id]
}

var errPublish = errors.New("queue unavailable")

const testAccount = "AC0000000000000000000000000000test"

// createTranscriptJob creates a job of type t for a fresh contact and media item.
func createTranscriptJob(t *testing.T, store *memStore, resources *fakeResources, jobType JobType, location string) (*ContactJob, *Resource) {
	t.Helper()
	contactID := uuid.NewString()
	media := resources.add(testAccount, contactID, location)

	snapshot, err := NewSnapshot(map[string]any{"id": contactID, "channel": "voice"}, media)
	require.NoError(t, err)
	payload, err := json.Marshal(transcriptPayload{ConversationMediaID: media.ID})
	require.NoError(t, err)

	job, err := store.Create(context.Background(), nil, CreateParams{
		AccountSID:        testAccount,
		ContactID:         contactID,
		JobType:           jobType,
		Resource:          snapshot,
		AdditionalPayload: payload,
	})
	require.NoError(t, err)
	return job, media
}
