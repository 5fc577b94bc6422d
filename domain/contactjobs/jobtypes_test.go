package contactjobs

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	for _, jt := range []JobType{JobTypeRetrieveTranscript, JobTypeScrubTranscript} {
		def, err := Lookup(jt)
		require.NoError(t, err)
		assert.Equal(t, jt, def.Type)
	}

	_, err := Lookup("TRANSLATE_TRANSCRIPT")
	assert.ErrorIs(t, err, ErrUnknownJobType)
}

func TestCleanableTypes(t *testing.T) {
	assert.Equal(t, []JobType{JobTypeScrubTranscript}, CleanableTypes())
}

func TestRetrieveOnSuccess(t *testing.T) {
	def, err := Lookup(JobTypeRetrieveTranscript)
	require.NoError(t, err)
	job := &ContactJob{ID: "j1", AdditionalPayload: json.RawMessage(`{"conversationMediaId":"m1"}`)}

	res, err := def.OnSuccess(job, json.RawMessage(`{"location":"s3://b/k"}`))
	require.NoError(t, err)
	require.NotNil(t, res.Update.Location)
	assert.Equal(t, "s3://b/k", *res.Update.Location)
	assert.Nil(t, res.Update.ScrubbedLocation)
	require.NotNil(t, res.Successor)
	assert.Equal(t, JobTypeScrubTranscript, res.Successor.JobType)
	assert.JSONEq(t, `{"conversationMediaId":"m1","originalLocation":"s3://b/k"}`, string(res.Successor.AdditionalPayload))

	_, err = def.OnSuccess(job, json.RawMessage(`{"location":"  "}`))
	assert.ErrorIs(t, err, ErrInvalidCompletionPayload)

	_, err = def.OnSuccess(&ContactJob{ID: "j2", AdditionalPayload: json.RawMessage(`{}`)}, json.RawMessage(`{"location":"x"}`))
	assert.Error(t, err)
}

func TestScrubOnSuccess(t *testing.T) {
	def, err := Lookup(JobTypeScrubTranscript)
	require.NoError(t, err)
	job := &ContactJob{ID: "j1", AdditionalPayload: json.RawMessage(`{"conversationMediaId":"m1","originalLocation":"s3://b/raw"}`)}

	res, err := def.OnSuccess(job, json.RawMessage(`{"location":"s3://b/scrubbed"}`))
	require.NoError(t, err)
	assert.Nil(t, res.Successor)
	assert.Nil(t, res.Update.Location)
	require.NotNil(t, res.Update.ScrubbedLocation)
	assert.Equal(t, "s3://b/scrubbed", *res.Update.ScrubbedLocation)

	id, err := def.ResourceID(job)
	require.NoError(t, err)
	assert.Equal(t, "m1", id)

	assert.True(t, def.HasAttachedData(&Resource{Location: "s3://b/raw"}))
	assert.False(t, def.HasAttachedData(&Resource{ScrubbedLocation: "s3://b/scrubbed"}))
}

func TestContactJob_IsDue(t *testing.T) {
	attempted := t0.Add(-time.Minute)
	tests := []struct {
		name string
		job  ContactJob
		want bool
	}{
		{"never attempted", ContactJob{}, true},
		{"inside backoff", ContactJob{LastAttempt: &attempted}, false},
		{"completed", ContactJob{Completed: &attempted}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.job.IsDue(t0, 5*time.Minute))
		})
	}

	job := ContactJob{LastAttempt: &attempted}
	assert.True(t, job.IsDue(t0, time.Minute), "backoff elapsed exactly")
}

func TestNewSnapshot(t *testing.T) {
	raw, err := NewSnapshot(map[string]string{"id": "c1"}, &Resource{ID: "m1", Location: "s3://b/k"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"contact":{"id":"c1"},"conversationMedia":{"id":"m1","accountSid":"","contactId":"","location":"s3://b/k"}}`, string(raw))

	updated, err := withMedia(raw, &Resource{ID: "m1", ScrubbedLocation: "s3://b/s"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"contact":{"id":"c1"},"conversationMedia":{"id":"m1","accountSid":"","contactId":"","scrubbedLocation":"s3://b/s"}}`, string(updated))
}
