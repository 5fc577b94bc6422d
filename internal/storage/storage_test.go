package storage

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrm-platform/hrm-service/internal/config"
)

func TestParseLocation(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		bucket  string
		want    Location
		wantErr bool
	}{
		{
			name: "s3 url",
			raw:  "s3://transcripts/AC123/contact-1/transcript.json",
			want: Location{Bucket: "transcripts", Key: "AC123/contact-1/transcript.json"},
		},
		{
			name:   "bare key uses default bucket",
			raw:    "AC123/transcript.json",
			bucket: "hrm-transcripts",
			want:   Location{Bucket: "hrm-transcripts", Key: "AC123/transcript.json"},
		},
		{
			name:   "leading slash trimmed",
			raw:    "/AC123/transcript.json",
			bucket: "hrm-transcripts",
			want:   Location{Bucket: "hrm-transcripts", Key: "AC123/transcript.json"},
		},
		{name: "empty", raw: "  ", wantErr: true},
		{name: "bare key without default bucket", raw: "a/b", wantErr: true},
		{name: "unsupported scheme", raw: "https://example.com/a", wantErr: true},
		{name: "missing key", raw: "s3://bucket/", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLocation(tt.raw, tt.bucket)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLocationString(t *testing.T) {
	loc := Location{Bucket: "b", Key: "k/1.json"}
	assert.Equal(t, "s3://b/k/1.json", loc.String())

	parsed, err := ParseLocation(loc.String(), "")
	require.NoError(t, err)
	assert.Equal(t, loc, parsed)
}

func TestEndpointURL(t *testing.T) {
	assert.Equal(t, "http://minio:9000", endpointURL("minio:9000", false))
	assert.Equal(t, "https://minio:9000", endpointURL("minio:9000", true))
	assert.Equal(t, "http://localhost:9000", endpointURL("http://localhost:9000", true))
}

func TestDisabledService(t *testing.T) {
	svc, err := NewService(&config.StorageConfig{Bucket: "b"}, slog.Default())
	require.NoError(t, err)
	assert.False(t, svc.Enabled())

	err = svc.DeleteLocation(context.Background(), "s3://b/k")
	assert.ErrorIs(t, err, ErrNotEnabled)

	_, err = svc.Exists(context.Background(), "s3://b/k")
	assert.ErrorIs(t, err, ErrNotEnabled)
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(&types.NotFound{}))
	assert.True(t, isNotFound(fmt.Errorf("wrapped: %w", &types.NoSuchKey{})))
	assert.False(t, isNotFound(fmt.Errorf("access denied")))
}
