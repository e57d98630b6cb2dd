package archive_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/archive"
)

// fakeS3 answers PUT object requests in memory.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	status  int
}

func (f *fakeS3) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	status := f.status
	if status == 0 {
		status = http.StatusOK
	}
	if req.Method == http.MethodPut && status == http.StatusOK {
		body, _ := io.ReadAll(req.Body)
		f.objects[req.URL.Path] = body
	}
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader(nil)),
		Header:     http.Header{"ETag": {`"etag"`}},
		Request:    req,
	}, nil
}

func newArchiver(t *testing.T, rt http.RoundTripper) *archive.S3 {
	t.Helper()
	a, err := archive.NewS3(context.Background(), archive.Config{
		Bucket:          "logs",
		Region:          "us-east-1",
		Endpoint:        "https://mock.s3.local",
		PathStyle:       true,
		Prefix:          "portunus-edge/",
		DeviceID:        "door-1",
		AccessKeyID:     "AKIA",
		SecretAccessKey: "SECRET",
	}, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: rt}
		o.RetryMaxAttempts = 1
	})
	require.NoError(t, err)
	return a
}

func TestS3_ArchivePutsObject(t *testing.T) {
	fake := &fakeS3{objects: make(map[string][]byte)}
	a := newArchiver(t, fake)

	body := "timestamp,uid,username\n2026-06-01 09:15:00,8E8939033D,User 1\n"
	require.NoError(t, a.Archive(context.Background(), "20260601T091500.csv", strings.NewReader(body)))

	assert.Equal(t, "portunus-edge/door-1/20260601T091500.csv", a.Key("20260601T091500.csv"))
	got, ok := fake.objects["/logs/portunus-edge/door-1/20260601T091500.csv"]
	require.True(t, ok, "object stored under bucket/key")
	assert.Contains(t, string(got), "8E8939033D,User 1")
}

func TestS3_ArchiveError(t *testing.T) {
	fake := &fakeS3{objects: make(map[string][]byte), status: http.StatusForbidden}
	a := newArchiver(t, fake)

	err := a.Archive(context.Background(), "x.csv", strings.NewReader("timestamp,uid,username\n"))
	assert.Error(t, err)
}

func TestNewS3_RequiresBucket(t *testing.T) {
	_, err := archive.NewS3(context.Background(), archive.Config{})
	assert.Error(t, err)
}
