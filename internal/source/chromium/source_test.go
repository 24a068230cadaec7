package chromium

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	collyfetcher "github.com/JakeFAU/release-tracker/internal/fetcher/colly"
	"github.com/JakeFAU/release-tracker/internal/hash/sha256"
	memorystorage "github.com/JakeFAU/release-tracker/internal/storage/memory"
	"github.com/JakeFAU/release-tracker/internal/tracker"
)

const livePayload = `{"mstones":[{"mstone":130,"branch_point":"2024-08-05T00:00:00",
	"earliest_beta":"2024-08-21T00:00:00","stable_date":"2024-10-15T00:00:00"}]}`

const snapshotPath = "chromium/schedule.json"

type stubFetcher struct {
	body  []byte
	err   error
	calls int
}

func (f *stubFetcher) Fetch(_ context.Context, req collyfetcher.Request) (collyfetcher.Response, error) {
	f.calls++
	if f.err != nil {
		return collyfetcher.Response{}, f.err
	}
	return collyfetcher.Response{URL: req.URL, StatusCode: http.StatusOK, Body: f.body}, nil
}

func newTestSource(f *stubFetcher, blobs tracker.BlobStore) *Source {
	return New(Config{
		URL:          "https://chromiumdash.example/fetch_milestone_schedule",
		SnapshotPath: snapshotPath,
		Timeout:      time.Second,
	}, f, blobs, sha256.New(), nil)
}

func TestFetchLiveWritesSnapshot(t *testing.T) {
	t.Parallel()

	blobs := memorystorage.NewBlobStore()
	src := newTestSource(&stubFetcher{body: []byte(livePayload)}, blobs)

	batch, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, tracker.SourceOK, batch.Status)
	assert.NoError(t, batch.Err)
	require.Len(t, batch.Releases, 3)
	assert.Equal(t, "chromium-130-alpha", batch.Releases[0].ID)

	stored, err := blobs.GetObject(context.Background(), snapshotPath)
	require.NoError(t, err)
	assert.Equal(t, livePayload, string(stored))
}

func TestFetchSkipsUnchangedSnapshot(t *testing.T) {
	t.Parallel()

	blobs := &countingBlobs{BlobStore: memorystorage.NewBlobStore()}
	src := newTestSource(&stubFetcher{body: []byte(livePayload)}, blobs)

	for range 3 {
		_, err := src.Fetch(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, 1, blobs.puts)
}

func TestFetchFallsBackToSnapshot(t *testing.T) {
	t.Parallel()

	blobs := memorystorage.NewBlobStore()
	_, err := blobs.PutObject(context.Background(), snapshotPath, "application/json", bytes.NewReader([]byte(livePayload)))
	require.NoError(t, err)

	src := newTestSource(&stubFetcher{err: errors.New("connection refused")}, blobs)
	batch, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, tracker.SourceDegraded, batch.Status)
	require.Error(t, batch.Err)
	require.Len(t, batch.Releases, 3)
	assert.Equal(t, "chromium-130-stable", batch.Releases[2].ID)
}

func TestFetchFallsBackToStaticOnSchemaMismatch(t *testing.T) {
	t.Parallel()

	src := newTestSource(&stubFetcher{body: []byte(`{"unexpected":true}`)}, memorystorage.NewBlobStore())
	batch, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, tracker.SourceDegraded, batch.Status)
	assert.Len(t, batch.Releases, 15)
	assert.Equal(t, "chromium-120-alpha", batch.Releases[0].ID)
}

func TestFetchIgnoresCorruptSnapshot(t *testing.T) {
	t.Parallel()

	blobs := memorystorage.NewBlobStore()
	_, err := blobs.PutObject(context.Background(), snapshotPath, "application/json", bytes.NewReader([]byte(`garbage`)))
	require.NoError(t, err)

	src := newTestSource(&stubFetcher{err: errors.New("boom")}, blobs)
	batch, _ := src.Fetch(context.Background())
	assert.Equal(t, tracker.SourceDegraded, batch.Status)
	assert.Len(t, batch.Releases, 15)
}

func TestFetchWithoutSnapshotStore(t *testing.T) {
	t.Parallel()

	src := New(Config{URL: "https://x.example"}, &stubFetcher{err: errors.New("down")}, nil, nil, nil)
	batch, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, tracker.SourceDegraded, batch.Status)
	assert.Len(t, batch.Releases, 15)
}

func TestFetchSnapshotWriteFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	src := newTestSource(&stubFetcher{body: []byte(livePayload)}, failingBlobs{})
	batch, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, tracker.SourceOK, batch.Status)
}

func TestFetchAgainstHTTPServer(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(livePayload))
	}))
	defer srv.Close()

	fetcher := collyfetcher.New(collyfetcher.Config{Timeout: time.Second}, nil, nil)
	src := New(Config{URL: srv.URL, Timeout: 2 * time.Second}, fetcher, nil, nil, nil)
	batch, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, tracker.SourceOK, batch.Status)
	assert.Len(t, batch.Releases, 3)
}

func TestFetchAgainstFailingHTTPServer(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	fetcher := collyfetcher.New(collyfetcher.Config{Timeout: time.Second}, nil, nil)
	src := New(Config{URL: srv.URL, Timeout: 2 * time.Second}, fetcher, nil, nil, nil)
	batch, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, tracker.SourceDegraded, batch.Status)
	var statusErr *collyfetcher.StatusError
	assert.True(t, errors.As(batch.Err, &statusErr))
}

type countingBlobs struct {
	tracker.BlobStore
	puts int
}

func (c *countingBlobs) PutObject(ctx context.Context, path, contentType string, data io.Reader) (string, error) {
	c.puts++
	return c.BlobStore.PutObject(ctx, path, contentType, data)
}

type failingBlobs struct{}

func (failingBlobs) PutObject(context.Context, string, string, io.Reader) (string, error) {
	return "", errors.New("bucket unavailable")
}

func (failingBlobs) GetObject(context.Context, string) ([]byte, error) {
	return nil, errors.New("bucket unavailable")
}
