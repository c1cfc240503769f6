package sync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// mockDestination records calls to Write.
type mockDestination struct {
	writes atomic.Int64
	last   atomic.Value // []byte
	err    error
}

func (d *mockDestination) Write(_ context.Context, data []byte) error {
	d.writes.Add(1)
	cp := make([]byte, len(data))
	copy(cp, data)
	d.last.Store(cp)
	return d.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSchedulerStartStop(t *testing.T) {
	s := seededStore(t, event(2, false), event(1, true))
	dest := &mockDestination{}

	sched := NewScheduler(s, []Destination{dest}, 50*time.Millisecond, quietLogger())
	sched.Start()

	// Wait for at least the initial sync + one tick.
	time.Sleep(120 * time.Millisecond)
	sched.Stop()

	if writes := dest.writes.Load(); writes < 2 {
		t.Fatalf("expected at least 2 writes, got %d", writes)
	}

	data, ok := dest.last.Load().([]byte)
	if !ok || len(data) == 0 {
		t.Fatal("expected non-empty data")
	}

	// 1 header + 2 events
	if lines := nonEmptyLines(string(data)); len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
}

func TestSchedulerStop_NoStart(t *testing.T) {
	sched := NewScheduler(seededStore(t), nil, time.Minute, quietLogger())
	// Stop without Start should not panic.
	sched.Stop()
}

func TestSchedulerMultipleDestinations(t *testing.T) {
	dest1 := &mockDestination{}
	dest2 := &mockDestination{}

	sched := NewScheduler(seededStore(t), []Destination{dest1, dest2}, time.Second, quietLogger())
	sched.Start()

	// Wait for the initial sync.
	time.Sleep(50 * time.Millisecond)
	sched.Stop()

	if dest1.writes.Load() < 1 {
		t.Fatal("dest1 expected at least 1 write")
	}
	if dest2.writes.Load() < 1 {
		t.Fatal("dest2 expected at least 1 write")
	}
}

func TestSyncOnce_DestinationErrorDoesNotStopOthers(t *testing.T) {
	bad := &mockDestination{err: errors.New("bucket gone")}
	good := &mockDestination{}

	sched := NewScheduler(seededStore(t, event(1, false)), []Destination{bad, good}, time.Minute, quietLogger())
	err := sched.SyncOnce(context.Background())
	if err == nil || !strings.Contains(err.Error(), "destination 0") || !strings.Contains(err.Error(), "bucket gone") {
		t.Fatalf("expected destination 0 error, got %v", err)
	}
	if good.writes.Load() != 1 {
		t.Fatalf("second destination writes = %d, want 1", good.writes.Load())
	}
}

func TestSyncOnce_ExportError(t *testing.T) {
	dest := &mockDestination{}
	sched := NewScheduler(failingStore{}, []Destination{dest}, time.Minute, quietLogger())
	if err := sched.SyncOnce(context.Background()); err == nil {
		t.Fatal("expected export error")
	}
	if dest.writes.Load() != 0 {
		t.Fatal("destination written after failed export")
	}
}

func TestNewS3Destination_RequiresBucket(t *testing.T) {
	if _, err := NewS3Destination(context.Background(), S3Config{Region: "us-east-1"}); err == nil {
		t.Fatal("expected error for empty bucket")
	}
}

func TestS3Destination_Write(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	t.Setenv("AWS_CONFIG_FILE", "/dev/null")
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", "/dev/null")

	var (
		mu          sync.Mutex
		method      string
		path        string
		contentType string
		body        string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		method, path, contentType, body = r.Method, r.URL.Path, r.Header.Get("Content-Type"), string(data)
		mu.Unlock()
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	dest, err := NewS3Destination(context.Background(), S3Config{
		Bucket:   "archive",
		Region:   "us-east-1",
		Endpoint: srv.URL,
	})
	if err != nil {
		t.Fatalf("NewS3Destination: %v", err)
	}
	if got := dest.String(); got != "s3://archive/"+DefaultS3Key {
		t.Fatalf("String() = %q", got)
	}

	payload := `{"type":"header"}` + "\n"
	if err := dest.Write(context.Background(), []byte(payload)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if method != http.MethodPut {
		t.Errorf("method = %s, want PUT", method)
	}
	if path != "/archive/"+DefaultS3Key {
		t.Errorf("path = %s, want path-style object key", path)
	}
	if contentType != jsonlContentType {
		t.Errorf("content type = %q", contentType)
	}
	if !strings.Contains(body, `{"type":"header"}`) {
		t.Errorf("body = %q, want payload", body)
	}
}
