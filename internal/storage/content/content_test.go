package content

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

func TestKey(t *testing.T) {
	d := Digest([]byte("hello"))
	if len(d) != 64 {
		t.Fatalf("digest length = %d", len(d))
	}
	got := Key(d, "png")
	want := "png/" + d[:2] + "/" + d + ".png"
	if got != want {
		t.Errorf("Key() = %q, want %q", got, want)
	}
}

func TestValidKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"png/ab/abcd.png", true},
		{"", false},
		{"/etc/passwd", false},
		{"../escape.png", false},
		{"png/../../escape.png", false},
		{"png//ab.png", false},
	}
	for _, tt := range tests {
		if got := validKey(tt.key); got != tt.want {
			t.Errorf("validKey(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

// --- LocalStore ---

func TestLocalStore_PutIfAbsent(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	mtime := time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)
	key := Key(Digest([]byte("img")), "jpg")

	loc, err := s.PutIfAbsent(ctx, key, []byte("img"), mtime)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loc != filepath.Join(s.Root(), filepath.FromSlash(key)) {
		t.Errorf("location = %q", loc)
	}
	data, err := os.ReadFile(loc)
	if err != nil || string(data) != "img" {
		t.Fatalf("read back: %q, %v", data, err)
	}
	info, err := os.Stat(loc)
	if err != nil {
		t.Fatal(err)
	}
	if !info.ModTime().Equal(mtime) {
		t.Errorf("mtime = %v, want %v", info.ModTime(), mtime)
	}

	if _, err := s.PutIfAbsent(ctx, key, []byte("img"), mtime); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}

	entries, err := os.ReadDir(filepath.Dir(loc))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %d entries", len(entries))
	}
}

func TestLocalStore_ConcurrentSameKey(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	key := Key(Digest([]byte("dup")), "png")

	const writers = 8
	var wg sync.WaitGroup
	results := make([]error, writers)
	for i := range writers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = s.PutIfAbsent(context.Background(), key, []byte("dup"), time.Time{})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrExists):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("expected exactly one winner, got %d", wins)
	}
}

func TestLocalStore_Delete(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	key := Key(Digest([]byte("x")), "gif")

	if _, err := s.PutIfAbsent(ctx, key, []byte("x"), time.Time{}); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("second delete must be a no-op: %v", err)
	}
	if _, err := s.PutIfAbsent(ctx, key, []byte("x"), time.Time{}); err != nil {
		t.Fatalf("re-put after delete: %v", err)
	}
}

func TestLocalStore_HealthCheck(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "store")
	s, err := NewLocalStore(root)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		t.Fatalf("root not created: %v", err)
	}
}

func TestLocalStore_RejectsBadKeys(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.PutIfAbsent(context.Background(), "../x.png", nil, time.Time{}); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}

// --- MinioStore ---

// TestMinioStore_Integration requires a running MinIO instance and is skipped otherwise.
func TestMinioStore_Integration(t *testing.T) {
	client, err := minio.New("localhost:9000", &minio.Options{
		Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
		Secure: false,
	})
	if err != nil {
		t.Skipf("MinIO client creation failed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := client.ListBuckets(ctx); err != nil {
		t.Skipf("MinIO not available: %v", err)
	}

	s, err := DialMinio(context.Background(), MinioConfig{
		Endpoint:  "localhost:9000",
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Bucket:    "test-clipsearch",
		Prefix:    "content",
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	key := Key(Digest([]byte(t.Name())), "png")
	_ = s.Delete(context.Background(), key)

	loc, err := s.PutIfAbsent(context.Background(), key, []byte(t.Name()), time.Now())
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if loc != "s3://test-clipsearch/content/"+key {
		t.Errorf("location = %q", loc)
	}
	if _, err := s.PutIfAbsent(context.Background(), key, []byte(t.Name()), time.Now()); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	if err := s.Delete(context.Background(), key); err != nil {
		t.Fatalf("delete: %v", err)
	}
}
