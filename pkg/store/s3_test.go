package store

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/peercode/collab/pkg/doc"
)

// fakeS3 is an in-memory S3API double.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.putErr != nil {
		return nil, f.putErr
	}
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(params.Key)] = body
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	body, ok := f.objects[aws.ToString(params.Key)]
	if !ok {
		return nil, errors.New("fake s3: no such key")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(params.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := &s3.ListObjectsV2Output{}
	for _, k := range keys {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	return out, nil
}

func newTestS3Store(t *testing.T) (*S3Store, *fakeS3) {
	t.Helper()

	fake := newFakeS3()
	s, err := NewS3Store(fake, "test-bucket", "collab/docs/")
	if err != nil {
		t.Fatalf("NewS3Store() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, fake
}

func TestS3StoreAppendLoad(t *testing.T) {
	s, _ := newTestS3Store(t)
	ctx := context.Background()

	d1 := doc.EncodeDelta([]byte("first"))
	d2 := doc.EncodeDelta([]byte("second"))

	if err := s.Append(ctx, "room-9", d1); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := s.Append(ctx, "room-9", d2); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	log, err := s.Load(ctx, "room-9")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	deltas, err := doc.DecodeLog(log)
	if err != nil {
		t.Fatalf("DecodeLog() error = %v", err)
	}
	if len(deltas) != 2 || !bytes.Equal(deltas[0], d1) || !bytes.Equal(deltas[1], d2) {
		t.Errorf("loaded %d deltas, want [first second] in order", len(deltas))
	}
}

func TestS3StoreNotFound(t *testing.T) {
	s, _ := newTestS3Store(t)

	if _, err := s.Load(context.Background(), "empty-room"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() error = %v, want ErrNotFound", err)
	}
}

func TestS3StoreObjectsAreCompressed(t *testing.T) {
	s, fake := newTestS3Store(t)
	ctx := context.Background()

	delta := doc.EncodeDelta(bytes.Repeat([]byte("compressible "), 100))
	if err := s.Append(ctx, "r", delta); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	for _, body := range fake.objects {
		if len(body) >= len(delta) {
			t.Errorf("stored object (%d bytes) not smaller than delta (%d bytes)", len(body), len(delta))
		}
		// zstd magic number
		if !bytes.HasPrefix(body, []byte{0x28, 0xB5, 0x2F, 0xFD}) {
			t.Error("stored object is not zstd-compressed")
		}
	}
}

func TestS3StoreAppendError(t *testing.T) {
	s, fake := newTestS3Store(t)
	fake.putErr = errors.New("bucket unavailable")

	if err := s.Append(context.Background(), "r", doc.EncodeDelta([]byte("x"))); err == nil {
		t.Error("Append() should surface backend errors")
	}
}

func TestS3StoreSessionsIsolatedByPrefix(t *testing.T) {
	s, _ := newTestS3Store(t)
	ctx := context.Background()

	s.Append(ctx, "a", doc.EncodeDelta([]byte("for-a")))

	if _, err := s.Load(ctx, "b"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load(b) error = %v, want ErrNotFound", err)
	}
}
