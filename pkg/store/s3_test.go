package store

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// fakeS3 is an in-memory s3API that pages listings two objects at a time.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	lists   int
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(bytes.Clone(body)))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = body
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++

	prefix := aws.ToString(in.Prefix)
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if in.ContinuationToken != nil {
		for i, k := range keys {
			if k > aws.ToString(in.ContinuationToken) {
				start = i
				break
			}
			start = len(keys)
		}
	}
	end := start + 2
	if end > len(keys) {
		end = len(keys)
	}
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(keys))}
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	if end < len(keys) {
		out.NextContinuationToken = aws.String(keys[end-1])
	}
	return out, nil
}

func TestS3Store_Contract(t *testing.T) {
	runKVContract(t, func(t *testing.T) KV {
		return newS3Store(newFakeS3(), "test-bucket", "sourcebook")
	})
}

func TestS3Store_Layout(t *testing.T) {
	fake := newFakeS3()
	s := newS3Store(fake, "test-bucket", "sb")
	mustPut(t, s, "sources", &Record{Key: "core@1.0.0", Index: "core", Value: []byte("{}")})

	if _, ok := fake.objects["sb/records/sources/core@1.0.0"]; !ok {
		t.Errorf("record object missing, have %v", objectKeys(fake))
	}
	if _, ok := fake.objects["sb/index/sources/core/core@1.0.0"]; !ok {
		t.Errorf("index marker missing, have %v", objectKeys(fake))
	}
}

func TestS3Store_PaginatedListing(t *testing.T) {
	fake := newFakeS3()
	s := newS3Store(fake, "test-bucket", "")
	for _, k := range []string{"a", "b", "c", "d", "e"} {
		mustPut(t, s, "characters", &Record{Key: k, Value: []byte(k)})
	}
	fake.lists = 0

	all, err := s.All(context.Background(), "characters")
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("All returned %d records, want 5", len(all))
	}
	if fake.lists != 3 {
		t.Errorf("expected 3 list pages, got %d", fake.lists)
	}
}

func objectKeys(f *fakeS3) []string {
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
