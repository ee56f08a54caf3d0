package source

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"packrat-go/internal/config"
	"packrat-go/internal/retry"
)

// fakeS3 serves objects from a map keyed by bucket/key.
type fakeS3 struct {
	objects map[string][]byte
	calls   []string
	err     error
}

func (f *fakeS3) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	key := aws.ToString(params.Bucket) + "/" + aws.ToString(params.Key)
	f.calls = append(f.calls, key)
	if f.err != nil {
		return nil, f.err
	}
	content, ok := f.objects[key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(string(content)))}, nil
}

func testPolicy() retry.Policy {
	return retry.Policy{Interval: time.Millisecond, IsTransient: retry.IsTransient}
}

func TestS3Mirror_Fetch(t *testing.T) {
	t.Run("downloads the revision blob", func(t *testing.T) {
		fake := &fakeS3{objects: map[string][]byte{
			"mirror-bucket/revisions/r1": []byte("blob content"),
		}}
		mirror := &S3Mirror{client: fake, bucket: "mirror-bucket", prefix: "revisions", retry: testPolicy()}

		dest := filepath.Join(t.TempDir(), "a.txt")
		if err := mirror.Fetch(context.Background(), "r1", dest); err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}

		got, err := os.ReadFile(dest)
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != "blob content" {
			t.Errorf("content = %q", got)
		}
		if len(fake.calls) != 1 || fake.calls[0] != "mirror-bucket/revisions/r1" {
			t.Errorf("calls = %v", fake.calls)
		}
	})

	t.Run("no prefix means bare revision keys", func(t *testing.T) {
		fake := &fakeS3{objects: map[string][]byte{
			"mirror-bucket/r1": []byte("x"),
		}}
		mirror := &S3Mirror{client: fake, bucket: "mirror-bucket", retry: testPolicy()}

		dest := filepath.Join(t.TempDir(), "a.txt")
		if err := mirror.Fetch(context.Background(), "r1", dest); err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
	})

	t.Run("missing object fails", func(t *testing.T) {
		fake := &fakeS3{}
		mirror := &S3Mirror{client: fake, bucket: "mirror-bucket", retry: testPolicy()}

		dest := filepath.Join(t.TempDir(), "a.txt")
		if err := mirror.Fetch(context.Background(), "r1", dest); err == nil {
			t.Error("Fetch() error = nil, want failure")
		}
	})
}

func TestNewFetcherFromConfig(t *testing.T) {
	t.Run("dropbox requires a token", func(t *testing.T) {
		_, err := NewFetcherFromConfig(context.Background(), config.SourceConfig{Type: "dropbox"}, 0)
		if err == nil {
			t.Error("expected error for missing token")
		}
	})

	t.Run("dropbox with token", func(t *testing.T) {
		fetcher, err := NewFetcherFromConfig(context.Background(), config.SourceConfig{
			Type:  "dropbox",
			Token: "tok",
		}, 0)
		if err != nil {
			t.Fatalf("NewFetcherFromConfig() error = %v", err)
		}
		if fetcher == nil {
			t.Error("fetcher = nil")
		}
	})

	t.Run("s3 requires a bucket", func(t *testing.T) {
		_, err := NewFetcherFromConfig(context.Background(), config.SourceConfig{Type: "s3"}, 0)
		if err == nil {
			t.Error("expected error for missing bucket")
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := NewFetcherFromConfig(context.Background(), config.SourceConfig{Type: "ftp"}, 0)
		if err == nil {
			t.Error("expected error for unknown source type")
		}
	})
}
