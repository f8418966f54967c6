package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"smartqa-backend/internal/shared/storage/object"
)

func TestApplyPrefix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		prefix string
		key    string
		want   string
	}{
		{name: "no prefix", prefix: "", key: "documents/a/brief.pdf", want: "documents/a/brief.pdf"},
		{name: "simple prefix", prefix: "root", key: "documents/a/brief.pdf", want: "root/documents/a/brief.pdf"},
		{name: "prefix trailing slash", prefix: "root/", key: "documents/a/brief.pdf", want: "root/documents/a/brief.pdf"},
		{name: "prefix and key slashes", prefix: "/root/", key: "/documents/a/brief.pdf", want: "root/documents/a/brief.pdf"},
		{name: "nested prefix", prefix: "root/sub", key: "documents/a/brief.pdf", want: "root/sub/documents/a/brief.pdf"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := applyPrefix(tt.prefix, tt.key); got != tt.want {
				t.Fatalf("applyPrefix(%q, %q) = %q, want %q", tt.prefix, tt.key, got, tt.want)
			}
		})
	}
}

type fakeS3 struct {
	objects map[string][]byte
	lastPut *s3.PutObjectInput
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = body
	f.lastPut = in
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestPutUsesPrefixAndEncryption(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	store := newWithClient(fake, "bucket", "/smartqa/", "kms-1")
	ctx := context.Background()

	n, err := store.Put(ctx, "documents/a/brief.md", "text/markdown", strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if n != 5 {
		t.Fatalf("expected 5 bytes, got %d", n)
	}
	if got := aws.ToString(fake.lastPut.Key); got != "smartqa/documents/a/brief.md" {
		t.Fatalf("unexpected object key %q", got)
	}
	if fake.lastPut.ServerSideEncryption != s3types.ServerSideEncryptionAwsKms {
		t.Fatalf("expected kms encryption, got %q", fake.lastPut.ServerSideEncryption)
	}

	rc, err := store.Open(ctx, "documents/a/brief.md")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	body, _ := io.ReadAll(rc)
	if string(body) != "hello" {
		t.Fatalf("unexpected body %q", body)
	}

	if err := store.Delete(ctx, "documents/a/brief.md"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Open(ctx, "documents/a/brief.md"); err == nil {
		t.Fatalf("expected missing object after delete")
	}
	if _, err := store.Open(ctx, "../escape"); !errors.Is(err, object.ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}
