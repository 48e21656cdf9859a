package vault

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// fakeS3 stores objects in memory. Only single-part uploads are supported.
type fakeS3 struct {
	mu       sync.Mutex
	objects  map[string][]byte
	metadata map[string]map[string]string
	bucketOK bool
}

func newFakeS3() *fakeS3 {
	return &fakeS3{
		objects:  make(map[string][]byte),
		metadata: make(map[string]map[string]string),
		bucketOK: true,
	}
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[*in.Key] = data
	f.metadata[*in.Key] = in.Metadata
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) UploadPart(context.Context, *s3.UploadPartInput, ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return nil, errors.New("multipart not supported")
}

func (f *fakeS3) CreateMultipartUpload(context.Context, *s3.CreateMultipartUploadInput, ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return nil, errors.New("multipart not supported")
}

func (f *fakeS3) CompleteMultipartUpload(context.Context, *s3.CompleteMultipartUploadInput, ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return nil, errors.New("multipart not supported")
}

func (f *fakeS3) AbortMultipartUpload(context.Context, *s3.AbortMultipartUploadInput, ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return &s3.AbortMultipartUploadOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[*in.Key]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[*in.Key]; !ok {
		return nil, &s3types.NotFound{}
	}
	return &s3.HeadObjectOutput{Metadata: f.metadata[*in.Key]}, nil
}

func (f *fakeS3) HeadBucket(context.Context, *s3.HeadBucketInput, ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if !f.bucketOK {
		return nil, &s3types.NotFound{}
	}
	return &s3.HeadBucketOutput{}, nil
}

func TestS3Vault_Metadata(t *testing.T) {
	client := newFakeS3()
	v := NewS3VaultWithClient("archive", "dt-archive", "history", client)
	data := "sqlite snapshot"

	if err := v.PutMetadata("production", "history.db", strings.NewReader(data), int64(len(data)), 12); err != nil {
		t.Fatalf("PutMetadata() error = %v", err)
	}

	if _, ok := client.objects["history/production/history.db"]; !ok {
		t.Errorf("object stored under unexpected key; have %v", client.objects)
	}

	var buf bytes.Buffer
	if err := v.GetMetadata("production", "history.db", &buf); err != nil {
		t.Fatalf("GetMetadata() error = %v", err)
	}
	if buf.String() != data {
		t.Errorf("GetMetadata() = %q, want %q", buf.String(), data)
	}

	version, err := v.GetMetadataVersion("production", "history.db")
	if err != nil {
		t.Fatalf("GetMetadataVersion() error = %v", err)
	}
	if version != 12 {
		t.Errorf("GetMetadataVersion() = %d, want 12", version)
	}
}

func TestS3Vault_Missing(t *testing.T) {
	v := NewS3VaultWithClient("archive", "dt-archive", "", newFakeS3())

	version, err := v.GetMetadataVersion("production", "history.db")
	if err != nil {
		t.Fatalf("GetMetadataVersion() error = %v", err)
	}
	if version != 0 {
		t.Errorf("GetMetadataVersion() = %d, want 0", version)
	}

	var buf bytes.Buffer
	err = v.GetMetadata("production", "history.db", &buf)
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("GetMetadata() error = %v, want not found", err)
	}
}

func TestS3Vault_SizeMismatch(t *testing.T) {
	v := NewS3VaultWithClient("archive", "dt-archive", "", newFakeS3())
	if err := v.PutMetadata("production", "history.db", strings.NewReader("abc"), 10, 1); err == nil {
		t.Error("PutMetadata() expected size mismatch error")
	}
}

func TestS3Vault_ValidateSetup(t *testing.T) {
	client := newFakeS3()
	v := NewS3VaultWithClient("archive", "dt-archive", "", client)
	if err := v.ValidateSetup(); err != nil {
		t.Errorf("ValidateSetup() error = %v", err)
	}

	client.bucketOK = false
	if err := v.ValidateSetup(); err == nil {
		t.Error("ValidateSetup() expected error for missing bucket")
	}
}
