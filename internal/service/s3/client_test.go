package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docmanager/internal/domain"
)

type fakeAPI struct {
	mu      sync.Mutex
	objects map[string][]byte
	parts   map[string][][]byte
	aborted int
	failPut bool
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{objects: map[string][]byte{}, parts: map[string][][]byte{}}
}

func (f *fakeAPI) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeAPI) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.failPut {
		return nil, errors.New("connection refused")
	}
	data, _ := io.ReadAll(in.Body)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeAPI) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeAPI) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeAPI) CreateMultipartUpload(ctx context.Context, in *s3.CreateMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return &s3.CreateMultipartUploadOutput{UploadId: aws.String("upload-1")}, nil
}

func (f *fakeAPI) UploadPart(ctx context.Context, in *s3.UploadPartInput, _ ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	data, _ := io.ReadAll(in.Body)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.parts[aws.ToString(in.Key)] = append(f.parts[aws.ToString(in.Key)], data)
	return &s3.UploadPartOutput{ETag: aws.String("etag")}, nil
}

func (f *fakeAPI) CompleteMultipartUpload(ctx context.Context, in *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := aws.ToString(in.Key)
	f.objects[key] = bytes.Join(f.parts[key], nil)
	return &s3.CompleteMultipartUploadOutput{}, nil
}

func (f *fakeAPI) AbortMultipartUpload(ctx context.Context, in *s3.AbortMultipartUploadInput, _ ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	f.aborted++
	return &s3.AbortMultipartUploadOutput{}, nil
}

func TestStoreReadDelete(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	c := NewWithAPI(api, "docs")

	require.NoError(t, c.Store(ctx, "documents/a/b/charter.pdf", []byte("v1"), "application/pdf"))

	data, err := c.Read(ctx, "documents/a/b/charter.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), data)

	require.NoError(t, c.Delete(ctx, "documents/a/b/charter.pdf"))
	_, err = c.Read(ctx, "documents/a/b/charter.pdf")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestStoreMultipart(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	c := NewWithAPI(api, "docs")
	c.chunkSize = 4

	require.NoError(t, c.Store(ctx, "big", []byte("0123456789"), "text/plain"))
	assert.Len(t, api.parts["big"], 3)
	assert.Equal(t, []byte("0123456789"), api.objects["big"])
}

func TestStoreUnavailable(t *testing.T) {
	api := newFakeAPI()
	api.failPut = true
	c := NewWithAPI(api, "docs")

	err := c.Store(context.Background(), "k", []byte("x"), "text/plain")
	assert.True(t, errors.Is(err, domain.ErrStorageUnavailable))
}

func TestConfigValidate(t *testing.T) {
	cfg := &Config{AccessKeyID: "id", SecretAccessKey: "secret", Bucket: "docs"}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, defaultEndpoint, cfg.Endpoint)
	assert.Equal(t, defaultRegion, cfg.Region)

	assert.Error(t, (&Config{AccessKeyID: "id", SecretAccessKey: "secret"}).Validate())
}
