package blobstore

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBucket is an in-memory stand-in for presigned URL targets.
type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (b *fakeBucket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch r.Method {
	case http.MethodPut:
		data, _ := io.ReadAll(r.Body)
		b.objects[r.URL.Path] = data
	case http.MethodGet:
		data, ok := b.objects[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write(data)
	}
}

func newTestS3Store(t *testing.T) (*S3Store, *fakeBucket) {
	t.Helper()

	bucket := &fakeBucket{objects: map[string][]byte{}}
	ts := httptest.NewServer(bucket)
	t.Cleanup(ts.Close)

	origLoad := loadDefaultAWSConfig
	origNewS3 := newS3ClientFromConfig
	origPut := presignPutObject
	origGet := presignGetObject
	origDel := deleteObject
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newS3ClientFromConfig = origNewS3
		presignPutObject = origPut
		presignGetObject = origGet
		deleteObject = origDel
	})

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		var lo awsconfig.LoadOptions
		for _, fn := range optFns {
			require.NoError(t, fn(&lo))
		}
		require.Equal(t, "us-east-1", lo.Region)
		return aws.Config{}, nil
	}
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		var opts s3.Options
		for _, fn := range optFns {
			fn(&opts)
		}
		require.NotNil(t, opts.BaseEndpoint)
		require.Equal(t, "http://127.0.0.1:9000", *opts.BaseEndpoint)
		require.True(t, opts.UsePathStyle)
		return &s3.Client{}
	}
	presignPutObject = func(_ *s3.PresignClient, _ context.Context, in *s3.PutObjectInput, _ ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return &v4.PresignedHTTPRequest{URL: ts.URL + "/" + *in.Bucket + "/" + *in.Key, Method: http.MethodPut}, nil
	}
	presignGetObject = func(_ *s3.PresignClient, _ context.Context, in *s3.GetObjectInput, _ ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return &v4.PresignedHTTPRequest{URL: ts.URL + "/" + *in.Bucket + "/" + *in.Key, Method: http.MethodGet}, nil
	}
	deleteObject = func(_ *s3.Client, _ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
		bucket.mu.Lock()
		defer bucket.mu.Unlock()
		delete(bucket.objects, "/"+*in.Bucket+"/"+*in.Key)
		return &s3.DeleteObjectOutput{}, nil
	}

	s, err := NewS3Store(context.Background(), S3Config{
		Region:    "us-east-1",
		Endpoint:  "http://127.0.0.1:9000",
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Bucket:    "vault",
	})
	require.NoError(t, err)
	return s, bucket
}

func TestS3Store_RoundTrip(t *testing.T) {
	s, bucket := newTestS3Store(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "android.security.keystore.abc.p12", []byte("ct")))
	bucket.mu.Lock()
	assert.Contains(t, bucket.objects, "/vault/android.security.keystore.abc.p12")
	bucket.mu.Unlock()

	got, err := s.Get(ctx, "android.security.keystore.abc.p12")
	require.NoError(t, err)
	assert.Equal(t, "ct", string(got))

	require.NoError(t, s.Delete(ctx, "android.security.keystore.abc.p12"))
	_, err = s.Get(ctx, "android.security.keystore.abc.p12")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestS3Store_PresignErrors(t *testing.T) {
	s, _ := newTestS3Store(t)
	ctx := context.Background()

	presignPutObject = func(*s3.PresignClient, context.Context, *s3.PutObjectInput, ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return nil, errors.New("presign put")
	}
	presignGetObject = func(*s3.PresignClient, context.Context, *s3.GetObjectInput, ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return nil, errors.New("presign get")
	}

	assert.EqualError(t, s.Put(ctx, "k", []byte("x")), "presign put")
	_, err := s.Get(ctx, "k")
	assert.EqualError(t, err, "presign get")
	assert.Error(t, s.Put(ctx, "../k", nil))
}

func TestNewS3Store_ConfigError(t *testing.T) {
	orig := loadDefaultAWSConfig
	defer func() { loadDefaultAWSConfig = orig }()

	loadDefaultAWSConfig = func(context.Context, ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("no config")
	}

	_, err := NewS3Store(context.Background(), S3Config{Region: "us-east-1"})
	assert.EqualError(t, err, "no config")
}
