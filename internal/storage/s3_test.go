package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memS3 struct {
	objects map[string][]byte
	types   map[string]string
}

func (m *memS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	key := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	m.objects[key] = b
	m.types[key] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (m *memS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	b := m.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func (m *memS3) HeadBucket(_ context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if aws.ToString(in.Bucket) != "exports-bucket" {
		return nil, errors.New("NotFound")
	}
	return &s3.HeadBucketOutput{}, nil
}

func TestS3Ping(t *testing.T) {
	api := &memS3{objects: map[string][]byte{}, types: map[string]string{}}
	require.NoError(t, NewS3StoreWithClient(api, "exports-bucket", "").Ping(context.Background()))
	assert.Error(t, NewS3StoreWithClient(api, "missing", "").Ping(context.Background()))
}

func TestS3PutGet(t *testing.T) {
	api := &memS3{objects: map[string][]byte{}, types: map[string]string{}}
	s := NewS3StoreWithClient(api, "exports-bucket", "/mailcraft/")
	s.now = func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) }

	key := s.ExportKey("brand-1", "list-news")
	assert.Equal(t, "mailcraft/exports/2026/03/04/brand-1/list-news-050607.csv", key)

	uri, err := s.Put(context.Background(), key, bytes.NewBufferString("id,email\n"), "text/csv")
	require.NoError(t, err)
	assert.Equal(t, "s3://exports-bucket/"+key, uri)
	assert.Equal(t, "text/csv", api.types["exports-bucket/"+key])

	rc, err := s.Get(context.Background(), key)
	require.NoError(t, err)
	defer rc.Close()
	b, _ := io.ReadAll(rc)
	assert.Equal(t, "id,email\n", string(b))
}
