package ali

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aliyun/alibabacloud-oss-go-sdk-v2/oss"
	"github.com/aliyun/alibabacloud-oss-go-sdk-v2/oss/credentials"
	"github.com/google/uuid"
	"github.com/reusedev/gen-hub/config"
	"github.com/reusedev/gen-hub/tools"
)

// Store writes generation artifacts and thumbnails to Aliyun OSS and
// presigns read URLs. Constructed once at boot and passed by handle.
type Store struct {
	client     *oss.Client
	endpoint   string
	bucketName string
	directory  string
}

func NewStore(cfg config.AliOss) *Store {
	credential := credentials.NewStaticCredentialsProvider(cfg.AccessKeyId, cfg.AccessKeySecret, "")
	c := oss.LoadDefaultConfig().
		WithCredentialsProvider(credential).
		WithEndpoint(cfg.Endpoint).WithRegion(cfg.Region)
	client := oss.NewClient(c)
	if client == nil {
		panic("create oss client failed")
	}
	return &Store{
		client:     client,
		endpoint:   cfg.Endpoint,
		bucketName: cfg.Bucket,
		directory:  cfg.Directory,
	}
}

// Fetch downloads provider output referenced by URL before it is written
// into the bucket.
func (s *Store) Fetch(ctx context.Context, url string) ([]byte, error) {
	return tools.FetchURL(ctx, url)
}

// Put uploads artifact bytes under a fresh key. The extension is detected
// from the content so provider output needs no trusted filename.
func (s *Store) Put(ctx context.Context, b []byte) (string, error) {
	fName := uuid.New().String() + "." + tools.DetectImageType(b)
	key := s.fullPath(fName)
	return key, s.upload(ctx, fName, key, bytes.NewReader(b))
}

// PutThumbnail uploads a thumbnail derived from an artifact, keyed next to
// its parent.
func (s *Store) PutThumbnail(ctx context.Context, artifactKey string, r io.Reader) (string, error) {
	key := artifactKey + ".thumb.jpg"
	return key, s.upload(ctx, key, key, r)
}

func (s *Store) URL(key string, expire time.Duration) (string, error) {
	ret, err := s.client.Presign(context.TODO(), &oss.GetObjectRequest{Bucket: oss.Ptr(s.bucketName), Key: oss.Ptr(key)}, oss.PresignExpires(expire))
	if err != nil {
		return "", err
	}
	return ret.URL, nil
}

// Get fetches artifact bytes back out of the bucket.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	resp, err := s.client.GetObject(ctx, &oss.GetObjectRequest{Bucket: oss.Ptr(s.bucketName), Key: oss.Ptr(key)})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (s *Store) fullPath(fName string) string {
	return s.directory + fName
}

func (s *Store) upload(ctx context.Context, fName, key string, reader io.Reader) error {
	request := &oss.PutObjectRequest{
		Bucket:             oss.Ptr(s.bucketName),
		Key:                oss.Ptr(key),
		Body:               reader,
		ContentDisposition: oss.Ptr(fmt.Sprintf("attachment; filename=\"%s\"", fName)),
	}
	_, err := s.client.PutObject(ctx, request)
	if err != nil {
		return err
	}
	return nil
}
