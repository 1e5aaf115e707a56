package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrObjectNotFound is returned when the requested object does not exist.
var ErrObjectNotFound = errors.New("object not found")

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Client wraps a MinIO connection for one bucket. The bucket is ensured once
// on first use; the client itself is constructed eagerly and shared for the
// process lifetime.
type Client struct {
	mc     *minio.Client
	bucket string

	ensureOnce sync.Once
	ensureErr  error
}

type ObjectInfo struct {
	Name         string
	Size         int64
	LastModified time.Time
}

func New(cfg Config) (*Client, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client failed: %w", err)
	}
	return &Client{mc: mc, bucket: cfg.Bucket}, nil
}

func (c *Client) ensureBucket(ctx context.Context) error {
	c.ensureOnce.Do(func() {
		exists, err := c.mc.BucketExists(ctx, c.bucket)
		if err != nil {
			c.ensureErr = fmt.Errorf("check bucket %q failed: %w", c.bucket, err)
			return
		}
		if exists {
			return
		}
		if err := c.mc.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
			// A concurrent creator winning the race is fine.
			resp := minio.ToErrorResponse(err)
			if resp.Code == "BucketAlreadyOwnedByYou" || resp.Code == "BucketAlreadyExists" {
				return
			}
			c.ensureErr = fmt.Errorf("create bucket %q failed: %w", c.bucket, err)
		}
	})
	return c.ensureErr
}

func (c *Client) Put(ctx context.Context, name string, data []byte, contentType string) error {
	if err := c.ensureBucket(ctx); err != nil {
		return err
	}
	_, err := c.mc.PutObject(ctx, c.bucket, name, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("put object %q failed: %w", name, err)
	}
	return nil
}

func (c *Client) Get(ctx context.Context, name string) ([]byte, error) {
	if err := c.ensureBucket(ctx); err != nil {
		return nil, err
	}
	obj, err := c.mc.GetObject(ctx, c.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %q failed: %w", name, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("read object %q failed: %w", name, err)
	}
	return data, nil
}

func (c *Client) Remove(ctx context.Context, name string) error {
	if err := c.ensureBucket(ctx); err != nil {
		return err
	}
	if err := c.mc.RemoveObject(ctx, c.bucket, name, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %q failed: %w", name, err)
	}
	return nil
}

func (c *Client) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	if err := c.ensureBucket(ctx); err != nil {
		return nil, err
	}

	var infos []ObjectInfo
	for obj := range c.mc.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list objects with prefix %q failed: %w", prefix, obj.Err)
		}
		infos = append(infos, ObjectInfo{
			Name:         obj.Key,
			Size:         obj.Size,
			LastModified: obj.LastModified,
		})
	}
	return infos, nil
}
