// Package vstore wraps the S3-compatible object-store client used by the
// Fetcher: session construction, object-body download, and delimited
// prefix listing.
package vstore

import (
	"context"
	"io"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/pkg/errors"
)

// Config carries the settings required to reach a single bucket.
type Config struct {
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string // optional; aws-sdk-go defaults to us-east-1 style auto-detection
	Endpoint  string // optional; set for non-AWS S3-compatible endpoints
}

// Key is one entry in a delimited bucket listing: either a concrete
// object (IsPrefix false) or a common prefix representing a directory
// (IsPrefix true).
type Key struct {
	Name         string // object key or common prefix, relative to the bucket root
	IsPrefix     bool
	Size         int64
	LastModified time.Time
}

// Client mediates between cache paths (already translated to object-store
// keys by the caller) and the remote bucket.
type Client struct {
	bucket string
	s3     *s3.S3
}

// New constructs a Client, establishing the AWS session the way
// backend/s3/s3.go's NewFs does: static credentials, optional region and
// custom endpoint for S3-compatible stores.
func New(cfg Config) (*Client, error) {
	awsCfg := aws.NewConfig().
		WithCredentials(credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")).
		WithS3ForcePathStyle(true)
	if cfg.Region != "" {
		awsCfg = awsCfg.WithRegion(cfg.Region)
	}
	if cfg.Endpoint != "" {
		awsCfg = awsCfg.WithEndpoint(cfg.Endpoint)
	}

	sess, err := session.NewSessionWithOptions(session.Options{Config: *awsCfg})
	if err != nil {
		return nil, errors.Wrap(err, "failed to establish object-store session")
	}

	return &Client{
		bucket: cfg.Bucket,
		s3:     s3.New(sess),
	}, nil
}

// List lists the bucket under prefix with delimiter "/", returning the
// direct children only: concrete keys and common prefixes, not a
// recursive walk.
func (c *Client) List(ctx context.Context, prefix string) ([]Key, error) {
	delimiter := "/"
	var out []Key

	input := &s3.ListObjectsV2Input{
		Bucket:    aws.String(c.bucket),
		Delimiter: aws.String(delimiter),
		Prefix:    aws.String(prefix),
	}

	err := c.s3.ListObjectsV2PagesWithContext(ctx, input, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, cp := range page.CommonPrefixes {
			if cp.Prefix == nil {
				continue
			}
			out = append(out, Key{Name: *cp.Prefix, IsPrefix: true})
		}
		for _, obj := range page.Contents {
			if obj.Key == nil || *obj.Key == prefix {
				// S3 lists the prefix "directory marker" object itself
				// when one exists; it is not a child.
				continue
			}
			k := Key{Name: *obj.Key, IsPrefix: false}
			if obj.Size != nil {
				k.Size = *obj.Size
			}
			if obj.LastModified != nil {
				k.LastModified = *obj.LastModified
			}
			out = append(out, k)
		}
		return true
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list prefix %q", prefix)
	}

	return out, nil
}

// Get downloads the whole body of key, writing it to w. The caller owns
// w and is responsible for its placement (the Fetcher writes to a scratch
// file) and for discarding w's partial contents on error.
func (c *Client) Get(ctx context.Context, key string, w io.Writer) (size int64, lastModified time.Time, err error) {
	resp, err := c.s3.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return 0, time.Time{}, ErrNotFound
		}
		return 0, time.Time{}, errors.Wrapf(err, "failed to fetch key %q", key)
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return 0, time.Time{}, errors.Wrapf(err, "failed to download body of key %q", key)
	}

	var mtime time.Time
	if resp.LastModified != nil {
		mtime = *resp.LastModified
	}
	return n, mtime, nil
}

// ErrNotFound is returned by Get when the remote key does not exist; the
// Fetcher translates this to the filesystem's "no such entry" error.
var ErrNotFound = errors.New("object not found")

func isNotFound(err error) bool {
	if reqErr, ok := err.(awserr.RequestFailure); ok {
		return reqErr.StatusCode() == 404
	}
	if awsErr, ok := err.(awserr.Error); ok {
		return awsErr.Code() == s3.ErrCodeNoSuchKey
	}
	return false
}
