// Package storage keeps uploaded audit files in an S3-compatible bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ErrObjectNotFound is returned by Get for a key that does not exist.
var ErrObjectNotFound = errors.New("object not found")

const maxFilenameLength = 100

// Object metadata keys. S3 lowercases user metadata, so these are lowercase.
const (
	metaEmail        = "email"
	metaLeadID       = "leadid"
	metaOriginalName = "originalname"
	metaUploadedAt   = "uploadedat"
)

// ObjectInfo describes a stored upload.
type ObjectInfo struct {
	ContentType  string
	Size         int64
	Email        string
	LeadID       string
	OriginalName string
	UploadedAt   time.Time
}

// ObjectStore persists and streams upload objects.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, info ObjectInfo) error
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
}

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Store implements ObjectStore on S3 or an S3-compatible endpoint such as R2.
type S3Store struct {
	client S3API
	bucket string
}

var _ ObjectStore = (*S3Store)(nil)

// NewS3Store wraps an existing client.
func NewS3Store(client S3API, bucket string) *S3Store {
	return &S3Store{client: client, bucket: bucket}
}

// NewS3Client builds an S3 client. A non-empty endpoint switches to path-style
// addressing against that endpoint.
func NewS3Client(cfg aws.Config, endpoint string) *s3.Client {
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
}

// Put uploads body under key with info stored as user metadata.
func (s *S3Store) Put(ctx context.Context, key string, body io.Reader, size int64, info ObjectInfo) error {
	uploadedAt := info.UploadedAt
	if uploadedAt.IsZero() {
		uploadedAt = time.Now()
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(info.ContentType),
		Metadata: map[string]string{
			metaEmail:        info.Email,
			metaLeadID:       info.LeadID,
			metaOriginalName: info.OriginalName,
			metaUploadedAt:   uploadedAt.UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// Get opens the object under key. The caller closes the returned body.
func (s *S3Store) Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, ObjectInfo{}, ErrObjectNotFound
		}
		return nil, ObjectInfo{}, fmt.Errorf("get object %s: %w", key, err)
	}

	info := ObjectInfo{
		ContentType:  aws.ToString(out.ContentType),
		Size:         aws.ToInt64(out.ContentLength),
		Email:        out.Metadata[metaEmail],
		LeadID:       out.Metadata[metaLeadID],
		OriginalName: out.Metadata[metaOriginalName],
	}
	if ts, parseErr := time.Parse(time.RFC3339, out.Metadata[metaUploadedAt]); parseErr == nil {
		info.UploadedAt = ts
	}
	if info.ContentType == "" {
		info.ContentType = "application/octet-stream"
	}
	return out.Body, info, nil
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// SanitizeFilename replaces characters outside [a-zA-Z0-9._-] with "_" and
// truncates to 100 characters.
func SanitizeFilename(name string) string {
	clean := unsafeChars.ReplaceAllString(name, "_")
	if len(clean) > maxFilenameLength {
		clean = clean[:maxFilenameLength]
	}
	return clean
}

// BuildKey returns uploads/YYYY/MM/{leadID|unknown}/{id}_{sanitized filename}.
func BuildKey(now time.Time, leadID, id, filename string) string {
	segment := SanitizeFilename(leadID)
	if segment == "" {
		segment = "unknown"
	}
	now = now.UTC()
	return fmt.Sprintf("uploads/%04d/%02d/%s/%s_%s",
		now.Year(), int(now.Month()), segment, id, SanitizeFilename(filename))
}
