package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// s3API is the subset of the S3 client the store uses.
type s3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Config holds construction parameters for S3Store.
type S3Config struct {
	Bucket          string
	Region          string // default us-east-1
	Endpoint        string // optional; custom endpoint such as MinIO
	Prefix          string // optional key prefix inside the bucket
	AccessKeyID     string // optional (falls back to default credentials chain)
	SecretAccessKey string
	SessionToken    string
	PathStyle       bool
}

// S3Store implements KV on an S3 compatible bucket.
//
// Layout:
//
//	<prefix>records/<collection>/<key>          JSON envelope of the record
//	<prefix>index/<collection>/<index>/<key>    empty marker object
type S3Store struct {
	client s3API
	bucket string
	prefix string
}

// Compile-time interface check
var _ KV = (*S3Store)(nil)

type s3Envelope struct {
	Key       string    `json:"key"`
	Index     string    `json:"index,omitempty"`
	Value     []byte    `json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewS3Store creates an S3 store from cfg using the default AWS config chain.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return newS3Store(client, cfg.Bucket, cfg.Prefix), nil
}

func newS3Store(client s3API, bucket, prefix string) *S3Store {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3Store{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3Store) recordPrefix(collection string) string {
	return s.prefix + "records/" + url.PathEscape(collection) + "/"
}

func (s *S3Store) recordKey(collection, key string) string {
	return s.recordPrefix(collection) + url.PathEscape(key)
}

func (s *S3Store) indexPrefix(collection, index string) string {
	return s.prefix + "index/" + url.PathEscape(collection) + "/" + url.PathEscape(index) + "/"
}

// Get retrieves a record by key.
func (s *S3Store) Get(ctx context.Context, collection, key string) (*Record, error) {
	if err := checkArgs(collection, key); err != nil {
		return nil, err
	}
	return s.get(ctx, s.recordKey(collection, key))
}

func (s *S3Store) get(ctx context.Context, objectKey string) (*Record, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: aws.String(objectKey)})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get object %s: %w", objectKey, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", objectKey, err)
	}
	var env s3Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to decode object %s: %w", objectKey, err)
	}
	return &Record{Key: env.Key, Index: env.Index, Value: env.Value, UpdatedAt: env.UpdatedAt}, nil
}

// Put writes the record object and its index marker, removing a stale
// marker when the index value changed.
func (s *S3Store) Put(ctx context.Context, collection string, record *Record) error {
	if record == nil {
		return ErrInvalidArgument
	}
	if err := checkArgs(collection, record.Key); err != nil {
		return err
	}
	previous, err := s.Get(ctx, collection, record.Key)
	if err != nil {
		return err
	}

	env := s3Envelope{Key: record.Key, Index: record.Index, Value: record.Value, UpdatedAt: record.UpdatedAt}
	if env.UpdatedAt.IsZero() {
		env.UpdatedAt = time.Now().UTC()
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         aws.String(s.recordKey(collection, record.Key)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to put record: %w", err)
	}

	if previous != nil && previous.Index != record.Index && previous.Index != "" {
		if err := s.deleteObject(ctx, s.indexPrefix(collection, previous.Index)+url.PathEscape(record.Key)); err != nil {
			return err
		}
	}
	if record.Index != "" {
		_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: &s.bucket,
			Key:    aws.String(s.indexPrefix(collection, record.Index) + url.PathEscape(record.Key)),
			Body:   bytes.NewReader(nil),
		})
		if err != nil {
			return fmt.Errorf("failed to put index marker: %w", err)
		}
	}
	return nil
}

// Delete removes the record object and its index marker.
func (s *S3Store) Delete(ctx context.Context, collection, key string) (bool, error) {
	if err := checkArgs(collection, key); err != nil {
		return false, err
	}
	existing, err := s.Get(ctx, collection, key)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}
	if existing.Index != "" {
		if err := s.deleteObject(ctx, s.indexPrefix(collection, existing.Index)+url.PathEscape(key)); err != nil {
			return false, err
		}
	}
	if err := s.deleteObject(ctx, s.recordKey(collection, key)); err != nil {
		return false, err
	}
	return true, nil
}

func (s *S3Store) deleteObject(ctx context.Context, objectKey string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &s.bucket, Key: aws.String(objectKey)})
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", objectKey, err)
	}
	return nil
}

// All returns every record in collection ordered by key.
func (s *S3Store) All(ctx context.Context, collection string) ([]*Record, error) {
	if collection == "" {
		return nil, ErrInvalidArgument
	}
	keys, err := s.list(ctx, s.recordPrefix(collection))
	if err != nil {
		return nil, err
	}
	return s.fetch(ctx, keys)
}

// ByIndex lists the index markers for index and fetches their records.
func (s *S3Store) ByIndex(ctx context.Context, collection, index string) ([]*Record, error) {
	if collection == "" {
		return nil, ErrInvalidArgument
	}
	prefix := s.indexPrefix(collection, index)
	markers, err := s.list(ctx, prefix)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(markers))
	for _, m := range markers {
		keys = append(keys, s.recordPrefix(collection)+strings.TrimPrefix(m, prefix))
	}
	return s.fetch(ctx, keys)
}

func (s *S3Store) fetch(ctx context.Context, objectKeys []string) ([]*Record, error) {
	records := make([]*Record, 0, len(objectKeys))
	for _, k := range objectKeys {
		rec, err := s.get(ctx, k)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			records = append(records, rec)
		}
	}
	sortByKey(records)
	return records, nil
}

func (s *S3Store) list(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            &s.bucket,
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
		}
		for _, obj := range out.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
		if aws.ToBool(out.IsTruncated) && out.NextContinuationToken != nil {
			token = out.NextContinuationToken
			continue
		}
		return keys, nil
	}
}

// Close is a no-op; the S3 client holds no releasable resources.
func (s *S3Store) Close() error {
	return nil
}

func isNoSuchKey(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	return errors.As(err, &nf)
}
