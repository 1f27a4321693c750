package store

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"
)

// S3API is the subset of the S3 client used by S3Store.
// Satisfied by *s3.Client; narrowed so tests can fake it.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Store persists each delta as one zstd-compressed object under
// <prefix><sessionID>/<timestamp>-<hash>. Object keys sort in append order,
// so a plain prefix listing reconstructs the log.
type S3Store struct {
	client S3API
	bucket string
	prefix string

	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewS3Store creates a document store over an S3 bucket.
//
// Parameters:
//   - client: S3 client from aws-sdk-go-v2 (or a test fake)
//   - bucket: bucket name
//   - prefix: key prefix for document logs (e.g. "collab/docs/")
func NewS3Store(client S3API, bucket, prefix string) (*S3Store, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("store: zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("store: zstd decoder: %w", err)
	}
	return &S3Store{
		client: client,
		bucket: bucket,
		prefix: prefix,
		enc:    enc,
		dec:    dec,
	}, nil
}

// objectKey builds a lexicographically append-ordered key for a delta.
func (s *S3Store) objectKey(sessionID string, delta []byte) string {
	sum := blake3.Sum256(delta)
	return fmt.Sprintf("%s%s/%020d-%s", s.prefix, sessionID,
		time.Now().UnixNano(), hex.EncodeToString(sum[:8]))
}

// Load lists the session's objects and folds them into a delta log.
func (s *S3Store) Load(ctx context.Context, sessionID string) ([]byte, error) {
	prefix := s.prefix + sessionID + "/"

	var records [][]byte
	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("store: s3 list %q: %w", sessionID, err)
		}

		for _, obj := range out.Contents {
			raw, err := s.getObject(ctx, aws.ToString(obj.Key))
			if err != nil {
				return nil, err
			}
			records = append(records, raw)
		}

		if out.NextContinuationToken == nil {
			break
		}
		token = out.NextContinuationToken
	}

	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return buildLog(records), nil
}

func (s *S3Store) getObject(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("store: s3 get %q: %w", key, err)
	}
	defer out.Body.Close()

	compressed, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("store: s3 read %q: %w", key, err)
	}
	raw, err := s.dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("store: s3 decompress %q: %w", key, err)
	}
	return raw, nil
}

// Append writes one compressed record object.
func (s *S3Store) Append(ctx context.Context, sessionID string, delta []byte) error {
	raw, err := encodeRecord(delta)
	if err != nil {
		return err
	}
	compressed := s.enc.EncodeAll(raw, nil)

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.objectKey(sessionID, delta)),
		Body:        bytes.NewReader(compressed),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return fmt.Errorf("store: s3 append %q: %w", sessionID, err)
	}
	return nil
}

// Close releases the compressor state. The S3 client is injected and stays
// owned by the caller.
func (s *S3Store) Close() error {
	s.dec.Close()
	return s.enc.Close()
}
