package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the subset of the S3 client the source uses.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source reads a CSV feed stored as an S3 object.
type S3Source struct {
	client S3API
	bucket string
	key    string
	loc    *time.Location
	now    func() time.Time
}

// NewS3Source returns a source reading s3://bucket/key.
func NewS3Source(client S3API, bucket, key string, loc *time.Location) *S3Source {
	return &S3Source{client: client, bucket: bucket, key: key, loc: loc, now: time.Now}
}

// Name implements Source.
func (s *S3Source) Name() string { return "s3://" + s.bucket + "/" + s.key }

// Fetch implements Source. A missing object yields ErrAbsent.
func (s *S3Source) Fetch(ctx context.Context) ([]Record, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, ErrAbsent
		}
		return nil, fmt.Errorf("get object %s: %w", s.Name(), err)
	}
	defer out.Body.Close()

	recs, err := ParseCSV(out.Body, s.loc, s.now())
	if err != nil {
		return recs, fmt.Errorf("parse %s: %w", s.Name(), err)
	}
	return recs, nil
}
