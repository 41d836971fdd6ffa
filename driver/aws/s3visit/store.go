// Package s3visit stores visit records as JSON objects in an S3 bucket.
package s3visit

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/subaru-pfs/seqno/driver/aws/internal/awsx"
	"github.com/subaru-pfs/seqno/driver/aws/internal/s3x"
	"github.com/subaru-pfs/seqno/internal/syncx"
	"github.com/subaru-pfs/seqno/marshaler"
	"github.com/subaru-pfs/seqno/registrar"
	"github.com/subaru-pfs/seqno/visit"
)

// Prefix is the prefix of every object key written by a [RecordStore].
const Prefix = "pfs_visit/"

// object is the JSON representation of a [visit.Record].
type object struct {
	Visit    visit.ID  `json:"pfs_visit_id"`
	Caller   *string   `json:"caller"`
	DesignID *int64    `json:"pfs_design_id"`
	IssuedAt time.Time `json:"issued_at"`
}

var objectMarshaler = marshaler.NewJSON[object]()

// RecordStore is an implementation of [registrar.RecordStore] that writes one
// object per visit to an S3 bucket.
//
// Objects are written conditionally, so the record of a visit can never be
// overwritten.
type RecordStore struct {
	client    *s3.Client
	bucket    string
	onRequest func(any) []func(*s3.Options)

	createBucketOnce syncx.SucceedOnce
}

var _ registrar.RecordStore = (*RecordStore)(nil)

// Option is a functional option that changes the behavior of [NewRecordStore].
type Option func(*RecordStore)

// WithRequestHook is an [Option] that configures fn as a pre-request hook.
//
// Before each S3 API request, fn is passed a pointer to the input struct,
// e.g. [s3.PutObjectInput], which it may modify in-place.
func WithRequestHook(fn func(any) []func(*s3.Options)) Option {
	return func(s *RecordStore) {
		s.onRequest = fn
	}
}

// NewRecordStore returns a [RecordStore] that writes to the given bucket. The
// bucket is created on first use if it does not already exist.
func NewRecordStore(
	client *s3.Client,
	bucket string,
	options ...Option,
) *RecordStore {
	if bucket == "" {
		panic("bucket name must not be empty")
	}

	s := &RecordStore{
		client: client,
		bucket: bucket,
	}

	for _, opt := range options {
		opt(s)
	}

	return s
}

// Key returns the object key used for the record of v.
func Key(v visit.ID) string {
	return Prefix + v.String() + ".json"
}

// Insert writes an object describing rec.
//
// It returns a [registrar.DuplicateError] if an object for the same visit
// already exists.
func (s *RecordStore) Insert(ctx context.Context, rec visit.Record) error {
	if err := s.createBucketOnce.Do(ctx, s.createBucket); err != nil {
		return fmt.Errorf("cannot create bucket %q: %w", s.bucket, err)
	}

	obj := object{
		Visit:    rec.Visit,
		IssuedAt: rec.IssuedAt.UTC(),
	}

	if rec.Caller != "" {
		obj.Caller = &rec.Caller
	}

	if rec.DesignID.IsResolved() {
		d := int64(rec.DesignID)
		obj.DesignID = &d
	}

	data, err := objectMarshaler.Marshal(obj)
	if err != nil {
		return fmt.Errorf("cannot marshal record of visit %s: %w", rec.Visit, err)
	}

	_, err = awsx.Do(
		ctx,
		s.client.PutObject,
		s.onRequest,
		&s3.PutObjectInput{
			Bucket:        aws.String(s.bucket),
			Key:           aws.String(Key(rec.Visit)),
			IfNoneMatch:   aws.String("*"),
			ContentType:   aws.String("application/json"),
			ContentLength: aws.Int64(int64(len(data))),
			Body:          s3x.NewReadSeeker(data),
		},
	)

	if s3x.IsConflict(err) {
		return registrar.DuplicateError{Visit: rec.Visit}
	}

	if err != nil {
		return fmt.Errorf("cannot put record of visit %s: %w", rec.Visit, err)
	}

	return nil
}

// Records returns every record in the bucket, ordered by visit.
func (s *RecordStore) Records(ctx context.Context) ([]visit.Record, error) {
	var (
		records []visit.Record
		token   *string
	)

	for {
		list, err := awsx.Do(
			ctx,
			s.client.ListObjectsV2,
			s.onRequest,
			&s3.ListObjectsV2Input{
				Bucket:            aws.String(s.bucket),
				Prefix:            aws.String(Prefix),
				ContinuationToken: token,
			},
		)
		if s3x.IsNotExists(err) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("cannot list records: %w", err)
		}

		for _, item := range list.Contents {
			if !strings.HasSuffix(aws.ToString(item.Key), ".json") {
				continue
			}

			rec, err := s.get(ctx, aws.ToString(item.Key))
			if err != nil {
				return nil, err
			}

			records = append(records, rec)
		}

		if !aws.ToBool(list.IsTruncated) {
			return records, nil
		}

		token = list.NextContinuationToken
	}
}

func (s *RecordStore) get(ctx context.Context, key string) (visit.Record, error) {
	res, err := awsx.Do(
		ctx,
		s.client.GetObject,
		s.onRequest,
		&s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		},
	)
	if err != nil {
		return visit.Record{}, fmt.Errorf("cannot get %q: %w", key, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return visit.Record{}, fmt.Errorf("cannot read %q: %w", key, err)
	}

	obj, err := objectMarshaler.Unmarshal(data)
	if err != nil {
		return visit.Record{}, fmt.Errorf("cannot unmarshal %q: %w", key, err)
	}

	if err := obj.Visit.Validate(); err != nil {
		return visit.Record{}, fmt.Errorf("%q is corrupt: %w", key, err)
	}

	rec := visit.Record{
		Visit:    obj.Visit,
		DesignID: visit.UnresolvedDesignID,
		IssuedAt: obj.IssuedAt,
	}

	if obj.Caller != nil {
		rec.Caller = *obj.Caller
	}

	if obj.DesignID != nil {
		rec.DesignID = visit.DesignID(*obj.DesignID)
	}

	return rec, nil
}

func (s *RecordStore) createBucket(ctx context.Context) error {
	return s3x.CreateBucketIfNotExists(
		ctx,
		s.client,
		s.bucket,
		s.onRequest,
	)
}
