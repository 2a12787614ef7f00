package state

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/shopspring/decimal"
)

// ObjectAPI is the subset of the S3 client the store needs.
type ObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store keeps the document in a single object. PutObject replaces the
// object as a whole, so a reader never sees a partial write.
type S3Store struct {
	client ObjectAPI
	bucket string
	key    string
	seedPE decimal.Decimal
}

func NewS3Store(client ObjectAPI, bucket, key string, seedPE decimal.Decimal) *S3Store {
	return &S3Store{client: client, bucket: bucket, key: key, seedPE: seedPE}
}

// NewS3StoreFromURL builds a client from the default AWS credential chain.
func NewS3StoreFromURL(ctx context.Context, location string, seedPE decimal.Decimal) (*S3Store, error) {
	bucket, key, err := parseS3URL(location)
	if err != nil {
		return nil, err
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewS3Store(s3.NewFromConfig(cfg), bucket, key, seedPE), nil
}

func parseS3URL(location string) (string, string, error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", "", fmt.Errorf("parse state url: %w", err)
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("invalid s3 location %q", location)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", fmt.Errorf("s3 location %q has no object key", location)
	}
	return u.Host, key, nil
}

func (s *S3Store) Location() string {
	return "s3://" + s.bucket + "/" + s.key
}

func (s *S3Store) Load(ctx context.Context) (Portfolio, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return Default(s.seedPE), nil
		}
		return Portfolio{}, fmt.Errorf("get %s: %w", s.Location(), err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return Portfolio{}, fmt.Errorf("read %s: %w", s.Location(), err)
	}
	return decode(data)
}

func (s *S3Store) Save(ctx context.Context, p Portfolio) error {
	data, err := encode(p)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", s.Location(), err)
	}
	return nil
}
