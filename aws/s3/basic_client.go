package s3

import (
	"bytes"
	"context"
	"io/ioutil"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// NewSession builds an AWS session for bucket b.
// An empty endpoint uses the default AWS endpoint resolution; credentials come from the standard AWS chain.
func NewSession(b AwsS3Bucket) (*session.Session, error) {
	awsConfig := aws.NewConfig()
	awsConfig.Region = aws.String(b.Region)
	if b.Endpoint != "" {
		awsConfig.Endpoint = aws.String(b.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}
	return session.NewSession(awsConfig)
}

func NewBasicClient(b AwsS3Bucket) (BasicClient, error) {
	sess, err := NewSession(b)
	if err != nil {
		return nil, err
	}
	return NewBasicClientWithAPI(b.Name, b.Prefix, s3.New(sess)), nil
}

func NewBasicClientWithAPI(bucket, prefix string, api s3iface.S3API) *basicClient {
	return &basicClient{
		bucket: strings.TrimPrefix(bucket, "s3://"),
		prefix: strings.Trim(prefix, "/"),
		api:    api,
	}
}

type basicClient struct {
	bucket string
	prefix string
	api    s3iface.S3API
}

func (s *basicClient) List(ctx context.Context, prefix string) (objects []Object, err error) {
	objects = make([]Object, 0)
	params := &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		MaxKeys: aws.Int64(1000),
		Prefix:  aws.String(s.getKeyWithPrefix(prefix)),
	}
	err = s.api.ListObjectsV2PagesWithContext(ctx, params, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, v := range page.Contents {
			objects = append(objects, Object{
				Key:          s.trimPrefix(aws.StringValue(v.Key)),
				ETag:         strings.Trim(aws.StringValue(v.ETag), `"`),
				Size:         aws.Int64Value(v.Size),
				LastModified: aws.TimeValue(v.LastModified),
			})
		}
		return true // fetch every page.
	})
	if err != nil {
		return nil, err
	}
	return objects, nil
}

func (s *basicClient) Get(ctx context.Context, key string) ([]byte, error) {
	res, err := s.api.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.getKeyWithPrefix(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	defer res.Body.Close()
	return ioutil.ReadAll(res.Body)
}

func (s *basicClient) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.api.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.getKeyWithPrefix(key)),
		Body:   bytes.NewReader(data),
	})
	return err
}

func (s *basicClient) Head(ctx context.Context, key string) (Object, error) {
	res, err := s.api.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.getKeyWithPrefix(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return Object{}, ErrKeyNotFound
		}
		return Object{}, err
	}
	return Object{
		Key:          key,
		ETag:         strings.Trim(aws.StringValue(res.ETag), `"`),
		Size:         aws.Int64Value(res.ContentLength),
		LastModified: aws.TimeValue(res.LastModified),
	}, nil
}

func (s *basicClient) Delete(ctx context.Context, key string) error {
	_, err := s.api.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.getKeyWithPrefix(key)),
	})
	return err
}

func (s *basicClient) getKeyWithPrefix(key string) string {
	if s.prefix != "" {
		return s.prefix + "/" + strings.TrimLeft(key, "/") // ensure a single slash after prefix.
	}
	return key
}

func (s *basicClient) trimPrefix(key string) string {
	if s.prefix != "" {
		return strings.TrimPrefix(key, s.prefix+"/")
	}
	return key
}

func isNotFound(err error) bool {
	if awsErr, ok := err.(awserr.Error); ok {
		switch awsErr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound": // HEAD requests have no body so the code is the bare status text.
			return true
		}
	}
	return false
}
