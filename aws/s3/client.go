package s3

import (
	"context"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
)

func NewClient(b AwsS3Bucket) (Client, error) {
	sess, err := NewSession(b)
	if err != nil {
		return nil, err
	}
	api := s3.New(sess)
	return NewClientWithAPI(b.Name, b.Prefix, api, s3manager.NewUploaderWithClient(api)), nil
}

func NewClientWithAPI(bucket, prefix string, api s3iface.S3API, uploader s3manageriface.UploaderAPI) Client {
	return &client{
		basicClient: NewBasicClientWithAPI(bucket, prefix, api),
		uploader:    uploader,
	}
}

type client struct {
	*basicClient
	uploader s3manageriface.UploaderAPI
}

func (s *client) Upload(ctx context.Context, key string, r io.Reader) (Object, error) {
	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.getKeyWithPrefix(key)),
		Body:   r,
	})
	if err != nil {
		return Object{}, err
	}
	// Read back the stored ETag; the loader records it as the file checksum.
	return s.Head(ctx, key)
}
