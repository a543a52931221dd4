package s3

import (
	"fmt"
	"net/url"
	"strings"
)

type AwsS3Bucket struct {
	Name     string `errorTxt:"bucket name" mandatory:"yes"`
	Prefix   string `errorTxt:"bucket prefix"`
	Region   string `errorTxt:"bucket region" mandatory:"yes"`
	Endpoint string `errorTxt:"S3 endpoint override"`
}

// URL returns s3://<bucket>[/<prefix>]/ for use in stage DDL.
func (b AwsS3Bucket) URL() string {
	if b.Prefix == "" {
		return fmt.Sprintf("s3://%v/", b.Name)
	}
	return fmt.Sprintf("s3://%v/%v/", b.Name, strings.Trim(b.Prefix, "/"))
}

func (b AwsS3Bucket) String() string {
	return fmt.Sprintf("%v (region %v)", b.URL(), b.Region)
}

// ParseDSN expects bucketPrefix to be of the form [s3://]<bucket>/<prefix>
// It returns an AwsS3Bucket populated with the components of bucketPrefix and the supplied region.
// If there is a parsing error it returns an error.
func ParseDSN(bucketPrefix string, region string) (retval AwsS3Bucket, err error) {
	expectedScheme := "s3"
	if !strings.Contains(bucketPrefix, "://") { // if the scheme is missing...
		bucketPrefix = expectedScheme + "://" + bucketPrefix // url.Parse needs it to find the host.
	}
	s3url, err := url.Parse(bucketPrefix)
	if err != nil {
		return retval, fmt.Errorf("error parsing S3 URL: %v", err)
	}
	if s3url.Scheme != expectedScheme {
		return retval, fmt.Errorf("expected S3 URL scheme %q but got %q", expectedScheme, s3url.Scheme)
	}
	if region == "" {
		return retval, fmt.Errorf("value expected for bucket region")
	}
	retval.Name = s3url.Host
	if retval.Name == "" {
		return retval, fmt.Errorf("DSN failed to parse bucket name")
	}
	retval.Prefix = strings.Trim(s3url.Path, "/")
	retval.Region = region
	return
}
