package gifio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/grailbio/base/errors"
)

const s3Scheme = "s3://"

// parseS3 splits s3://bucket/key.
func parseS3(location string) (bucket, key string, ok bool) {
	if !strings.HasPrefix(location, s3Scheme) {
		return "", "", false
	}
	rest := strings.TrimPrefix(location, s3Scheme)
	i := strings.IndexByte(rest, '/')
	if i <= 0 || i == len(rest)-1 {
		return "", "", false
	}
	return rest[:i], rest[i+1:], true
}

func readLocation(ctx context.Context, location string) ([]byte, error) {
	if strings.HasPrefix(location, s3Scheme) {
		bucket, key, ok := parseS3(location)
		if !ok {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("malformed s3 location %q", location))
		}
		sess, err := session.NewSession()
		if err != nil {
			return nil, errors.E(errors.Unavailable, "aws session", err)
		}
		buf := aws.NewWriteAtBuffer(nil)
		_, err = s3manager.NewDownloader(sess).DownloadWithContext(ctx, buf, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			if aerr, ok := err.(awserr.Error); ok && aerr.Code() == s3.ErrCodeNoSuchKey {
				return nil, errors.E(errors.NotExist, location, err)
			}
			return nil, errors.E(errors.Net, fmt.Sprintf("download %s", location), err)
		}
		return buf.Bytes(), nil
	}

	b, err := os.ReadFile(location)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.E(errors.NotExist, location, err)
		}
		return nil, errors.E(fmt.Sprintf("read %s", location), err)
	}
	return b, nil
}

func writeLocation(ctx context.Context, location string, b []byte) error {
	if strings.HasPrefix(location, s3Scheme) {
		bucket, key, ok := parseS3(location)
		if !ok {
			return errors.E(errors.Invalid, fmt.Sprintf("malformed s3 location %q", location))
		}
		sess, err := session.NewSession()
		if err != nil {
			return errors.E(errors.Unavailable, "aws session", err)
		}
		_, err = s3manager.NewUploader(sess).UploadWithContext(ctx, &s3manager.UploadInput{
			Bucket:      aws.String(bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(b),
			ContentType: aws.String("image/gif"),
		})
		if err != nil {
			return errors.E(errors.Net, fmt.Sprintf("upload %s", location), err)
		}
		return nil
	}
	if err := os.WriteFile(location, b, 0o644); err != nil {
		return errors.E(fmt.Sprintf("write %s", location), err)
	}
	return nil
}
