package storage

import (
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// Bucket is an S3 bucket the classifier is mirrored to.
type Bucket struct {
	Name          string
	Path          string // Prefix in the bucket
	Region        string
	Endpoint      string // Custom endpoint for S3 compatible services, AWS if empty
	AuthDetails   string // "key:secret", default AWS credential chain if empty
	SSEEncryption string
}

// GetRemotePath returns the object key for path.
func (b *Bucket) GetRemotePath(path string) string {
	prefix := strings.Trim(b.Path, "/")
	if prefix == "" {
		return path
	}
	return prefix + "/" + path
}

func (b *Bucket) CreateSVC() (*s3.S3, error) {
	cfg := aws.NewConfig().WithRegion(b.Region)
	if b.Endpoint != "" {
		cfg = cfg.WithEndpoint(b.Endpoint).WithS3ForcePathStyle(true)
	}
	if key, secret, ok := strings.Cut(b.AuthDetails, ":"); ok {
		cfg = cfg.WithCredentials(credentials.NewStaticCredentials(key, secret, ""))
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, err
	}
	return s3.New(sess), nil
}
