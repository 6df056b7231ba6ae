package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// S3Storage keeps files on the local disk and mirrors them to a S3 bucket.
type S3Storage struct {
	*DiskStorage
	Bucket   Bucket
	s3Client *s3.S3
}

func NewS3Storage(bucket Bucket, local *DiskStorage) (*S3Storage, error) {
	client, err := bucket.CreateSVC()
	if err != nil {
		return nil, fmt.Errorf("storage: creating s3 client: %w", err)
	}
	return &S3Storage{
		DiskStorage: local,
		Bucket:      bucket,
		s3Client:    client,
	}, nil
}

// EnsureLocalFile downloads a S3 object locally, unless there is a local copy already
func (s *S3Storage) EnsureLocalFile(path string) error {
	if s.GetSize(path) >= 0 {
		return nil
	}
	resp, err := s.s3Client.GetObject(&s3.GetObjectInput{
		Bucket: &s.Bucket.Name,
		Key:    aws.String(s.Bucket.GetRemotePath(path)),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && aerr.Code() == s3.ErrCodeNoSuchKey {
			return fmt.Errorf("s3://%s/%s: %w", s.Bucket.Name, s.Bucket.GetRemotePath(path), fs.ErrNotExist)
		}
		return err
	}
	defer resp.Body.Close()

	_, err = s.Save(path, resp.Body)
	return err
}

// UpdateFile updates the remote S3 object (uploads the local copy)
func (s *S3Storage) UpdateFile(path, mimeType string) error {
	data, err := os.Open(s.GetFullPath(path))
	if err != nil {
		return err
	}
	defer data.Close()

	uploader := s3manager.NewUploaderWithClient(s.s3Client)
	input := s3manager.UploadInput{
		Bucket:      &s.Bucket.Name,
		Key:         aws.String(s.Bucket.GetRemotePath(path)),
		ContentType: &mimeType,
		Body:        data,
	}
	if s.Bucket.SSEEncryption != "" {
		input.ServerSideEncryption = &s.Bucket.SSEEncryption
	}
	_, err = uploader.Upload(&input)
	return err
}
