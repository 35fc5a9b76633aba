package storage

import (
	"os"
	"path"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/pkg/errors"

	"github.com/dbguardian/dbguardian/model"
)

// OssTarget stores artifacts in an s3-compatible object store. Path
// style addressing keeps self-hosted endpoints like minio working.
type OssTarget struct {
	sess   *session.Session
	bucket string
	prefix string
}

func NewOssTarget(target model.TargetOSS) (*OssTarget, error) {
	sess, err := session.NewSession(&aws.Config{
		Endpoint:         aws.String(target.Endpoint),
		Region:           aws.String(target.Region),
		Credentials:      credentials.NewStaticCredentials(target.AccessKeyID, target.SecretAccessKey, ""),
		S3ForcePathStyle: aws.Bool(true),
	})
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return &OssTarget{
		sess:   sess,
		bucket: target.Bucket,
		prefix: target.Prefix,
	}, nil
}

func (t *OssTarget) Kind() string {
	return model.StorageOSS
}

func (t *OssTarget) key(name string) string {
	if t.prefix == "" {
		return name
	}
	return path.Join(t.prefix, name)
}

func (t *OssTarget) Write(localPath, name string) (model.BackupLocation, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return model.BackupLocation{}, errors.Wrap(err, "")
	}
	defer f.Close()

	key := t.key(name)
	uploader := s3manager.NewUploader(t.sess)
	if _, err = uploader.Upload(&s3manager.UploadInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(key),
		Body:   f,
	}); err != nil {
		return model.BackupLocation{}, errors.Wrapf(err, "upload %s to oss://%s/%s", localPath, t.bucket, key)
	}
	return model.BackupLocation{Kind: model.StorageOSS, Path: key, Bucket: t.bucket}, nil
}

func (t *OssTarget) Read(location model.BackupLocation, localPath string) error {
	f, err := os.Create(localPath)
	if err != nil {
		return errors.Wrap(err, "")
	}
	defer f.Close()

	downloader := s3manager.NewDownloader(t.sess)
	if _, err = downloader.Download(f, &s3.GetObjectInput{
		Bucket: aws.String(location.Bucket),
		Key:    aws.String(location.Path),
	}); err != nil {
		return errors.Wrapf(err, "download oss://%s/%s", location.Bucket, location.Path)
	}
	return nil
}

func (t *OssTarget) Remove(location model.BackupLocation) error {
	svc := s3.New(t.sess)
	if _, err := svc.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(location.Bucket),
		Key:    aws.String(location.Path),
	}); err != nil {
		return errors.Wrapf(err, "delete oss://%s/%s", location.Bucket, location.Path)
	}
	return nil
}

func (t *OssTarget) TestConnectivity() error {
	svc := s3.New(t.sess)
	if _, err := svc.HeadBucket(&s3.HeadBucketInput{
		Bucket: aws.String(t.bucket),
	}); err != nil {
		return errors.Wrapf(err, "head bucket %s", t.bucket)
	}
	return nil
}
