package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type S3FileSystem struct {
	client S3Service
	bucket string
	prefix string
}

const s3Protocol = "s3://"

func NewS3FileSystem(client S3Service, bucket, prefix string) *S3FileSystem {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	return &S3FileSystem{
		bucket: bucket,
		prefix: prefix,
		client: client,
	}
}

// NewS3FileSystemFromURI loads the default AWS configuration and creates a
// file system rooted at s3://bucket/prefix.
func NewS3FileSystemFromURI(uri string) (*S3FileSystem, error) {
	bucket, prefix, err := parseS3URI(uri)
	if err != nil {
		return nil, err
	}

	cfg, err := config.LoadDefaultConfig(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}
	client := NewAWSS3Service(s3.NewFromConfig(cfg))

	return NewS3FileSystem(client, bucket, prefix), nil
}

func (fs *S3FileSystem) New(name string) File {
	if strings.HasPrefix(name, s3Protocol) {
		panic(fmt.Sprintf("creating a file with URI path (%s) not supported", name))
	}
	return &S3Object{
		bucket:   fs.bucket,
		key:      fs.prefix + name,
		name:     name,
		fs:       fs,
		buffer:   new(bytes.Buffer),
		fileMode: FILE_MODE_WRITE,
	}
}

func (fs *S3FileSystem) Open(name string) File {
	var bucket, key string
	if strings.HasPrefix(name, s3Protocol) {
		var err error
		bucket, key, err = parseS3URI(name)
		if err != nil {
			panic(fmt.Sprintf("invalid s3 URI: %s", name))
		}
	} else {
		key = fs.prefix + name
		bucket = fs.bucket
	}

	return &S3Object{
		bucket:   bucket,
		key:      key,
		name:     name,
		fs:       fs,
		fileMode: FILE_MODE_READ,
	}
}

func (fs *S3FileSystem) List() ([]string, error) {
	var names []string
	paginator := s3.NewListObjectsV2Paginator(fs.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(fs.bucket),
		Prefix: aws.String(fs.prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(context.Background())
		if err != nil {
			return nil, fmt.Errorf("listing s3://%s/%s: %w", fs.bucket, fs.prefix, err)
		}
		for _, obj := range page.Contents {
			names = append(names, strings.TrimPrefix(aws.ToString(obj.Key), fs.prefix))
		}
	}
	return names, nil
}

func parseS3URI(uri string) (string, string, error) {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("invalid s3 URI: %s", uri)
	}
	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/")
	return bucket, key, nil
}

var _ FileSystem = (*S3FileSystem)(nil)

type S3Object struct {
	bucket   string
	key      string
	name     string
	fs       *S3FileSystem
	buffer   *bytes.Buffer
	reader   *bytes.Reader
	size     int64
	fileMode FileMode
}

func (o *S3Object) Name() string {
	return o.name
}

func (o *S3Object) ReadAt(p []byte, off int64) (n int, err error) {
	if err := o.download(); err != nil {
		return 0, err
	}
	return o.reader.ReadAt(p, off)
}

// For now download the whole object the first time it's read.
func (o *S3Object) download() error {
	if o.reader != nil {
		return nil
	}
	output, err := o.fs.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: &o.bucket,
		Key:    &o.key,
	})
	if err != nil {
		if isNoSuchKeyErr(err) {
			return fmt.Errorf("reading %s: %w", o.URI(), ErrNotFound)
		}
		return err
	}
	defer output.Body.Close()

	data, err := io.ReadAll(output.Body)
	if err != nil {
		return err
	}
	o.reader = bytes.NewReader(data)
	o.size = int64(len(data))
	return nil
}

func (o *S3Object) Size() (int64, error) {
	if o.fileMode == FILE_MODE_READ {
		if err := o.download(); err != nil {
			return 0, err
		}
	}
	return o.size, nil
}

func (o *S3Object) Save() error {
	if o.fileMode == FILE_MODE_READ {
		panic("tried to save a read only file")
	}
	o.fileMode = FILE_MODE_READ
	b := o.buffer.Bytes()
	_, err := o.fs.client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: &o.bucket,
		Key:    &o.key,
		Body:   bytes.NewReader(b),
	})
	o.reader = bytes.NewReader(b)
	return err
}

// Write data to a buffer that is uploaded with `Save()`.
func (o *S3Object) Write(p []byte) (n int, err error) {
	if o.fileMode == FILE_MODE_READ {
		panic("tried to write to a read only file")
	}
	n, err = o.buffer.Write(p)
	o.size += int64(n)
	return n, err
}

func (o *S3Object) Delete() error {
	if o.fileMode == FILE_MODE_WRITE {
		panic("tried to delete a file being written")
	}
	_, err := o.fs.client.DeleteObject(context.Background(), &s3.DeleteObjectInput{
		Bucket: &o.bucket,
		Key:    &o.key,
	})
	return err
}

func (o *S3Object) URI() string {
	return s3Protocol + path.Join(o.bucket, o.key)
}

func isNoSuchKeyErr(err error) bool {
	var notFoundErr *types.NoSuchKey
	return errors.As(err, &notFoundErr)
}

var _ File = (*S3Object)(nil)
