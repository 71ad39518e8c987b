package vault

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"docchat/internal/docchat"
)

// s3Timeout bounds each vault operation.
const s3Timeout = 2 * time.Minute

// Environment variables holding static S3 credentials. When unset the
// SDK's default credential chain is used.
const (
	envS3AccessKey = "DOCCHAT_S3_ACCESS_KEY_ID"
	envS3SecretKey = "DOCCHAT_S3_SECRET_ACCESS_KEY"
)

// S3Vault stores transcripts as objects in an S3 (or S3-compatible) bucket:
//
//	s3://<bucket>/<prefix>/<ownerID>/<sessionID>.md
type S3Vault struct {
	name       string
	bucket     string
	prefix     string
	client     *s3.Client
	uploader   *manager.Uploader
	downloader *manager.Downloader
}

// S3Options configures NewS3Vault.
type S3Options struct {
	Bucket   string
	Prefix   string
	Region   string
	Endpoint string // optional, for S3-compatible services; enables path-style addressing
}

// NewS3Vault creates a vault backed by an S3 bucket.
func NewS3Vault(ctx context.Context, name string, opts S3Options) (*S3Vault, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 vault requires s3_bucket to be set")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if key, secret := os.Getenv(envS3AccessKey), os.Getenv(envS3SecretKey); key != "" && secret != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(key, secret, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Vault{
		name:       name,
		bucket:     opts.Bucket,
		prefix:     strings.Trim(opts.Prefix, "/"),
		client:     client,
		uploader:   manager.NewUploader(client),
		downloader: manager.NewDownloader(client),
	}, nil
}

func (v *S3Vault) ownerPrefix(ownerID string) string {
	return path.Join(v.prefix, ownerID) + "/"
}

func (v *S3Vault) key(ownerID, sessionID string) (string, error) {
	if err := validateID(ownerID); err != nil {
		return "", err
	}
	if err := validateID(sessionID); err != nil {
		return "", err
	}
	return v.ownerPrefix(ownerID) + sessionID + transcriptExt, nil
}

// PutTranscript uploads a transcript, replacing any previous export of the session.
func (v *S3Vault) PutTranscript(ownerID, sessionID string, r io.Reader, size int64) error {
	key, err := v.key(ownerID, sessionID)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), s3Timeout)
	defer cancel()

	counter := &countingReader{r: r}
	_, err = v.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(v.bucket),
		Key:         aws.String(key),
		Body:        counter,
		ContentType: aws.String("text/markdown; charset=utf-8"),
	})
	if err != nil {
		return fmt.Errorf("uploading transcript: %w", err)
	}
	if counter.n != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, counter.n)
	}
	return nil
}

// GetTranscript downloads a transcript and writes it to w.
func (v *S3Vault) GetTranscript(ownerID, sessionID string, w io.Writer) error {
	key, err := v.key(ownerID, sessionID)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), s3Timeout)
	defer cancel()

	buf := manager.NewWriteAtBuffer(nil)
	_, err = v.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return fmt.Errorf("transcript not found: %s", sessionID)
		}
		return fmt.Errorf("downloading transcript: %w", err)
	}

	if _, err := io.Copy(w, bytes.NewReader(buf.Bytes())); err != nil {
		return fmt.Errorf("failed to write transcript: %w", err)
	}
	return nil
}

// ListTranscripts returns the exported session IDs for an owner, sorted.
func (v *S3Vault) ListTranscripts(ownerID string) ([]string, error) {
	if err := validateID(ownerID); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), s3Timeout)
	defer cancel()

	prefix := v.ownerPrefix(ownerID)
	paginator := s3.NewListObjectsV2Paginator(v.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(v.bucket),
		Prefix: aws.String(prefix),
	})

	ids := []string{}
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing transcripts: %w", err)
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			if strings.Contains(name, "/") || !strings.HasSuffix(name, transcriptExt) {
				continue
			}
			ids = append(ids, strings.TrimSuffix(name, transcriptExt))
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// ValidateSetup verifies that the bucket exists and is reachable.
func (v *S3Vault) ValidateSetup() error {
	ctx, cancel := context.WithTimeout(context.Background(), s3Timeout)
	defer cancel()

	if _, err := v.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(v.bucket)}); err != nil {
		return fmt.Errorf("s3 bucket %s not accessible: %w", v.bucket, err)
	}
	return nil
}

// countingReader counts bytes read through it.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// Compile-time check that S3Vault implements docchat.Vault interface
var _ docchat.Vault = (*S3Vault)(nil)
