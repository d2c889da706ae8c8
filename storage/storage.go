// Package storage provides the S3-compatible object store client used to
// archive rotated log segments.
//
// The underlying client is constructed lazily on first use and memoized
// for the lifetime of the S3Storage instance. When both an access key and
// a secret key are configured the client authenticates with them;
// otherwise credentials are resolved through the AWS chain (environment,
// shared credentials file, IAM role).
package storage

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/rollarc/rollarc/logger"
	"github.com/rollarc/rollarc/pkg/metrics"
)

// Options configures an S3Storage.
type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseTLS    bool
	Trace     bool
}

// S3Storage uploads local files to an S3-compatible object store.
type S3Storage struct {
	opts Options

	once      sync.Once
	client    *minio.Client
	clientErr error
}

// New creates an S3Storage. The network client is not constructed here;
// construction is deferred to the first upload.
func New(opts Options) (*S3Storage, error) {
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	if (opts.AccessKey == "") != (opts.SecretKey == "") {
		return nil, fmt.Errorf("s3 access key and secret key must be set together")
	}
	return &S3Storage{opts: opts}, nil
}

// Bucket returns the configured bucket name.
func (s *S3Storage) Bucket() string {
	return s.opts.Bucket
}

// getClient returns the memoized client, constructing it on first call.
// Construction happens at most once even under concurrent first use; a
// construction failure is memoized the same way.
func (s *S3Storage) getClient() (*minio.Client, error) {
	s.once.Do(func() {
		var creds *credentials.Credentials
		if s.opts.AccessKey != "" && s.opts.SecretKey != "" {
			creds = credentials.NewStaticV4(s.opts.AccessKey, s.opts.SecretKey, "")
		} else {
			creds = credentials.NewChainCredentials([]credentials.Provider{
				&credentials.EnvAWS{},
				&credentials.FileAWSCredentials{},
				&credentials.IAM{},
			})
		}

		client, err := minio.New(s.opts.Endpoint, &minio.Options{
			Creds:  creds,
			Secure: s.opts.UseTLS,
		})
		if err != nil {
			s.clientErr = fmt.Errorf("failed to initialize S3 client for %s: %w", s.opts.Endpoint, err)
			logger.Error("STORAGE: Failed to initialize S3 client", "endpoint", s.opts.Endpoint, "error", err)
			return
		}

		if s.opts.Trace {
			client.TraceOn(os.Stdout)
		}

		s.client = client
		logger.Debug("STORAGE: S3 client initialized", "endpoint", s.opts.Endpoint, "authenticated", s.opts.AccessKey != "")
	})
	return s.client, s.clientErr
}

// PutFile uploads the file at localPath to the configured bucket under key.
// The call blocks until the upload completes or fails; the client applies
// its own network timeouts.
func (s *S3Storage) PutFile(ctx context.Context, key, localPath string) error {
	client, err := s.getClient()
	if err != nil {
		metrics.S3OperationsTotal.WithLabelValues("PUT", "error").Inc()
		return err
	}

	start := time.Now()
	_, err = client.FPutObject(ctx, s.opts.Bucket, key, localPath, minio.PutObjectOptions{
		ContentType:    "text/plain",
		SendContentMd5: true,
	})
	metrics.S3OperationDuration.WithLabelValues("PUT").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.S3OperationsTotal.WithLabelValues("PUT", "error").Inc()
		return fmt.Errorf("failed to upload %s to bucket %s as %s: %w", localPath, s.opts.Bucket, key, err)
	}

	metrics.S3OperationsTotal.WithLabelValues("PUT", "success").Inc()
	return nil
}
