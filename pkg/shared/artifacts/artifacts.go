package artifacts

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/warden/internal/config"
	"github.com/scan-io-git/warden/pkg/shared/files"
)

// GetArtifactName build returns artifact name.
// Example: scan_4b1f..._2026-03-01T08:28:46Z.warden-artifact.
func GetArtifactName(command, runID string, t time.Time) string {
	ts := t.UTC().Format(time.RFC3339)
	return fmt.Sprintf("%s_%s_%s.warden-artifact", command, runID, ts)
}

// SaveArtifactJSON writes payload to <artifacts>/<name>.json and returns the full path.
func SaveArtifactJSON(cfg *config.Config, logger hclog.Logger, command, runID string, payload interface{}) (string, error) {
	dir := config.GetArtifactsFolder(cfg)
	path := filepath.Join(dir, GetArtifactName(command, runID, time.Now())+".json")

	if err := files.SaveJSON(path, payload); err != nil {
		return path, fmt.Errorf("error writing artifact: %w", err)
	}
	logger.Info("artifact saved to file", "path", path)
	return path, nil
}

// Uploader ships saved artifacts to object storage.
type Uploader struct {
	api    s3manageriface.UploaderAPI
	bucket string
	prefix string
	logger hclog.Logger
}

// NewS3Uploader returns nil when no bucket is configured.
func NewS3Uploader(cfg *config.Config, logger hclog.Logger) (*Uploader, error) {
	s3cfg := cfg.Artifacts.S3
	if s3cfg.Bucket == "" {
		return nil, nil
	}
	awsCfg := aws.NewConfig()
	if s3cfg.Region != "" {
		awsCfg = awsCfg.WithRegion(s3cfg.Region)
	}
	sess, err := session.NewSessionWithOptions(session.Options{
		Config:            *awsCfg,
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create aws session: %w", err)
	}
	return NewUploader(s3manager.NewUploader(sess), s3cfg.Bucket, s3cfg.Prefix, logger), nil
}

// NewUploader wraps an existing upload API.
func NewUploader(api s3manageriface.UploaderAPI, bucket, prefix string, logger hclog.Logger) *Uploader {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Uploader{api: api, bucket: bucket, prefix: strings.Trim(prefix, "/"), logger: logger}
}

// Key returns the object key of a local artifact.
func (u *Uploader) Key(localPath string) string {
	return path.Join(u.prefix, filepath.Base(localPath))
}

// Upload stores a local file and returns its location.
func (u *Uploader) Upload(ctx context.Context, localPath string) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open artifact %q: %w", localPath, err)
	}
	defer file.Close()

	result, err := u.api.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(u.Key(localPath)),
		Body:        file,
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok {
			return "", fmt.Errorf("artifact upload failed (%s): %s", aerr.Code(), aerr.Message())
		}
		return "", fmt.Errorf("artifact upload failed: %w", err)
	}
	u.logger.Info("artifact uploaded", "location", result.Location)
	return result.Location, nil
}
