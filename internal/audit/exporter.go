// Package audit archives deployment history snapshots to an s3 bucket for
// teams that need a record beyond GitHub's retention.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/portalops/deploy-environments/internal/api/models"
)

// S3 Config .
type S3 struct {
	SecretAccessKey string `json:"secretAccessKey"`
	S3Origin        string `json:"s3Origin"`
	AccessKeyId     string `json:"accessKeyId"`
	Bucket          string `json:"bucket"`
	Region          string `json:"region"`
	UseSSL          bool   `json:"useSSL"`
}

// Exporter uploads history snapshots to the configured bucket.
type Exporter struct {
	config S3
	logger *slog.Logger
}

func NewExporter(config S3, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}

	// strip http/s protocol from origin
	u, _ := url.Parse(config.S3Origin)
	if u != nil && (u.Scheme == "http" || u.Scheme == "https") {
		config.S3Origin = u.Host
	}

	return &Exporter{
		config: config,
		logger: logger,
	}
}

// ExportHistory uploads the entries as a JSON object and returns its path in
// the bucket.
func (e *Exporter) ExportHistory(ctx context.Context, component, environment string, entries []models.DeploymentHistoryEntry) (string, error) {
	minioClient, err := minio.New(e.config.S3Origin, &minio.Options{
		Creds:  credentials.NewStaticV4(e.config.AccessKeyId, e.config.SecretAccessKey, ""),
		Secure: e.config.UseSSL,
	})
	if err != nil {
		return "", err
	}

	err = minioClient.MakeBucket(ctx, e.config.Bucket, minio.MakeBucketOptions{Region: e.config.Region})
	if err != nil {
		exists, errBucketExists := minioClient.BucketExists(ctx, e.config.Bucket)
		if errBucketExists != nil || !exists {
			return "", err
		}
	} else {
		e.logger.Info("Successfully created bucket", "bucket", e.config.Bucket)
	}

	snapshot := map[string]interface{}{
		"componentName":   component,
		"environmentName": environment,
		"exportedAt":      time.Now().UTC(),
		"entries":         entries,
	}
	b, err := json.MarshalIndent(snapshot, "", " ")
	if err != nil {
		return "", err
	}

	objectName := strings.ToLower(fmt.Sprintf("deployments/%s/%s/history-%d.json",
		component, environment, time.Now().Unix()))
	reader := bytes.NewReader(b)

	info, err := minioClient.PutObject(ctx, e.config.Bucket, objectName, reader, reader.Size(), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return "", err
	}

	e.logger.Info("Successfully uploaded history snapshot", "object", objectName, "size", info.Size)
	return objectName, nil
}
