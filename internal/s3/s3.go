package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/emmatufvesson/relAI/internal/models"
)

const defaultRegion = "us-east-1"

// Archive keeps a copy of every captured frame and its cycle report in one bucket,
// grouped by capture date.
type Archive struct {
	client *minio.Client
	bucket string
}

func NewMinioClient(endpoint, accessKey, secretKey, bucket string, secure bool) (*Archive, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
		Region: defaultRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &Archive{client: client, bucket: bucket}, nil
}

// EnsureBucket creates the archive bucket when it is missing
func (a *Archive) EnsureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", a.bucket, err)
	}
	if exists {
		return nil
	}
	if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{Region: defaultRegion}); err != nil {
		return fmt.Errorf("create bucket %s: %w", a.bucket, err)
	}
	return nil
}

func (a *Archive) Name() string { return "s3" }

// Record uploads the frame (when one was captured) followed by the report JSON
func (a *Archive) Record(ctx context.Context, report *models.CycleReport) error {
	if report.Capture != nil && report.Capture.Path != "" {
		_, err := a.client.FPutObject(ctx, a.bucket, FrameKey(report), report.Capture.Path, minio.PutObjectOptions{
			ContentType: "image/jpeg",
		})
		if err != nil {
			return fmt.Errorf("failed to save frame to S3: %w", err)
		}
	}

	jsonData, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	_, err = a.client.PutObject(
		ctx,
		a.bucket,
		ReportKey(report),
		bytes.NewReader(jsonData),
		int64(len(jsonData)),
		minio.PutObjectOptions{
			ContentType: "application/json",
		},
	)
	if err != nil {
		return fmt.Errorf("failed to save report to S3: %w", err)
	}

	return nil
}

func FrameKey(report *models.CycleReport) string {
	return objectKey(report, ".jpg")
}

func ReportKey(report *models.CycleReport) string {
	return objectKey(report, ".json")
}

func objectKey(report *models.CycleReport, ext string) string {
	return path.Join(report.StartedAt.UTC().Format("2006-01-02"), report.RunID+ext)
}
