package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"nda-clarity/internal/domain"
)

const (
	uploadsPrefix = "uploads"
	reportsPrefix = "reports"
)

var errObjectMissing = errors.New("object does not exist")

// MinioStore holds uploads only until intent creation has consumed them,
// and archives paid analysis payloads for support.
type MinioStore struct {
	client *minio.Client
	bucket string
}

func NewMinioStore(endpoint, accessKey, secretKey string, useSSL bool, bucket string) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, err
		}
	}

	return &MinioStore{client: client, bucket: bucket}, nil
}

func (m *MinioStore) PutDocument(ctx context.Context, documentID, filename string, content []byte) (string, error) {
	objectKey := path.Join(uploadsPrefix, documentID, path.Base(filename))
	_, err := m.client.PutObject(ctx, m.bucket, objectKey, bytes.NewReader(content), int64(len(content)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return "", err
	}
	return objectKey, nil
}

func (m *MinioStore) GetDocument(ctx context.Context, objectKey string) ([]byte, error) {
	return m.get(ctx, objectKey)
}

func (m *MinioStore) DeleteDocument(ctx context.Context, objectKey string) error {
	return m.client.RemoveObject(ctx, m.bucket, objectKey, minio.RemoveObjectOptions{})
}

func (m *MinioStore) ArchiveReport(ctx context.Context, paymentIntentID string, raw []byte) error {
	_, err := m.client.PutObject(ctx, m.bucket, ReportKey(paymentIntentID), bytes.NewReader(raw), int64(len(raw)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	return err
}

func (m *MinioStore) GetReport(ctx context.Context, paymentIntentID string) ([]byte, error) {
	raw, err := m.get(ctx, ReportKey(paymentIntentID))
	if errors.Is(err, errObjectMissing) {
		return nil, fmt.Errorf("%w: %s", domain.ErrReportNotFound, paymentIntentID)
	}
	return raw, err
}

func ReportKey(paymentIntentID string) string {
	return path.Join(reportsPrefix, path.Base(paymentIntentID)+".json")
}

func (m *MinioStore) get(ctx context.Context, objectKey string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	data := new(bytes.Buffer)
	if _, err := data.ReadFrom(obj); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("%w: %s", errObjectMissing, objectKey)
		}
		return nil, fmt.Errorf("read object: %w", err)
	}
	return data.Bytes(), nil
}
