package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig configures a MinioBlobStore.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Validate reports missing or malformed settings.
func (c MinioConfig) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("minio endpoint is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("minio endpoint must not include scheme: %q", c.Endpoint)
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("minio bucket is required")
	}
	return nil
}

const objectPrefix = "exports/"

// Object user metadata keys.
const (
	metaFileName  = "File-Name"
	metaStudyID   = "Study-Id"
	metaPatientID = "Patient-Id"
	metaCategory  = "Category"
	metaHash      = "Sha256"
	metaCreatedAt = "Created-At"
	metaCreatedBy = "Created-By"
)

// MinioBlobStore keeps blobs as objects in one bucket. Blob metadata travels
// as object user metadata.
type MinioBlobStore struct {
	client *minio.Client
	bucket string
}

// NewMinioBlobStore connects to MinIO and creates the bucket if needed.
func NewMinioBlobStore(ctx context.Context, cfg MinioConfig) (*MinioBlobStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}
	return &MinioBlobStore{client: client, bucket: cfg.Bucket}, nil
}

func objectKey(id string) string { return objectPrefix + id }

func userMetadata(m BlobMetadata) map[string]string {
	return map[string]string{
		metaFileName:  m.FileName,
		metaStudyID:   m.StudyID,
		metaPatientID: m.PatientID,
		metaCategory:  m.Category,
		metaHash:      m.Hash,
		metaCreatedAt: m.CreatedAt.Format(time.RFC3339Nano),
		metaCreatedBy: m.CreatedBy,
	}
}

// metadataFromObject rebuilds BlobMetadata from an object's headers.
func metadataFromObject(info minio.ObjectInfo) *BlobMetadata {
	get := func(k string) string { return info.Metadata.Get("X-Amz-Meta-" + k) }
	created, _ := time.Parse(time.RFC3339Nano, get(metaCreatedAt))
	return &BlobMetadata{
		ID:          strings.TrimPrefix(info.Key, objectPrefix),
		FileName:    get(metaFileName),
		ContentType: info.ContentType,
		Size:        info.Size,
		StudyID:     get(metaStudyID),
		PatientID:   get(metaPatientID),
		Category:    get(metaCategory),
		Hash:        get(metaHash),
		CreatedAt:   created,
		CreatedBy:   get(metaCreatedBy),
	}
}

func mapMinioError(err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
		return ErrBlobNotFound
	}
	return err
}

func (s *MinioBlobStore) Upload(ctx context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error) {
	meta, data, err := prepare(meta, content)
	if err != nil {
		return nil, err
	}
	_, err = s.client.PutObject(ctx, s.bucket, objectKey(meta.ID), bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: meta.ContentType, UserMetadata: userMetadata(meta)})
	if err != nil {
		return nil, fmt.Errorf("put object: %w", err)
	}
	return &meta, nil
}

func (s *MinioBlobStore) Download(ctx context.Context, id string) (io.ReadCloser, *BlobMetadata, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, objectKey(id), minio.GetObjectOptions{})
	if err != nil {
		return nil, nil, mapMinioError(err)
	}
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, nil, mapMinioError(err)
	}
	return obj, metadataFromObject(info), nil
}

func (s *MinioBlobStore) Delete(ctx context.Context, id string) error {
	if _, err := s.GetMetadata(ctx, id); err != nil {
		return err
	}
	return s.client.RemoveObject(ctx, s.bucket, objectKey(id), minio.RemoveObjectOptions{})
}

func (s *MinioBlobStore) GetMetadata(ctx context.Context, id string) (*BlobMetadata, error) {
	info, err := s.client.StatObject(ctx, s.bucket, objectKey(id), minio.StatObjectOptions{})
	if err != nil {
		return nil, mapMinioError(err)
	}
	return metadataFromObject(info), nil
}

func (s *MinioBlobStore) ListByPatient(ctx context.Context, studyID, patientID string, limit, offset int) ([]*BlobMetadata, int, error) {
	var matched []*BlobMetadata
	for info := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: objectPrefix, Recursive: true}) {
		if info.Err != nil {
			return nil, 0, fmt.Errorf("list objects: %w", info.Err)
		}
		st, err := s.client.StatObject(ctx, s.bucket, info.Key, minio.StatObjectOptions{})
		if err != nil {
			return nil, 0, mapMinioError(err)
		}
		m := metadataFromObject(st)
		if m.StudyID == studyID && m.PatientID == patientID {
			matched = append(matched, m)
		}
	}
	items, total := page(matched, limit, offset)
	return items, total, nil
}
