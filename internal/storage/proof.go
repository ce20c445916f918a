// Package storage keeps proof-of-delivery photos in Cloud Storage.
package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"

	gcs "cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/option"
)

type ProofStore interface {
	PutProof(ctx context.Context, jobNumber, contentType string, r io.Reader) (string, error)
}

type GCSProofStore struct {
	client *gcs.Client
	bucket string
}

// NewGCSProofStore uses application default credentials unless credentialsFile
// is set.
func NewGCSProofStore(ctx context.Context, bucket, credentialsFile string) (*GCSProofStore, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage client: %w", err)
	}
	return &GCSProofStore{client: client, bucket: bucket}, nil
}

func ObjectPath(jobNumber string) string {
	return fmt.Sprintf("proof-of-delivery/%s/%s", url.PathEscape(jobNumber), uuid.NewString())
}

// PutProof uploads the photo and returns its gs:// location.
func (s *GCSProofStore) PutProof(ctx context.Context, jobNumber, contentType string, r io.Reader) (string, error) {
	name := ObjectPath(jobNumber)
	w := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = map[string]string{"job_number": jobNumber}
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("upload proof: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("upload proof: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, name), nil
}

func (s *GCSProofStore) Close() error {
	return s.client.Close()
}
