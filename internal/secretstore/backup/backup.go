// Package backup optionally snapshots the account blob to an S3-compatible
// bucket after every successful persist. It is never on the Token Store's
// write critical path: a failed backup is logged and otherwise ignored.
package backup

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	log "github.com/sirupsen/logrus"
)

// Exporter pushes blob snapshots to an S3-compatible bucket.
type Exporter struct {
	client *minio.Client
	bucket string
	prefix string
}

// New connects to an S3-compatible endpoint for snapshot exports.
func New(endpoint, accessKey, secretKey, bucket, prefix string, useSSL bool) (*Exporter, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("backup: connect: %w", err)
	}
	return &Exporter{client: client, bucket: bucket, prefix: prefix}, nil
}

// Snapshot uploads one timestamped copy of the blob. Call this after a
// successful secretstore.Store.Put; never let its result gate that write.
func (e *Exporter) Snapshot(ctx context.Context, data []byte) {
	object := fmt.Sprintf("%s/accounts-%d.json", e.prefix, time.Now().UnixMilli())
	_, err := e.client.PutObject(ctx, e.bucket, object, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		log.WithError(err).WithField("object", object).Warn("backup: snapshot upload failed")
	}
}
