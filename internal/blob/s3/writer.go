package s3blob

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/jiliangzhu/MarketPulse-X/internal/domain"
)

// archivePartSize is the multipart chunk size for large NDJSON batches.
const archivePartSize int64 = 8 * 1024 * 1024

// Writer implements domain.BlobWriter for the archive bucket. Uploads go
// through the SDK upload manager, so a batch that outgrows one part switches
// to multipart without the archiver noticing.
type Writer struct {
	uploader *manager.Uploader
	bucket   string
}

var _ domain.BlobWriter = (*Writer)(nil)

// NewWriter creates a Writer on the client's archive bucket.
func NewWriter(c *Client) *Writer {
	return &Writer{
		uploader: manager.NewUploader(c.S3(), func(u *manager.Uploader) {
			u.PartSize = archivePartSize
		}),
		bucket: c.Bucket(),
	}
}

// Put streams one archive object to the bucket.
func (w *Writer) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	_, err := w.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(path),
		Body:        data,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3blob: upload %s: %w", path, err)
	}
	return nil
}
