package s3blob

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/alanyoungcy/livebid/internal/domain"
)

// minPartSize is the minimum allowed part size for S3 multipart uploads (5 MiB).
const minPartSize int64 = 5 * 1024 * 1024

// Writer implements domain.BlobWriter using an S3-compatible backend.
type Writer struct {
	uploader *manager.Uploader
	bucket   string
}

// NewWriter creates a Writer that uploads to the client's bucket. Bodies
// larger than partSize are split into concurrent multipart uploads; smaller
// ones go out as a single PutObject.
func NewWriter(c *Client, partSize int64) *Writer {
	if partSize < minPartSize {
		partSize = minPartSize
	}
	return &Writer{
		uploader: manager.NewUploader(c.api, func(u *manager.Uploader) {
			u.PartSize = partSize
		}),
		bucket: c.bucket,
	}
}

// Put uploads data to path.
func (w *Writer) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(path),
		Body:        data,
		ContentType: aws.String(contentType),
	}

	if _, err := w.uploader.Upload(ctx, input); err != nil {
		return fmt.Errorf("s3blob: put object %s: %w", path, err)
	}
	return nil
}

var _ domain.BlobWriter = (*Writer)(nil)
