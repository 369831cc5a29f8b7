package gcsuploader

import "context"

// ReportStorage stores generated reports. It exists so callers can be tested
// without a bucket.
type ReportStorage interface {
	// UploadReport stores data and returns its gs:// URI.
	UploadReport(ctx context.Context, objectName, contentType string, data []byte) (string, error)

	// FetchReport downloads a previously stored report.
	FetchReport(ctx context.Context, gcsURI string) ([]byte, error)
}

// GCSReportStorage is the Cloud Storage implementation of ReportStorage.
type GCSReportStorage struct {
	bucket string
}

// NewGCSReportStorage stores reports in bucket.
func NewGCSReportStorage(bucket string) *GCSReportStorage {
	return &GCSReportStorage{bucket: bucket}
}

func (s *GCSReportStorage) UploadReport(ctx context.Context, objectName, contentType string, data []byte) (string, error) {
	if err := UploadReport(ctx, s.bucket, objectName, contentType, data); err != nil {
		return "", err
	}
	return GCSURI(s.bucket, objectName), nil
}

func (s *GCSReportStorage) FetchReport(ctx context.Context, gcsURI string) ([]byte, error) {
	return FetchReport(ctx, gcsURI)
}

var _ ReportStorage = (*GCSReportStorage)(nil)
