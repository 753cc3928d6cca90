package services

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"prepxiq_go/models"
	"prepxiq_go/utils"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	archiveBatchSize   = 1000
	minRetentionDays   = 7
	stalePendingWindow = 24 * time.Hour
)

// ObjectStore is where archive bundles are written.
type ObjectStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// S3ObjectStore stores archives in one bucket.
type S3ObjectStore struct {
	client *s3.Client
	bucket string
}

// NewS3ObjectStore returns nil when the bucket or region is not configured.
func NewS3ObjectStore(ctx context.Context, region, bucket string) *S3ObjectStore {
	if region == "" || bucket == "" {
		return nil
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(region))
	if err != nil {
		logrus.WithError(err).Warn("Failed to load AWS config; log archives will not be uploaded")
		return nil
	}
	return &S3ObjectStore{client: s3.NewFromConfig(cfg), bucket: bucket}
}

func (s *S3ObjectStore) Put(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	return err
}

func (s *S3ObjectStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	return out.Body, nil
}

// RetentionLogStore is the part of the communication log used by cleanup.
type RetentionLogStore interface {
	ReconcileStalePending(ctx context.Context, cutoff time.Time) (int64, error)
	FindOlderThan(ctx context.Context, cutoff time.Time, limit, offset int) ([]models.CommunicationLog, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// CleanupReport summarises one retention pass.
type CleanupReport struct {
	Reconciled int64  `json:"reconciled"`
	Archived   int    `json:"archived"`
	Deleted    int64  `json:"deleted"`
	ArchiveKey string `json:"archive_key,omitempty"`
}

// CommunicationLogArchiver closes out stale pending rows and moves old logs to
// object storage before deleting them.
type CommunicationLogArchiver struct {
	db      *gorm.DB
	logs    RetentionLogStore
	objects ObjectStore
	now     func() time.Time
}

func NewCommunicationLogArchiver(db *gorm.DB, logs RetentionLogStore, objects ObjectStore) *CommunicationLogArchiver {
	a := &CommunicationLogArchiver{db: db, logs: logs, now: time.Now}
	// A typed nil store must not be treated as configured.
	if s3s, ok := objects.(*S3ObjectStore); !ok || s3s != nil {
		a.objects = objects
	}
	return a
}

// Cleanup reconciles pending rows older than a day, then archives and deletes
// logs older than retentionDays.
func (a *CommunicationLogArchiver) Cleanup(ctx context.Context, retentionDays int) (CleanupReport, error) {
	var report CleanupReport
	if retentionDays < minRetentionDays {
		return report, utils.ValidationError("minimum retention is %d days", minRetentionDays)
	}
	now := a.now()

	n, err := a.logs.ReconcileStalePending(ctx, now.Add(-stalePendingWindow))
	if err != nil {
		return report, fmt.Errorf("reconcile pending logs: %w", err)
	}
	report.Reconciled = n
	if n > 0 {
		logrus.WithField("count", n).Warn("Marked stale pending communication logs as failed")
	}

	cutoff := now.AddDate(0, 0, -retentionDays)
	var rows []models.CommunicationLog
	for offset := 0; ; offset += archiveBatchSize {
		batch, err := a.logs.FindOlderThan(ctx, cutoff, archiveBatchSize, offset)
		if err != nil {
			return report, fmt.Errorf("fetch logs for archiving: %w", err)
		}
		rows = append(rows, batch...)
		if len(batch) < archiveBatchSize {
			break
		}
	}
	if len(rows) == 0 {
		logrus.Debug("No communication logs to archive")
		return report, nil
	}

	fileName := fmt.Sprintf("communication_logs_%s.zip", cutoff.Format(utils.DateLayout))
	bundle, err := BuildLogArchive(rows, fileName, now)
	if err != nil {
		return report, err
	}

	meta := models.LogArchive{
		FileName:    fileName,
		StartDate:   rows[0].CreatedAt,
		EndDate:     cutoff,
		RecordCount: len(rows),
		FileSize:    int64(len(bundle)),
		Status:      "completed",
	}
	if a.objects != nil {
		key := fmt.Sprintf("logs/communication/%d/%02d/%s-%s", cutoff.Year(), cutoff.Month(), uuid.NewString(), fileName)
		if err := a.objects.Put(ctx, key, bundle, "application/zip"); err != nil {
			meta.Status = "failed"
			meta.Error = err.Error()
			a.recordArchive(ctx, &meta)
			// Keep the rows when the upload fails so nothing is lost.
			return report, fmt.Errorf("%w: upload archive: %v", utils.ErrNetwork, err)
		}
		meta.S3Key = key
		report.ArchiveKey = key
	}
	report.Archived = len(rows)
	a.recordArchive(ctx, &meta)

	deleted, err := a.logs.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return report, fmt.Errorf("delete archived logs: %w", err)
	}
	report.Deleted = deleted

	logrus.WithFields(logrus.Fields{
		"archived": report.Archived,
		"deleted":  report.Deleted,
		"s3_key":   report.ArchiveKey,
	}).Info("Communication log retention completed")
	return report, nil
}

func (a *CommunicationLogArchiver) recordArchive(ctx context.Context, meta *models.LogArchive) {
	if a.db == nil {
		return
	}
	if err := a.db.WithContext(ctx).Create(meta).Error; err != nil {
		logrus.WithError(err).Error("Failed to save archive metadata")
	}
}

// ListArchives returns archive metadata, newest first.
func (a *CommunicationLogArchiver) ListArchives(ctx context.Context) ([]models.LogArchive, error) {
	var archives []models.LogArchive
	if err := a.db.WithContext(ctx).Order("created_at DESC").Find(&archives).Error; err != nil {
		return nil, utils.TranslateDBError(err)
	}
	return archives, nil
}

// DownloadArchive streams one archive bundle from object storage.
func (a *CommunicationLogArchiver) DownloadArchive(ctx context.Context, id uint) (io.ReadCloser, string, error) {
	var archive models.LogArchive
	if err := a.db.WithContext(ctx).First(&archive, id).Error; err != nil {
		return nil, "", utils.TranslateDBError(err)
	}
	if a.objects == nil || archive.S3Key == "" {
		return nil, "", fmt.Errorf("%w: archive was not uploaded", utils.ErrNotFound)
	}
	body, err := a.objects.Get(ctx, archive.S3Key)
	if err != nil {
		return nil, "", fmt.Errorf("%w: download archive: %v", utils.ErrNetwork, err)
	}
	return body, archive.FileName, nil
}

var archiveCSVHeader = []string{
	"ID", "Student ID", "Message Type", "Recipient Phone", "Delivery Status", "Triggered By",
	"Provider", "Related Entity Type", "Related Entity ID", "Error", "Sent At", "Created At", "Message",
}

// BuildLogArchive renders rows as a zip holding JSON, CSV and metadata files.
func BuildLogArchive(rows []models.CommunicationLog, fileName string, createdAt time.Time) ([]byte, error) {
	if len(rows) == 0 {
		return nil, errors.New("no rows to archive")
	}
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)

	jf, err := zw.Create("communication_logs.json")
	if err != nil {
		return nil, fmt.Errorf("create logs file in zip: %w", err)
	}
	enc := json.NewEncoder(jf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string]any{
		"export_date":    createdAt.UTC(),
		"record_count":   len(rows),
		"format_version": "1.0",
		"logs":           rows,
	}); err != nil {
		return nil, fmt.Errorf("encode logs: %w", err)
	}

	cf, err := zw.Create("communication_logs.csv")
	if err != nil {
		return nil, fmt.Errorf("create csv file in zip: %w", err)
	}
	w := csv.NewWriter(cf)
	_ = w.Write(archiveCSVHeader)
	for _, r := range rows {
		_ = w.Write([]string{
			strconv.FormatUint(uint64(r.ID), 10),
			optionalID(r.StudentID),
			string(r.MessageType),
			r.RecipientPhone,
			string(r.DeliveryStatus),
			string(r.TriggeredBy),
			r.Provider,
			r.RelatedEntityType,
			optionalID(r.RelatedEntityID),
			r.ErrorMessage,
			optionalTime(r.SentAt),
			r.CreatedAt.Format("2006-01-02 15:04:05"),
			r.MessageContent,
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}

	mf, err := zw.Create("metadata.json")
	if err != nil {
		return nil, fmt.Errorf("create metadata file in zip: %w", err)
	}
	if err := json.NewEncoder(mf).Encode(map[string]any{
		"file_name":    fileName,
		"created_at":   createdAt.UTC(),
		"record_count": len(rows),
		"date_range": map[string]any{
			"start": rows[0].CreatedAt,
			"end":   rows[len(rows)-1].CreatedAt,
		},
		"schema_version": "1.0",
		"description":    "PrepX IQ Communication Logs Archive",
	}); err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close zip: %w", err)
	}
	return buf.Bytes(), nil
}

func optionalID(v *uint) string {
	if v == nil {
		return ""
	}
	return strconv.FormatUint(uint64(*v), 10)
}

func optionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02 15:04:05")
}
