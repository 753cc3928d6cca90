package services

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"prepxiq_go/models"
	"prepxiq_go/utils"
)

type fakeRetentionStore struct {
	rows        []models.CommunicationLog
	reconciled  int64
	deleted     bool
	reconcileAt time.Time
	deleteAt    time.Time
}

func (f *fakeRetentionStore) ReconcileStalePending(_ context.Context, cutoff time.Time) (int64, error) {
	f.reconcileAt = cutoff
	return f.reconciled, nil
}

func (f *fakeRetentionStore) FindOlderThan(_ context.Context, _ time.Time, limit, offset int) ([]models.CommunicationLog, error) {
	if offset >= len(f.rows) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.rows) {
		end = len(f.rows)
	}
	return f.rows[offset:end], nil
}

func (f *fakeRetentionStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	f.deleted = true
	f.deleteAt = cutoff
	return int64(len(f.rows)), nil
}

type fakeObjectStore struct {
	puts map[string][]byte
	err  error
}

func (f *fakeObjectStore) Put(_ context.Context, key string, body []byte, _ string) error {
	if f.err != nil {
		return f.err
	}
	if f.puts == nil {
		f.puts = map[string][]byte{}
	}
	f.puts[key] = body
	return nil
}

func (f *fakeObjectStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	b, ok := f.puts[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func archiveRows(n int) []models.CommunicationLog {
	rows := make([]models.CommunicationLog, n)
	for i := range rows {
		sid := uint(i + 1)
		rows[i] = models.CommunicationLog{
			StudentID:      &sid,
			MessageType:    models.MessageTypeFee,
			MessageContent: "Dear Parent, fee reminder, \"quoted\"",
			RecipientPhone: "9876543210",
			DeliveryStatus: models.DeliverySent,
			TriggeredBy:    models.TriggerAutomatic,
			Provider:       "console",
		}
		rows[i].ID = uint(i + 1)
		rows[i].CreatedAt = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Minute)
	}
	return rows
}

func TestBuildLogArchive(t *testing.T) {
	bundle, err := BuildLogArchive(archiveRows(3), "logs.zip", time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("BuildLogArchive: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(bundle), int64(len(bundle)))
	if err != nil {
		t.Fatal(err)
	}
	files := map[string][]byte{}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		b, _ := io.ReadAll(rc)
		rc.Close()
		files[f.Name] = b
	}

	for _, name := range []string{"communication_logs.json", "communication_logs.csv", "metadata.json"} {
		if _, ok := files[name]; !ok {
			t.Errorf("missing %s", name)
		}
	}

	var doc struct {
		RecordCount int                       `json:"record_count"`
		Logs        []models.CommunicationLog `json:"logs"`
	}
	if err := json.Unmarshal(files["communication_logs.json"], &doc); err != nil {
		t.Fatal(err)
	}
	if doc.RecordCount != 3 || len(doc.Logs) != 3 {
		t.Errorf("json record_count=%d logs=%d", doc.RecordCount, len(doc.Logs))
	}

	records, err := csv.NewReader(bytes.NewReader(files["communication_logs.csv"])).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 4 || records[1][len(records[1])-1] != "Dear Parent, fee reminder, \"quoted\"" {
		t.Errorf("csv = %v", records)
	}

	if _, err := BuildLogArchive(nil, "x.zip", time.Now()); err == nil {
		t.Error("expected error for empty archive")
	}
}

func TestCleanupArchivesThenDeletes(t *testing.T) {
	now := time.Date(2026, 10, 19, 2, 0, 0, 0, time.UTC)
	store := &fakeRetentionStore{rows: archiveRows(archiveBatchSize + 2), reconciled: 4}
	objects := &fakeObjectStore{}
	a := NewCommunicationLogArchiver(nil, store, objects)
	a.now = func() time.Time { return now }

	report, err := a.Cleanup(context.Background(), 90)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if report.Reconciled != 4 || report.Archived != archiveBatchSize+2 || report.Deleted != int64(archiveBatchSize+2) {
		t.Errorf("report = %+v", report)
	}
	if !store.reconcileAt.Equal(now.Add(-24 * time.Hour)) {
		t.Errorf("reconcile cutoff = %v", store.reconcileAt)
	}
	if !store.deleteAt.Equal(now.AddDate(0, 0, -90)) {
		t.Errorf("delete cutoff = %v", store.deleteAt)
	}
	if _, ok := objects.puts[report.ArchiveKey]; !ok || !strings.HasPrefix(report.ArchiveKey, "logs/communication/2026/07/") {
		t.Errorf("archive key = %q, uploaded = %d", report.ArchiveKey, len(objects.puts))
	}
}

func TestCleanupKeepsRowsWhenUploadFails(t *testing.T) {
	store := &fakeRetentionStore{rows: archiveRows(2)}
	a := NewCommunicationLogArchiver(nil, store, &fakeObjectStore{err: errors.New("access denied")})

	_, err := a.Cleanup(context.Background(), 30)
	if !errors.Is(err, utils.ErrNetwork) {
		t.Fatalf("err = %v, want ErrNetwork", err)
	}
	if store.deleted {
		t.Error("rows deleted after failed upload")
	}
}

func TestCleanupWithoutObjectStore(t *testing.T) {
	store := &fakeRetentionStore{rows: archiveRows(1)}
	var s3 *S3ObjectStore
	a := NewCommunicationLogArchiver(nil, store, s3)

	report, err := a.Cleanup(context.Background(), 30)
	if err != nil {
		t.Fatal(err)
	}
	if report.ArchiveKey != "" || !store.deleted {
		t.Errorf("report = %+v, deleted = %v", report, store.deleted)
	}
}

func TestCleanupRejectsShortRetention(t *testing.T) {
	a := NewCommunicationLogArchiver(nil, &fakeRetentionStore{}, nil)
	if _, err := a.Cleanup(context.Background(), 3); !errors.Is(err, utils.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}
