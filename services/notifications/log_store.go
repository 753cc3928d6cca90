package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"prepxiq_go/models"
	"prepxiq_go/utils"

	"gorm.io/gorm"
)

// ErrDuplicateSend is returned when a pending or sent row already owns the dedupe key.
var ErrDuplicateSend = errors.New("notification already sent today")

// Outcome is the terminal state written back to a pending log row.
type Outcome struct {
	Success   bool
	Provider  string
	MessageID string
	Error     string
	Response  json.RawMessage
}

// LogStore is the slice of the communication log the engine depends on.
type LogStore interface {
	HasActiveSend(ctx context.Context, dedupeKey string) (bool, error)
	CreatePending(ctx context.Context, entry *models.CommunicationLog) error
	Complete(ctx context.Context, id uint, out Outcome, at time.Time) error
}

// GormLogStore persists communication logs. The unique index on dedupe_key
// is the authoritative guard against double sends across processes.
type GormLogStore struct {
	db *gorm.DB
}

func NewGormLogStore(db *gorm.DB) *GormLogStore {
	return &GormLogStore{db: db}
}

func (s *GormLogStore) HasActiveSend(ctx context.Context, dedupeKey string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Unscoped().Model(&models.CommunicationLog{}).
		Where("dedupe_key = ?", dedupeKey).
		Count(&count).Error
	if err != nil {
		return false, utils.TranslateDBError(err)
	}
	return count > 0, nil
}

func (s *GormLogStore) CreatePending(ctx context.Context, entry *models.CommunicationLog) error {
	entry.DeliveryStatus = models.DeliveryPending
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		if utils.IsDuplicateKey(err) {
			return ErrDuplicateSend
		}
		return utils.TranslateDBError(err)
	}
	return nil
}

// Complete moves a pending row to sent or failed. Failed rows release their
// dedupe key so the next scheduled run may retry.
func (s *GormLogStore) Complete(ctx context.Context, id uint, out Outcome, at time.Time) error {
	updates := map[string]interface{}{
		"provider":          out.Provider,
		"provider_response": models.JSON(out.Response),
		"error_message":     out.Error,
	}
	if out.Success {
		updates["delivery_status"] = models.DeliverySent
		updates["sent_at"] = at
	} else {
		updates["delivery_status"] = models.DeliveryFailed
		updates["dedupe_key"] = nil
	}
	res := s.db.WithContext(ctx).Model(&models.CommunicationLog{}).
		Where("id = ? AND delivery_status = ?", id, models.DeliveryPending).
		Updates(updates)
	if res.Error != nil {
		return utils.TranslateDBError(res.Error)
	}
	if res.RowsAffected == 0 {
		return utils.ErrNotFound
	}
	return nil
}

// LogFilter narrows the log listing.
type LogFilter struct {
	MessageType    models.MessageType
	DeliveryStatus models.DeliveryStatus
	TriggeredBy    models.TriggerSource
	StudentID      *uint
	DateFrom       *time.Time
	DateTo         *time.Time
	Search         string
}

var logSortColumns = map[string]string{
	"created_at":      "communication_logs.created_at",
	"sent_at":         "communication_logs.sent_at",
	"message_type":    "communication_logs.message_type",
	"delivery_status": "communication_logs.delivery_status",
}

// List returns one page of logs, newest first by default.
func (s *GormLogStore) List(ctx context.Context, f LogFilter, p utils.PageParams) ([]models.CommunicationLog, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.CommunicationLog{})
	if f.MessageType != "" {
		q = q.Where("message_type = ?", f.MessageType)
	}
	if f.DeliveryStatus != "" {
		q = q.Where("delivery_status = ?", f.DeliveryStatus)
	}
	if f.TriggeredBy != "" {
		q = q.Where("triggered_by = ?", f.TriggeredBy)
	}
	if f.StudentID != nil {
		q = q.Where("student_id = ?", *f.StudentID)
	}
	if f.DateFrom != nil {
		q = q.Where("created_at >= ?", *f.DateFrom)
	}
	if f.DateTo != nil {
		q = q.Where("created_at < ?", f.DateTo.AddDate(0, 0, 1))
	}
	if f.Search != "" {
		like := utils.ContainsPattern(f.Search)
		q = q.Where("(message_content LIKE ? ESCAPE '!' OR recipient_phone LIKE ? ESCAPE '!')", like, like)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, utils.TranslateDBError(err)
	}

	var rows []models.CommunicationLog
	err := q.Preload("Student").
		Order(p.OrderClause(logSortColumns, "created_at")).
		Limit(p.Limit()).
		Offset(p.Offset()).
		Find(&rows).Error
	if err != nil {
		return nil, 0, utils.TranslateDBError(err)
	}
	return rows, total, nil
}

// StatusCounts groups today's logs by category and status.
func (s *GormLogStore) StatusCounts(ctx context.Context, from, to time.Time) (map[models.MessageType]map[models.DeliveryStatus]int64, error) {
	var rows []struct {
		MessageType    models.MessageType
		DeliveryStatus models.DeliveryStatus
		Count          int64
	}
	err := s.db.WithContext(ctx).Model(&models.CommunicationLog{}).
		Select("message_type, delivery_status, COUNT(*) AS count").
		Where("created_at >= ? AND created_at < ?", from, to).
		Group("message_type, delivery_status").
		Scan(&rows).Error
	if err != nil {
		return nil, utils.TranslateDBError(err)
	}
	out := make(map[models.MessageType]map[models.DeliveryStatus]int64)
	for _, r := range rows {
		if out[r.MessageType] == nil {
			out[r.MessageType] = make(map[models.DeliveryStatus]int64)
		}
		out[r.MessageType][r.DeliveryStatus] = r.Count
	}
	return out, nil
}

// ReconcileStalePending marks rows still pending before cutoff as failed.
// These are sends interrupted by a restart; their outcome is unknown.
func (s *GormLogStore) ReconcileStalePending(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.CommunicationLog{}).
		Where("delivery_status = ? AND created_at < ?", models.DeliveryPending, cutoff).
		Updates(map[string]interface{}{
			"delivery_status": models.DeliveryFailed,
			"error_message":   "no delivery confirmation",
			"dedupe_key":      nil,
		})
	if res.Error != nil {
		return 0, utils.TranslateDBError(res.Error)
	}
	return res.RowsAffected, nil
}

// FindOlderThan returns a batch of logs created before cutoff, oldest first.
func (s *GormLogStore) FindOlderThan(ctx context.Context, cutoff time.Time, limit, offset int) ([]models.CommunicationLog, error) {
	var rows []models.CommunicationLog
	err := s.db.WithContext(ctx).Unscoped().
		Where("created_at < ?", cutoff).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, utils.TranslateDBError(err)
	}
	return rows, nil
}

// DeleteOlderThan hard-deletes logs created before cutoff.
func (s *GormLogStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Unscoped().
		Where("created_at < ?", cutoff).
		Delete(&models.CommunicationLog{})
	if res.Error != nil {
		return 0, utils.TranslateDBError(res.Error)
	}
	return res.RowsAffected, nil
}
