package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"prepxiq_go/models"
	"prepxiq_go/utils"

	"gorm.io/gorm"
)

// LeadFilter narrows lead listings, stats and exports.
type LeadFilter struct {
	Stage           models.LeadStage  `json:"stage,omitempty"`
	CounselorID     *uint             `json:"counselor_id,omitempty"`
	LeadSource      models.LeadSource `json:"lead_source,omitempty"`
	DateFrom        *time.Time        `json:"date_from,omitempty"`
	DateTo          *time.Time        `json:"date_to,omitempty"`
	Search          string            `json:"search,omitempty"`
	FollowUpToday   bool              `json:"follow_up_today,omitempty"`
	OverdueFollowUp bool              `json:"overdue_follow_up,omitempty"`
}

// LeadStatRow is the projection used for stats and trends.
type LeadStatRow struct {
	Stage        models.LeadStage
	LeadSource   models.LeadSource
	FollowUpDate *time.Time
	CreatedAt    time.Time
}

// PhoneMatches lists records that already use a phone number.
type PhoneMatches struct {
	LeadIDs    []uint `json:"lead_ids"`
	StudentIDs []uint `json:"student_ids"`
}

func (m PhoneMatches) Any() bool { return len(m.LeadIDs) > 0 || len(m.StudentIDs) > 0 }

// LeadStore is the persistence contract of LeadService.
type LeadStore interface {
	Create(ctx context.Context, lead *models.Lead) error
	Get(ctx context.Context, id uint) (*models.Lead, error)
	Save(ctx context.Context, lead *models.Lead) error
	Delete(ctx context.Context, id uint) error
	// Transition moves a lead from one stage to another, failing when the stored
	// stage no longer equals from. extra columns are written in the same update.
	Transition(ctx context.Context, id uint, from, to models.LeadStage, extra map[string]interface{}) error
	// Convert creates the student and marks the lead converted as one unit.
	Convert(ctx context.Context, leadID uint, student *models.Student) (uint, error)
	List(ctx context.Context, f LeadFilter, p utils.PageParams, today time.Time) ([]models.Lead, int64, error)
	StatRows(ctx context.Context, f LeadFilter, today time.Time) ([]LeadStatRow, error)
	PhoneMatches(ctx context.Context, candidates []string, excludeLeadID uint) (PhoneMatches, error)
	CounselorExists(ctx context.Context, id uint) (bool, error)
}

// GormLeadStore implements LeadStore on MySQL.
type GormLeadStore struct {
	db *gorm.DB
}

func NewGormLeadStore(db *gorm.DB) *GormLeadStore {
	return &GormLeadStore{db: db}
}

func (s *GormLeadStore) Create(ctx context.Context, lead *models.Lead) error {
	return utils.TranslateDBError(s.db.WithContext(ctx).Create(lead).Error)
}

func (s *GormLeadStore) Get(ctx context.Context, id uint) (*models.Lead, error) {
	var lead models.Lead
	if err := s.db.WithContext(ctx).Preload("AssignedCounselor").First(&lead, id).Error; err != nil {
		return nil, utils.TranslateDBError(err)
	}
	return &lead, nil
}

func (s *GormLeadStore) Save(ctx context.Context, lead *models.Lead) error {
	return utils.TranslateDBError(s.db.WithContext(ctx).Omit("AssignedCounselor").Save(lead).Error)
}

func (s *GormLeadStore) Delete(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&models.Lead{}, id)
	if res.Error != nil {
		return utils.TranslateDBError(res.Error)
	}
	if res.RowsAffected == 0 {
		return utils.ErrNotFound
	}
	return nil
}

func (s *GormLeadStore) Transition(ctx context.Context, id uint, from, to models.LeadStage, extra map[string]interface{}) error {
	updates := map[string]interface{}{"stage": to}
	for k, v := range extra {
		updates[k] = v
	}
	res := s.db.WithContext(ctx).Model(&models.Lead{}).
		Where("id = ? AND stage = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return utils.TranslateDBError(res.Error)
	}
	if res.RowsAffected == 0 {
		return utils.TransitionError("lead stage changed, please refresh and try again")
	}
	return nil
}

func (s *GormLeadStore) Convert(ctx context.Context, leadID uint, student *models.Student) (uint, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(student).Error; err != nil {
			return err
		}
		res := tx.Model(&models.Lead{}).
			Where("id = ? AND stage = ?", leadID, models.LeadStageDemo).
			Updates(map[string]interface{}{
				"stage":                models.LeadStageConverted,
				"converted_student_id": student.ID,
				"follow_up_date":       nil,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return utils.TransitionError("only leads in demo can be converted")
		}
		return nil
	})
	if err != nil {
		var detail *utils.DetailError
		if errors.As(err, &detail) {
			return 0, err
		}
		return 0, utils.TranslateDBError(err)
	}
	return student.ID, nil
}

var leadSortColumns = map[string]string{
	"created_at":        "leads.created_at",
	"updated_at":        "leads.updated_at",
	"student_name":      "leads.student_name",
	"parent_name":       "leads.parent_name",
	"phone_number":      "leads.phone_number",
	"email":             "leads.email",
	"course_interested": "leads.course_interested",
	"lead_source":       "leads.lead_source",
	"stage":             "leads.stage",
	"follow_up_date":    "leads.follow_up_date",
}

func (s *GormLeadStore) filtered(ctx context.Context, f LeadFilter, today time.Time) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&models.Lead{})
	if f.Stage != "" {
		q = q.Where("leads.stage = ?", f.Stage)
	}
	if f.CounselorID != nil {
		q = q.Where("leads.assigned_counselor_id = ?", *f.CounselorID)
	}
	if f.LeadSource != "" {
		q = q.Where("leads.lead_source = ?", f.LeadSource)
	}
	if f.DateFrom != nil {
		q = q.Where("leads.created_at >= ?", *f.DateFrom)
	}
	if f.DateTo != nil {
		q = q.Where("leads.created_at < ?", f.DateTo.AddDate(0, 0, 1))
	}
	if search := strings.TrimSpace(f.Search); search != "" {
		like := utils.ContainsPattern(search)
		q = q.Where("(leads.student_name LIKE ? ESCAPE '!' OR leads.parent_name LIKE ? ESCAPE '!' OR leads.phone_number LIKE ? ESCAPE '!' OR leads.email LIKE ? ESCAPE '!')", like, like, like, like)
	}
	day := today.Format(utils.DateLayout)
	if f.FollowUpToday {
		q = q.Where("leads.follow_up_date = ? AND leads.stage NOT IN ?", day, []models.LeadStage{models.LeadStageConverted, models.LeadStageLost})
	}
	if f.OverdueFollowUp {
		q = q.Where("leads.follow_up_date < ? AND leads.stage NOT IN ?", day, []models.LeadStage{models.LeadStageConverted, models.LeadStageLost})
	}
	return q
}

func (s *GormLeadStore) List(ctx context.Context, f LeadFilter, p utils.PageParams, today time.Time) ([]models.Lead, int64, error) {
	var total int64
	if err := s.filtered(ctx, f, today).Count(&total).Error; err != nil {
		return nil, 0, utils.TranslateDBError(err)
	}
	var rows []models.Lead
	err := s.filtered(ctx, f, today).
		Preload("AssignedCounselor").
		Order(p.OrderClause(leadSortColumns, "created_at")).
		Order("leads.id DESC").
		Limit(p.Limit()).
		Offset(p.Offset()).
		Find(&rows).Error
	if err != nil {
		return nil, 0, utils.TranslateDBError(err)
	}
	return rows, total, nil
}

func (s *GormLeadStore) StatRows(ctx context.Context, f LeadFilter, today time.Time) ([]LeadStatRow, error) {
	var rows []LeadStatRow
	err := s.filtered(ctx, f, today).
		Select("leads.stage, leads.lead_source, leads.follow_up_date, leads.created_at").
		Scan(&rows).Error
	if err != nil {
		return nil, utils.TranslateDBError(err)
	}
	return rows, nil
}

func (s *GormLeadStore) PhoneMatches(ctx context.Context, candidates []string, excludeLeadID uint) (PhoneMatches, error) {
	var m PhoneMatches
	if len(candidates) == 0 {
		return m, nil
	}
	q := s.db.WithContext(ctx).Model(&models.Lead{}).Where("phone_number IN ?", candidates)
	if excludeLeadID != 0 {
		q = q.Where("id <> ?", excludeLeadID)
	}
	if err := q.Pluck("id", &m.LeadIDs).Error; err != nil {
		return m, utils.TranslateDBError(err)
	}
	err := s.db.WithContext(ctx).Model(&models.Student{}).
		Where("phone IN ? OR parent_phone IN ?", candidates, candidates).
		Pluck("id", &m.StudentIDs).Error
	if err != nil {
		return m, utils.TranslateDBError(err)
	}
	return m, nil
}

func (s *GormLeadStore) CounselorExists(ctx context.Context, id uint) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND status = ? AND role IN ?", id, "active", []string{models.RoleCounselor, models.RoleAdmin, models.RoleOwner}).
		Count(&count).Error
	if err != nil {
		return false, utils.TranslateDBError(err)
	}
	return count > 0, nil
}
