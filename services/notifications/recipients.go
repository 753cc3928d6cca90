package notifications

import (
	"context"
	"strings"
	"time"

	"prepxiq_go/models"
	"prepxiq_go/services/sms"
	"prepxiq_go/utils"

	"gorm.io/gorm"
)

// Recipient is one row of a category query.
type Recipient struct {
	StudentID         uint      `json:"student_id"`
	StudentName       string    `json:"student_name"`
	StudentPhone      string    `json:"student_phone"`
	ParentPhone       string    `json:"parent_phone"`
	RelatedEntityID   uint      `json:"related_entity_id"`
	RelatedEntityType string    `json:"related_entity_type"`
	Amount            float64   `json:"amount,omitempty"`
	DueDate           time.Time `json:"due_date,omitempty"`
	DaysOverdue       int       `json:"days_overdue,omitempty"`
	Note              string    `json:"note,omitempty"`
	ExamTitle         string    `json:"exam_title,omitempty"`
	ExamDate          time.Time `json:"exam_date,omitempty"`
	BatchName         string    `json:"batch_name,omitempty"`
	Date              time.Time `json:"date,omitempty"`
}

// Phone returns the number to text, parent first.
func (r Recipient) Phone() string {
	if p := sms.NormalizePhone(r.ParentPhone); strings.TrimPrefix(p, "+") != "" {
		return p
	}
	if p := sms.NormalizePhone(r.StudentPhone); strings.TrimPrefix(p, "+") != "" {
		return p
	}
	return ""
}

// RecipientSource answers the five category queries. today is midnight in
// the institute timezone.
type RecipientSource interface {
	FeeDueRecipients(ctx context.Context, today time.Time, daysBefore int) ([]Recipient, error)
	OverdueRecipients(ctx context.Context, today time.Time) ([]Recipient, error)
	ExamRecipients(ctx context.Context, today time.Time, daysBefore int) ([]Recipient, error)
	AbsentRecipients(ctx context.Context, today time.Time) ([]Recipient, error)
	BirthdayRecipients(ctx context.Context, today time.Time) ([]Recipient, error)
	// AbsenceID returns the attendance row marking the student absent on day, or 0.
	AbsenceID(ctx context.Context, studentID uint, day time.Time) (uint, error)
}

// GormRecipientSource reads recipients from the student, fee, exam and attendance tables.
type GormRecipientSource struct {
	db *gorm.DB
}

func NewGormRecipientSource(db *gorm.DB) *GormRecipientSource {
	return &GormRecipientSource{db: db}
}

type feeRow struct {
	FeeID        uint
	StudentID    uint
	StudentName  string
	StudentPhone string
	ParentPhone  string
	Amount       float64
	DueDate      time.Time
	Note         string
}

func (s *GormRecipientSource) feeQuery(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Table("fees").
		Select("fees.id AS fee_id, fees.student_id, students.name AS student_name, students.phone AS student_phone, students.parent_phone, fees.amount, fees.due_date, fees.note").
		Joins("JOIN students ON students.id = fees.student_id AND students.deleted_at IS NULL").
		Where("fees.deleted_at IS NULL AND fees.status <> ? AND students.status = ?", models.FeeStatusPaid, "active")
}

func (s *GormRecipientSource) FeeDueRecipients(ctx context.Context, today time.Time, daysBefore int) ([]Recipient, error) {
	var rows []feeRow
	err := s.feeQuery(ctx).
		Where("fees.due_date BETWEEN ? AND ?", today.Format(utils.DateLayout), today.AddDate(0, 0, daysBefore).Format(utils.DateLayout)).
		Order("fees.due_date ASC, fees.id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, utils.TranslateDBError(err)
	}
	out := make([]Recipient, 0, len(rows))
	for _, r := range rows {
		out = append(out, Recipient{
			StudentID:         r.StudentID,
			StudentName:       r.StudentName,
			StudentPhone:      r.StudentPhone,
			ParentPhone:       r.ParentPhone,
			RelatedEntityID:   r.FeeID,
			RelatedEntityType: "fee",
			Amount:            r.Amount,
			DueDate:           r.DueDate,
			Note:              r.Note,
		})
	}
	return out, nil
}

func (s *GormRecipientSource) OverdueRecipients(ctx context.Context, today time.Time) ([]Recipient, error) {
	var rows []feeRow
	err := s.feeQuery(ctx).
		Where("fees.due_date < ?", today.Format(utils.DateLayout)).
		Order("fees.due_date ASC, fees.id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, utils.TranslateDBError(err)
	}
	out := make([]Recipient, 0, len(rows))
	for _, r := range rows {
		out = append(out, Recipient{
			StudentID:         r.StudentID,
			StudentName:       r.StudentName,
			StudentPhone:      r.StudentPhone,
			ParentPhone:       r.ParentPhone,
			RelatedEntityID:   r.FeeID,
			RelatedEntityType: "fee",
			Amount:            r.Amount,
			DueDate:           r.DueDate,
			DaysOverdue:       utils.DaysBetween(r.DueDate, today),
		})
	}
	return out, nil
}

func (s *GormRecipientSource) ExamRecipients(ctx context.Context, today time.Time, daysBefore int) ([]Recipient, error) {
	var rows []struct {
		ExamID       uint
		StudentID    uint
		StudentName  string
		StudentPhone string
		ParentPhone  string
		Title        string
		ExamDate     time.Time
		BatchName    string
	}
	err := s.db.WithContext(ctx).Table("exams").
		Select("exams.id AS exam_id, students.id AS student_id, students.name AS student_name, students.phone AS student_phone, students.parent_phone, exams.title, exams.exam_date, batches.name AS batch_name").
		Joins("JOIN students ON students.batch_id = exams.batch_id AND students.deleted_at IS NULL").
		Joins("LEFT JOIN batches ON batches.id = exams.batch_id").
		Where("exams.deleted_at IS NULL AND students.status = ?", "active").
		Where("exams.exam_date BETWEEN ? AND ?", today.Format(utils.DateLayout), today.AddDate(0, 0, daysBefore).Format(utils.DateLayout)).
		Order("exams.exam_date ASC, exams.id ASC, students.id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, utils.TranslateDBError(err)
	}
	out := make([]Recipient, 0, len(rows))
	for _, r := range rows {
		out = append(out, Recipient{
			StudentID:         r.StudentID,
			StudentName:       r.StudentName,
			StudentPhone:      r.StudentPhone,
			ParentPhone:       r.ParentPhone,
			RelatedEntityID:   r.ExamID,
			RelatedEntityType: "exam",
			ExamTitle:         r.Title,
			ExamDate:          r.ExamDate,
			BatchName:         r.BatchName,
		})
	}
	return out, nil
}

func (s *GormRecipientSource) AbsentRecipients(ctx context.Context, today time.Time) ([]Recipient, error) {
	var rows []struct {
		AttendanceID uint
		StudentID    uint
		StudentName  string
		StudentPhone string
		ParentPhone  string
		Date         time.Time
		BatchName    string
	}
	err := s.db.WithContext(ctx).Table("attendances").
		Select("attendances.id AS attendance_id, students.id AS student_id, students.name AS student_name, students.phone AS student_phone, students.parent_phone, attendances.date, batches.name AS batch_name").
		Joins("JOIN students ON students.id = attendances.student_id AND students.deleted_at IS NULL").
		Joins("LEFT JOIN batches ON batches.id = COALESCE(attendances.batch_id, students.batch_id)").
		Where("attendances.deleted_at IS NULL AND attendances.status = ? AND attendances.date = ?", models.AttendanceAbsent, today.Format(utils.DateLayout)).
		Order("attendances.id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, utils.TranslateDBError(err)
	}
	out := make([]Recipient, 0, len(rows))
	for _, r := range rows {
		out = append(out, Recipient{
			StudentID:         r.StudentID,
			StudentName:       r.StudentName,
			StudentPhone:      r.StudentPhone,
			ParentPhone:       r.ParentPhone,
			RelatedEntityID:   r.AttendanceID,
			RelatedEntityType: "attendance",
			Date:              r.Date,
			BatchName:         r.BatchName,
		})
	}
	return out, nil
}

func (s *GormRecipientSource) BirthdayRecipients(ctx context.Context, today time.Time) ([]Recipient, error) {
	var students []models.Student
	err := s.db.WithContext(ctx).
		Where("status = ? AND date_of_birth IS NOT NULL AND MONTH(date_of_birth) = ?", "active", int(today.Month())).
		Order("id ASC").
		Find(&students).Error
	if err != nil {
		return nil, utils.TranslateDBError(err)
	}
	out := make([]Recipient, 0)
	for _, st := range students {
		if st.DateOfBirth == nil || !utils.SameMonthDay(*st.DateOfBirth, today) {
			continue
		}
		out = append(out, Recipient{
			StudentID:         st.ID,
			StudentName:       st.Name,
			StudentPhone:      st.Phone,
			ParentPhone:       st.ParentPhone,
			RelatedEntityID:   st.ID,
			RelatedEntityType: "student",
		})
	}
	return out, nil
}

func (s *GormRecipientSource) AbsenceID(ctx context.Context, studentID uint, day time.Time) (uint, error) {
	var ids []uint
	err := s.db.WithContext(ctx).Model(&models.Attendance{}).
		Where("student_id = ? AND date = ? AND status = ?", studentID, day.Format(utils.DateLayout), models.AttendanceAbsent).
		Limit(1).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, utils.TranslateDBError(err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	return ids[0], nil
}
