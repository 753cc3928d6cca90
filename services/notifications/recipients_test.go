package notifications

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockRecipientSource(t *testing.T) (*GormRecipientSource, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	db, err := gorm.Open(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("gorm open: %v", err)
	}
	return NewGormRecipientSource(db), mock
}

var feeColumns = []string{"fee_id", "student_id", "student_name", "student_phone", "parent_phone", "amount", "due_date", "note"}

func TestFeeDueWindowIsInclusive(t *testing.T) {
	src, mock := newMockRecipientSource(t)
	today := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	due := today.AddDate(0, 0, 3)

	mock.ExpectQuery(regexp.QuoteMeta("fees.due_date BETWEEN ? AND ?")).
		WithArgs("paid", "active", "2026-10-19", "2026-10-22").
		WillReturnRows(sqlmock.NewRows(feeColumns).
			AddRow(11, 1, "Asha", "", "9876543210", 2500.0, due, "Term 2"))

	got, err := src.FeeDueRecipients(context.Background(), today, 3)
	if err != nil {
		t.Fatalf("FeeDueRecipients: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d recipients, want 1", len(got))
	}
	r := got[0]
	if r.RelatedEntityID != 11 || r.RelatedEntityType != "fee" || r.Amount != 2500 || !r.DueDate.Equal(due) || r.Note != "Term 2" {
		t.Errorf("recipient = %+v", r)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestOverdueComputesDaysOverdue(t *testing.T) {
	src, mock := newMockRecipientSource(t)
	today := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("fees.due_date < ?")).
		WithArgs("paid", "active", "2026-10-19").
		WillReturnRows(sqlmock.NewRows(feeColumns).
			AddRow(13, 3, "Meena", "9000000003", "", 4000.0, today.AddDate(0, 0, -5), ""))

	got, err := src.OverdueRecipients(context.Background(), today)
	if err != nil {
		t.Fatalf("OverdueRecipients: %v", err)
	}
	if len(got) != 1 || got[0].DaysOverdue != 5 {
		t.Fatalf("recipients = %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestExamWindowIsInclusive(t *testing.T) {
	src, mock := newMockRecipientSource(t)
	today := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("exams.exam_date BETWEEN ? AND ?")).
		WithArgs("active", "2026-10-19", "2026-10-21").
		WillReturnRows(sqlmock.NewRows([]string{"exam_id", "student_id", "student_name", "student_phone", "parent_phone", "title", "exam_date", "batch_name"}).
			AddRow(21, 1, "Asha", "", "9876543210", "Physics Unit Test", today.AddDate(0, 0, 2), "JEE A"))

	got, err := src.ExamRecipients(context.Background(), today, 2)
	if err != nil {
		t.Fatalf("ExamRecipients: %v", err)
	}
	if len(got) != 1 || got[0].RelatedEntityID != 21 || got[0].BatchName != "JEE A" {
		t.Fatalf("recipients = %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestBirthdayRecipientsLeapDay(t *testing.T) {
	studentColumns := []string{"id", "name", "phone", "parent_phone", "date_of_birth", "status"}
	leapBorn := time.Date(2008, 2, 29, 0, 0, 0, 0, time.UTC)
	feb28Born := time.Date(2009, 2, 28, 0, 0, 0, 0, time.UTC)
	feb27Born := time.Date(2010, 2, 27, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		today time.Time
		want  []uint
	}{
		{"non-leap year celebrates leap birthdays on the 28th", time.Date(2027, 2, 28, 0, 0, 0, 0, time.UTC), []uint{1, 2}},
		{"leap year waits for the 29th", time.Date(2028, 2, 28, 0, 0, 0, 0, time.UTC), []uint{2}},
		{"leap day itself", time.Date(2028, 2, 29, 0, 0, 0, 0, time.UTC), []uint{1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, mock := newMockRecipientSource(t)
			mock.ExpectQuery(regexp.QuoteMeta("MONTH(date_of_birth) = ?")).
				WithArgs("active", 2).
				WillReturnRows(sqlmock.NewRows(studentColumns).
					AddRow(1, "Leap", "9000000001", "", leapBorn, "active").
					AddRow(2, "Twenty Eight", "9000000002", "", feb28Born, "active").
					AddRow(3, "Twenty Seven", "9000000003", "", feb27Born, "active"))

			got, err := src.BirthdayRecipients(context.Background(), tt.today)
			if err != nil {
				t.Fatalf("BirthdayRecipients: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %+v, want ids %v", got, tt.want)
			}
			for i, id := range tt.want {
				if got[i].StudentID != id || got[i].RelatedEntityType != "student" {
					t.Errorf("recipient %d = %+v, want student %d", i, got[i], id)
				}
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestAbsenceID(t *testing.T) {
	src, mock := newMockRecipientSource(t)
	day := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM `attendances`")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(31))
	mock.ExpectQuery(regexp.QuoteMeta("FROM `attendances`")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	id, err := src.AbsenceID(context.Background(), 4, day)
	if err != nil || id != 31 {
		t.Fatalf("AbsenceID = %d, %v; want 31", id, err)
	}
	id, err = src.AbsenceID(context.Background(), 5, day)
	if err != nil || id != 0 {
		t.Fatalf("AbsenceID = %d, %v; want 0", id, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
