package models

import (
	"database/sql/driver"
	"time"

	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// JSON field type for GORM
type JSON []byte

func (j JSON) Value() (driver.Value, error) {
	if j.IsNull() {
		return nil, nil
	}
	return string(j), nil
}

func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*j = append((*j)[0:0], v...)
	case string:
		*j = append((*j)[0:0], v...)
	}
	return nil
}

func (j JSON) MarshalJSON() ([]byte, error) {
	if j == nil {
		return []byte("null"), nil
	}
	return j, nil
}

func (j *JSON) UnmarshalJSON(data []byte) error {
	if j == nil {
		return nil
	}
	*j = append((*j)[0:0], data...)
	return nil
}

func (j JSON) IsNull() bool {
	return len(j) == 0 || string(j) == "null"
}

// Roles
const (
	RoleOwner     = "owner"
	RoleAdmin     = "admin"
	RoleCounselor = "counselor"
	RoleTeacher   = "teacher"
)

// User model (staff accounts only; students and parents do not log in)
type User struct {
	BaseModel
	Username string `json:"username" gorm:"size:100;not null;uniqueIndex"`
	Password string `json:"-" gorm:"size:255;not null"`
	Email    string `json:"email" gorm:"size:191"`
	Phone    string `json:"phone" gorm:"size:20"`
	Role     string `json:"role" gorm:"size:50;not null;default:'counselor';type:enum('owner','admin','counselor','teacher')"`
	Status   string `json:"status" gorm:"size:50;not null;default:'active';type:enum('active','inactive')"`
}

// Batch model
type Batch struct {
	BaseModel
	Name   string `json:"name" gorm:"size:150;not null"`
	Course string `json:"course" gorm:"size:150"`
	Active bool   `json:"active"`
}

// Student model
type Student struct {
	BaseModel
	Name        string     `json:"name" gorm:"size:200;not null"`
	Phone       string     `json:"phone" gorm:"size:20;index"`
	Email       string     `json:"email" gorm:"size:191"`
	DateOfBirth *time.Time `json:"date_of_birth" gorm:"type:date"`
	Gender      string     `json:"gender" gorm:"size:20"`
	Address     string     `json:"address" gorm:"size:500"`
	ParentName  string     `json:"parent_name" gorm:"size:200"`
	ParentPhone string     `json:"parent_phone" gorm:"size:20"`
	BatchID     *uint      `json:"batch_id"`
	Status      string     `json:"status" gorm:"size:50;not null;default:'active';type:enum('active','inactive')"`
	LeadID      *uint      `json:"lead_id"`

	// Relationships
	Batch *Batch `json:"batch,omitempty" gorm:"foreignKey:BatchID"`
}

// Fee statuses
const (
	FeeStatusPending = "pending"
	FeeStatusPartial = "partial"
	FeeStatusPaid    = "paid"
)

// Fee model
type Fee struct {
	BaseModel
	StudentID uint      `json:"student_id" gorm:"not null;index"`
	Amount    float64   `json:"amount" gorm:"type:decimal(10,2);not null"`
	DueDate   time.Time `json:"due_date" gorm:"type:date;not null;index"`
	Status    string    `json:"status" gorm:"size:20;not null;default:'pending';type:enum('pending','partial','paid')"`
	Note      string    `json:"note" gorm:"size:255"`

	// Relationships
	Student Student `json:"student,omitempty" gorm:"foreignKey:StudentID"`
}

// Exam model
type Exam struct {
	BaseModel
	BatchID  uint      `json:"batch_id" gorm:"not null;index"`
	Title    string    `json:"title" gorm:"size:200;not null"`
	ExamDate time.Time `json:"exam_date" gorm:"type:date;not null;index"`

	// Relationships
	Batch Batch `json:"batch,omitempty" gorm:"foreignKey:BatchID"`
}

// Attendance statuses
const (
	AttendancePresent = "present"
	AttendanceAbsent  = "absent"
	AttendanceLate    = "late"
)

// Attendance model, one row per student per day
type Attendance struct {
	BaseModel
	StudentID uint      `json:"student_id" gorm:"not null;uniqueIndex:idx_attendance_student_date"`
	BatchID   *uint     `json:"batch_id"`
	Date      time.Time `json:"date" gorm:"type:date;not null;uniqueIndex:idx_attendance_student_date"`
	Status    string    `json:"status" gorm:"size:20;not null;type:enum('present','absent','late')"`

	// Relationships
	Student Student `json:"student,omitempty" gorm:"foreignKey:StudentID"`
	Batch   *Batch  `json:"batch,omitempty" gorm:"foreignKey:BatchID"`
}

// AppSetting is a key/value row used for provider credentials and feature flags.
type AppSetting struct {
	BaseModel
	Key   string `json:"key" gorm:"size:100;not null;uniqueIndex"`
	Value string `json:"value" gorm:"type:text"`
}

// Log model for activity tracking
type ActivityLog struct {
	BaseModel
	UserID     uint   `json:"user_id"`
	Action     string `json:"action" gorm:"size:100;not null"`
	Resource   string `json:"resource" gorm:"size:100;not null"`
	ResourceID uint   `json:"resource_id"`
	Details    JSON   `json:"details" gorm:"type:json"`
	IPAddress  string `json:"ip_address" gorm:"size:45"`
	UserAgent  string `json:"user_agent" gorm:"size:500"`
}

// LogArchive model for tracking archived communication logs
type LogArchive struct {
	BaseModel
	FileName    string    `json:"file_name" gorm:"size:255;not null"`
	S3Key       string    `json:"s3_key" gorm:"size:500"`
	StartDate   time.Time `json:"start_date" gorm:"not null"`
	EndDate     time.Time `json:"end_date" gorm:"not null"`
	RecordCount int       `json:"record_count" gorm:"not null"`
	FileSize    int64     `json:"file_size" gorm:"not null"`
	Status      string    `json:"status" gorm:"size:50;not null;default:'pending';type:enum('pending','completed','failed')"` // pending, completed, failed
	Error       string    `json:"error" gorm:"type:text"`
}
