package models

import (
	"strings"
	"time"

	"prepxiq_go/utils"
)

// LeadStage is the position of a lead in the admissions funnel.
type LeadStage string

const (
	LeadStageInquiry   LeadStage = "inquiry"
	LeadStageFollowUp  LeadStage = "follow_up"
	LeadStageDemo      LeadStage = "demo"
	LeadStageConverted LeadStage = "converted"
	LeadStageLost      LeadStage = "lost"
)

// LeadStages lists every stage in funnel order.
var LeadStages = []LeadStage{
	LeadStageInquiry,
	LeadStageFollowUp,
	LeadStageDemo,
	LeadStageConverted,
	LeadStageLost,
}

// leadTransitions is the full transition graph. Terminal stages have no entry.
var leadTransitions = map[LeadStage][]LeadStage{
	LeadStageInquiry:  {LeadStageFollowUp, LeadStageLost},
	LeadStageFollowUp: {LeadStageDemo, LeadStageLost},
	LeadStageDemo:     {LeadStageConverted, LeadStageLost},
}

// ParseLeadStage validates a raw stage value.
func ParseLeadStage(raw string) (LeadStage, error) {
	s := LeadStage(strings.TrimSpace(strings.ToLower(raw)))
	for _, known := range LeadStages {
		if s == known {
			return s, nil
		}
	}
	return "", utils.ValidationError("unknown stage %q", raw)
}

// IsTerminal reports whether no further transitions are possible.
func (s LeadStage) IsTerminal() bool {
	return s == LeadStageConverted || s == LeadStageLost
}

// AllowedNext returns the stages reachable from s in one step.
func (s LeadStage) AllowedNext() []LeadStage {
	next := leadTransitions[s]
	out := make([]LeadStage, len(next))
	copy(out, next)
	return out
}

// NextStage validates a requested move and returns the resulting stage.
// Requesting the current stage is a no-op and always succeeds.
func NextStage(current, requested LeadStage) (LeadStage, error) {
	if current == requested {
		return current, nil
	}
	for _, s := range leadTransitions[current] {
		if s == requested {
			return requested, nil
		}
	}
	return current, utils.TransitionError("cannot move lead from %s to %s", current, requested)
}

// LeadSource is where an inquiry came from.
type LeadSource string

const (
	LeadSourceWalkIn      LeadSource = "walk-in"
	LeadSourceWebsite     LeadSource = "website"
	LeadSourceReferral    LeadSource = "referral"
	LeadSourceSocialMedia LeadSource = "social_media"
	LeadSourceOther       LeadSource = "other"
)

// LeadSources lists every accepted source.
var LeadSources = []LeadSource{
	LeadSourceWalkIn,
	LeadSourceWebsite,
	LeadSourceReferral,
	LeadSourceSocialMedia,
	LeadSourceOther,
}

// ParseLeadSource validates a raw source value. Empty input maps to "other".
func ParseLeadSource(raw string) (LeadSource, error) {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" {
		return LeadSourceOther, nil
	}
	for _, known := range LeadSources {
		if LeadSource(raw) == known {
			return known, nil
		}
	}
	return "", utils.ValidationError("unknown lead source %q", raw)
}

// Lead model
type Lead struct {
	BaseModel
	StudentName         string     `json:"student_name" gorm:"size:200;not null"`
	ParentName          string     `json:"parent_name" gorm:"size:200"`
	PhoneNumber         string     `json:"phone_number" gorm:"size:20;not null;index"`
	Email               string     `json:"email" gorm:"size:191"`
	CourseInterested    string     `json:"course_interested" gorm:"size:200"`
	LeadSource          LeadSource `json:"lead_source" gorm:"size:20;not null;default:'other'"`
	AssignedCounselorID *uint      `json:"assigned_counselor_id" gorm:"index"`
	Stage               LeadStage  `json:"stage" gorm:"size:20;not null;default:'inquiry';index"`
	FollowUpDate        *time.Time `json:"follow_up_date" gorm:"type:date;index"`
	Remarks             string     `json:"remarks" gorm:"type:text"`
	LostReason          string     `json:"lost_reason" gorm:"size:500"`
	ConvertedStudentID  *uint      `json:"converted_student_id"`

	// Relationships
	AssignedCounselor *User `json:"assigned_counselor,omitempty" gorm:"foreignKey:AssignedCounselorID"`
}

// CounselorName returns the assigned counselor's username, or "".
func (l *Lead) CounselorName() string {
	if l.AssignedCounselor == nil {
		return ""
	}
	return l.AssignedCounselor.Username
}
