package services

import (
	"context"
	"strings"
	"time"

	"prepxiq_go/models"
	"prepxiq_go/services/sms"
	"prepxiq_go/utils"

	"github.com/sirupsen/logrus"
)

// Realtime event names for lead changes.
const (
	EventLeadCreated = "lead.created"
	EventLeadUpdated = "lead.updated"
	EventLeadDeleted = "lead.deleted"
)

// EventPublisher pushes realtime events to connected dashboards.
type EventPublisher interface {
	Publish(event string, data interface{})
}

// LeadService implements the admissions funnel.
type LeadService struct {
	store       LeadStore
	policy      LeadPolicy
	events      EventPublisher
	now         func() time.Time
	loc         *time.Location
	countryCode string
}

type LeadOption func(*LeadService)

func WithLeadEvents(p EventPublisher) LeadOption {
	return func(s *LeadService) { s.events = p }
}

func WithLeadClock(now func() time.Time) LeadOption {
	return func(s *LeadService) { s.now = now }
}

func WithLeadLocation(loc *time.Location) LeadOption {
	return func(s *LeadService) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithCountryCode sets the dialing code used to compare phone numbers.
func WithCountryCode(cc string) LeadOption {
	return func(s *LeadService) {
		if cc = strings.TrimPrefix(strings.TrimSpace(cc), "+"); cc != "" {
			s.countryCode = cc
		}
	}
}

func NewLeadService(store LeadStore, opts ...LeadOption) *LeadService {
	s := &LeadService{
		store:       store,
		now:         time.Now,
		loc:         time.Local,
		countryCode: "91",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *LeadService) today() time.Time {
	return utils.StartOfDay(s.now(), s.loc)
}

func (s *LeadService) publish(event string, data interface{}) {
	if s.events != nil {
		s.events.Publish(event, data)
	}
}

// CreateLeadInput is the payload of a new inquiry.
type CreateLeadInput struct {
	StudentName         string `json:"student_name" validate:"required,max=200"`
	ParentName          string `json:"parent_name" validate:"max=200"`
	PhoneNumber         string `json:"phone_number" validate:"required,max=20"`
	Email               string `json:"email" validate:"omitempty,email,max=191"`
	CourseInterested    string `json:"course_interested" validate:"max=200"`
	LeadSource          string `json:"lead_source"`
	AssignedCounselorID *uint  `json:"assigned_counselor_id"`
	FollowUpDate        string `json:"follow_up_date"`
	Remarks             string `json:"remarks"`
}

// UpdateLeadInput edits lead details. Nil fields are left unchanged.
type UpdateLeadInput struct {
	StudentName      *string `json:"student_name" validate:"omitempty,min=1,max=200"`
	ParentName       *string `json:"parent_name" validate:"omitempty,max=200"`
	PhoneNumber      *string `json:"phone_number" validate:"omitempty,min=1,max=20"`
	Email            *string `json:"email" validate:"omitempty,email,max=191"`
	CourseInterested *string `json:"course_interested" validate:"omitempty,max=200"`
	LeadSource       *string `json:"lead_source"`
	Remarks          *string `json:"remarks"`
}

// ConvertInput carries the optional student fields collected at conversion.
type ConvertInput struct {
	Email       string `json:"email" validate:"omitempty,email,max=191"`
	DateOfBirth string `json:"date_of_birth"`
	Gender      string `json:"gender" validate:"omitempty,oneof=male female other"`
	Address     string `json:"address" validate:"max=500"`
	BatchID     *uint  `json:"batch_id"`
}

// LeadPage is one page of a lead listing.
type LeadPage struct {
	Rows       []models.Lead `json:"rows"`
	Total      int64         `json:"total"`
	Page       int           `json:"page"`
	PageSize   int           `json:"page_size"`
	TotalPages int           `json:"total_pages"`
}

func (s *LeadService) normalizePhone(raw string) (string, error) {
	phone := sms.NormalizePhone(raw)
	n := len(sms.NationalNumber(phone, s.countryCode))
	if n < 7 || n > 15 {
		return "", utils.ValidationError("phone_number must be a valid phone number")
	}
	return phone, nil
}

// phoneCandidates lists the stored spellings that denote the same number.
func (s *LeadService) phoneCandidates(phone string) []string {
	normalized := sms.NormalizePhone(phone)
	national := sms.NationalNumber(normalized, s.countryCode)
	if national == "" {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, c := range []string{normalized, national, "0" + national, s.countryCode + national, "+" + s.countryCode + national} {
		if c != "" && !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

func (s *LeadService) parseDate(raw string, field string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := utils.ParseDateLocal(raw, s.loc)
	if err != nil {
		return nil, utils.ValidationError("%s must be a date in YYYY-MM-DD format", field)
	}
	return &t, nil
}

// CreateLead records a new inquiry in the inquiry stage. A phone number already
// used by another lead or a student is rejected as a conflict.
func (s *LeadService) CreateLead(ctx context.Context, actor Actor, in CreateLeadInput) (*models.Lead, error) {
	if err := s.policy.CanCreate(actor); err != nil {
		return nil, err
	}
	in.StudentName = utils.SanitizeString(in.StudentName)
	in.PhoneNumber = utils.SanitizeString(in.PhoneNumber)
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}
	phone, err := s.normalizePhone(in.PhoneNumber)
	if err != nil {
		return nil, err
	}
	source, err := models.ParseLeadSource(in.LeadSource)
	if err != nil {
		return nil, err
	}
	followUp, err := s.parseDate(in.FollowUpDate, "follow_up_date")
	if err != nil {
		return nil, err
	}

	counselorID := in.AssignedCounselorID
	if actor.Role == models.RoleCounselor {
		if counselorID != nil && *counselorID != actor.UserID {
			return nil, utils.PermissionError("assign lead to another counselor")
		}
	}
	if counselorID != nil {
		if err := s.ensureCounselor(ctx, *counselorID); err != nil {
			return nil, err
		}
	}

	matches, err := s.store.PhoneMatches(ctx, s.phoneCandidates(phone), 0)
	if err != nil {
		return nil, err
	}
	if matches.Any() {
		return nil, utils.ErrConflict
	}

	lead := &models.Lead{
		StudentName:         in.StudentName,
		ParentName:          utils.SanitizeString(in.ParentName),
		PhoneNumber:         phone,
		Email:               strings.TrimSpace(in.Email),
		CourseInterested:    utils.SanitizeString(in.CourseInterested),
		LeadSource:          source,
		AssignedCounselorID: counselorID,
		Stage:               models.LeadStageInquiry,
		FollowUpDate:        followUp,
		Remarks:             utils.SanitizeString(in.Remarks),
	}
	if err := s.store.Create(ctx, lead); err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{"lead_id": lead.ID, "user_id": actor.UserID}).Info("lead created")
	s.publish(EventLeadCreated, lead)
	return lead, nil
}

func (s *LeadService) ensureCounselor(ctx context.Context, id uint) error {
	ok, err := s.store.CounselorExists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return utils.ValidationError("assigned counselor does not exist")
	}
	return nil
}

// GetLead returns one lead.
func (s *LeadService) GetLead(ctx context.Context, actor Actor, id uint) (*models.Lead, error) {
	if err := s.policy.CanView(actor); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, id)
}

// loadEditable fetches a lead and checks the actor may edit it.
func (s *LeadService) loadEditable(ctx context.Context, actor Actor, id uint) (*models.Lead, error) {
	lead, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.CanEdit(actor, lead); err != nil {
		return nil, err
	}
	return lead, nil
}

// UpdateLead edits contact and detail fields. Closed leads only accept remarks.
func (s *LeadService) UpdateLead(ctx context.Context, actor Actor, id uint, in UpdateLeadInput) (*models.Lead, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}
	lead, err := s.loadEditable(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	if lead.Stage.IsTerminal() {
		if in.StudentName != nil || in.ParentName != nil || in.PhoneNumber != nil || in.Email != nil || in.CourseInterested != nil || in.LeadSource != nil {
			return nil, utils.ValidationError("only remarks can be edited on a %s lead", lead.Stage)
		}
	}

	if in.StudentName != nil {
		name := utils.SanitizeString(*in.StudentName)
		if name == "" {
			return nil, utils.ValidationError("student_name is required")
		}
		lead.StudentName = name
	}
	if in.ParentName != nil {
		lead.ParentName = utils.SanitizeString(*in.ParentName)
	}
	if in.PhoneNumber != nil {
		phone, err := s.normalizePhone(*in.PhoneNumber)
		if err != nil {
			return nil, err
		}
		if phone != lead.PhoneNumber {
			matches, err := s.store.PhoneMatches(ctx, s.phoneCandidates(phone), lead.ID)
			if err != nil {
				return nil, err
			}
			if matches.Any() {
				return nil, utils.ErrConflict
			}
		}
		lead.PhoneNumber = phone
	}
	if in.Email != nil {
		lead.Email = strings.TrimSpace(*in.Email)
	}
	if in.CourseInterested != nil {
		lead.CourseInterested = utils.SanitizeString(*in.CourseInterested)
	}
	if in.LeadSource != nil {
		src, err := models.ParseLeadSource(*in.LeadSource)
		if err != nil {
			return nil, err
		}
		lead.LeadSource = src
	}
	if in.Remarks != nil {
		lead.Remarks = utils.SanitizeString(*in.Remarks)
	}

	if err := s.store.Save(ctx, lead); err != nil {
		return nil, err
	}
	s.publish(EventLeadUpdated, lead)
	return lead, nil
}

// UpdateLeadStage moves a lead along the funnel. Moving to lost goes through
// MarkLeadAsLost and moving to converted is only possible by conversion.
func (s *LeadService) UpdateLeadStage(ctx context.Context, actor Actor, id uint, rawStage string) (*models.Lead, error) {
	requested, err := models.ParseLeadStage(rawStage)
	if err != nil {
		return nil, err
	}
	lead, err := s.loadEditable(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if lead.Stage == requested {
		return lead, nil
	}

	switch requested {
	case models.LeadStageLost:
		return s.MarkLeadAsLost(ctx, actor, id, "")
	case models.LeadStageConverted:
		if _, err := models.NextStage(lead.Stage, requested); err != nil {
			return nil, err
		}
		return nil, utils.TransitionError("use the convert action to enroll this lead as a student")
	}

	next, err := models.NextStage(lead.Stage, requested)
	if err != nil {
		return nil, err
	}
	if err := s.store.Transition(ctx, lead.ID, lead.Stage, next, nil); err != nil {
		return nil, err
	}
	return s.reload(ctx, lead.ID, actor, "stage changed")
}

func (s *LeadService) reload(ctx context.Context, id uint, actor Actor, action string) (*models.Lead, error) {
	lead, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{"lead_id": id, "user_id": actor.UserID, "stage": lead.Stage}).Info("lead " + action)
	s.publish(EventLeadUpdated, lead)
	return lead, nil
}

// AssignCounselor sets or clears the responsible counselor.
func (s *LeadService) AssignCounselor(ctx context.Context, actor Actor, id uint, counselorID *uint) (*models.Lead, error) {
	lead, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.CanAssign(actor, lead, counselorID); err != nil {
		return nil, err
	}
	if lead.Stage.IsTerminal() {
		return nil, utils.ValidationError("a %s lead cannot be reassigned", lead.Stage)
	}
	if counselorID != nil {
		if err := s.ensureCounselor(ctx, *counselorID); err != nil {
			return nil, err
		}
	}
	lead.AssignedCounselorID = counselorID
	lead.AssignedCounselor = nil
	if err := s.store.Save(ctx, lead); err != nil {
		return nil, err
	}
	return s.reload(ctx, lead.ID, actor, "counselor assigned")
}

// SetFollowUpDate schedules or clears the next follow-up.
func (s *LeadService) SetFollowUpDate(ctx context.Context, actor Actor, id uint, date *time.Time) (*models.Lead, error) {
	if date != nil {
		d := utils.StartOfDay(*date, s.loc)
		date = &d
	}
	lead, err := s.loadEditable(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if lead.Stage.IsTerminal() && date != nil {
		return nil, utils.ValidationError("a %s lead does not need a follow-up", lead.Stage)
	}
	lead.FollowUpDate = date
	if err := s.store.Save(ctx, lead); err != nil {
		return nil, err
	}
	s.publish(EventLeadUpdated, lead)
	return lead, nil
}

// DeleteLead soft-deletes a lead.
func (s *LeadService) DeleteLead(ctx context.Context, actor Actor, id uint) error {
	if err := s.policy.CanDelete(actor); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"lead_id": id, "user_id": actor.UserID}).Info("lead deleted")
	s.publish(EventLeadDeleted, map[string]uint{"id": id})
	return nil
}

// ConvertLeadToStudent enrolls a demo-stage lead. The student row and the lead
// update are committed together or not at all.
func (s *LeadService) ConvertLeadToStudent(ctx context.Context, actor Actor, id uint, in ConvertInput) (uint, error) {
	if err := s.policy.CanConvert(actor); err != nil {
		return 0, err
	}
	if err := utils.ValidateStruct(in); err != nil {
		return 0, err
	}
	dob, err := s.parseDate(in.DateOfBirth, "date_of_birth")
	if err != nil {
		return 0, err
	}
	lead, err := s.store.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	if _, err := models.NextStage(lead.Stage, models.LeadStageConverted); err != nil || lead.Stage == models.LeadStageConverted {
		return 0, utils.TransitionError("cannot move lead from %s to %s", lead.Stage, models.LeadStageConverted)
	}

	email := strings.TrimSpace(in.Email)
	if email == "" {
		email = lead.Email
	}
	leadID := lead.ID
	student := &models.Student{
		Name:        lead.StudentName,
		Phone:       lead.PhoneNumber,
		Email:       email,
		DateOfBirth: dob,
		Gender:      in.Gender,
		Address:     utils.SanitizeString(in.Address),
		ParentName:  lead.ParentName,
		BatchID:     in.BatchID,
		Status:      "active",
		LeadID:      &leadID,
	}
	studentID, err := s.store.Convert(ctx, lead.ID, student)
	if err != nil {
		return 0, err
	}
	if _, err := s.reload(ctx, lead.ID, actor, "converted"); err != nil {
		logrus.WithError(err).WithField("lead_id", lead.ID).Warn("converted lead could not be reloaded")
	}
	return studentID, nil
}

// MarkLeadAsLost closes an open lead with an optional reason.
func (s *LeadService) MarkLeadAsLost(ctx context.Context, actor Actor, id uint, reason string) (*models.Lead, error) {
	if err := s.policy.CanMarkLost(actor); err != nil {
		return nil, err
	}
	lead, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if lead.Stage == models.LeadStageLost {
		return lead, nil
	}
	next, err := models.NextStage(lead.Stage, models.LeadStageLost)
	if err != nil {
		return nil, err
	}
	reason = utils.SanitizeString(reason)
	if len(reason) > 500 {
		return nil, utils.ValidationError("lost_reason must be at most 500 characters")
	}
	extra := map[string]interface{}{"lost_reason": reason, "follow_up_date": nil}
	if err := s.store.Transition(ctx, lead.ID, lead.Stage, next, extra); err != nil {
		return nil, err
	}
	return s.reload(ctx, lead.ID, actor, "marked lost")
}

// CheckDuplicatePhone reports leads and students already using phone.
func (s *LeadService) CheckDuplicatePhone(ctx context.Context, actor Actor, phone string, excludeLeadID uint) (PhoneMatches, error) {
	if err := s.policy.CanView(actor); err != nil {
		return PhoneMatches{}, err
	}
	normalized, err := s.normalizePhone(phone)
	if err != nil {
		return PhoneMatches{}, err
	}
	return s.store.PhoneMatches(ctx, s.phoneCandidates(normalized), excludeLeadID)
}

// ListLeads returns one filtered, sorted page.
func (s *LeadService) ListLeads(ctx context.Context, actor Actor, f LeadFilter, p utils.PageParams) (LeadPage, error) {
	if err := s.policy.CanView(actor); err != nil {
		return LeadPage{}, err
	}
	p = p.Normalize(utils.ListPageOptions)
	return s.list(ctx, f, p)
}

func (s *LeadService) list(ctx context.Context, f LeadFilter, p utils.PageParams) (LeadPage, error) {
	rows, total, err := s.store.List(ctx, f, p, s.today())
	if err != nil {
		return LeadPage{}, err
	}
	if rows == nil {
		rows = []models.Lead{}
	}
	return LeadPage{
		Rows:       rows,
		Total:      total,
		Page:       p.Page,
		PageSize:   p.PageSize,
		TotalPages: utils.TotalPages(total, p.PageSize),
	}, nil
}

// GetLeadStats aggregates the funnel for leads matching f.
func (s *LeadService) GetLeadStats(ctx context.Context, actor Actor, f LeadFilter) (LeadStats, error) {
	if err := s.policy.CanView(actor); err != nil {
		return LeadStats{}, err
	}
	today := s.today()
	rows, err := s.store.StatRows(ctx, f, today)
	if err != nil {
		return LeadStats{}, err
	}
	return ComputeLeadStats(rows, today), nil
}

// GetMonthlyTrend returns inquiries and conversions per month for the trailing months.
func (s *LeadService) GetMonthlyTrend(ctx context.Context, actor Actor, months int) ([]MonthlyTrendPoint, error) {
	if err := s.policy.CanView(actor); err != nil {
		return nil, err
	}
	if months < 1 || months > 24 {
		return nil, utils.ValidationError("months must be between 1 and 24")
	}
	now := s.now()
	from := TrendStart(now, months, s.loc)
	rows, err := s.store.StatRows(ctx, LeadFilter{DateFrom: &from}, s.today())
	if err != nil {
		return nil, err
	}
	return ComputeMonthlyTrend(rows, now, months, s.loc), nil
}

// ExportLeads returns up to MaxExportRows leads matching f in list order.
func (s *LeadService) ExportLeads(ctx context.Context, actor Actor, f LeadFilter, p utils.PageParams) ([]models.Lead, error) {
	if err := s.policy.CanView(actor); err != nil {
		return nil, err
	}
	p.Page = 1
	p.PageSize = MaxExportRows
	p = p.Normalize(utils.ExportPageOptions)
	page, err := s.list(ctx, f, p)
	if err != nil {
		return nil, err
	}
	return page.Rows, nil
}

// ExportLeadsCSV renders the export as CSV.
func (s *LeadService) ExportLeadsCSV(ctx context.Context, actor Actor, f LeadFilter, p utils.PageParams) ([]byte, error) {
	leads, err := s.ExportLeads(ctx, actor, f, p)
	if err != nil {
		return nil, err
	}
	return RenderLeadsCSV(leads, s.loc), nil
}

// ExportLeadsXLSX renders the export as a workbook.
func (s *LeadService) ExportLeadsXLSX(ctx context.Context, actor Actor, f LeadFilter, p utils.PageParams) ([]byte, error) {
	leads, err := s.ExportLeads(ctx, actor, f, p)
	if err != nil {
		return nil, err
	}
	return RenderLeadsXLSX(leads, s.loc)
}
