package notifications

import (
	"context"
	"fmt"
	"time"

	"prepxiq_go/models"
	"prepxiq_go/utils"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// NotificationResult summarises one category run.
type NotificationResult struct {
	Type    models.MessageType `json:"type"`
	Total   int                `json:"total"`
	Sent    int                `json:"sent"`
	Failed  int                `json:"failed"`
	Skipped int                `json:"skipped"`
	Errors  []string           `json:"errors"`
}

func emptyResult(t models.MessageType) NotificationResult {
	return NotificationResult{Type: t, Errors: []string{}}
}

// BatchNotificationResult aggregates the five category results of a run.
type BatchNotificationResult struct {
	FeeReminders     NotificationResult   `json:"fee_reminders"`
	OverdueReminders NotificationResult   `json:"overdue_reminders"`
	ExamReminders    NotificationResult   `json:"exam_reminders"`
	AbsentAlerts     NotificationResult   `json:"absent_alerts"`
	BirthdayWishes   NotificationResult   `json:"birthday_wishes"`
	TotalSent        int                  `json:"total_sent"`
	TotalFailed      int                  `json:"total_failed"`
	Timestamp        time.Time            `json:"timestamp"`
	TriggeredBy      models.TriggerSource `json:"triggered_by"`
	Note             string               `json:"note,omitempty"`
}

// Results returns the category results in fixed order.
func (b BatchNotificationResult) Results() []NotificationResult {
	return []NotificationResult{b.FeeReminders, b.OverdueReminders, b.ExamReminders, b.AbsentAlerts, b.BirthdayWishes}
}

// AutomaticModeDisabledNote is returned when the global switch is off.
const AutomaticModeDisabledNote = "Automatic notifications are disabled in settings"

// RunObserver is told about every completed orchestrator run.
type RunObserver interface {
	RunCompleted(ctx context.Context, result BatchNotificationResult)
}

// Engine runs the notification categories.
type Engine struct {
	settings   SettingsStore
	recipients RecipientSource
	logs       LogStore
	providers  ProviderResolver
	guard      SendGuard
	observers  []RunObserver
	now        func() time.Time
	loc        *time.Location
}

type Option func(*Engine)

// WithGuard installs a fast-path dedupe guard.
func WithGuard(g SendGuard) Option {
	return func(e *Engine) {
		if g != nil {
			e.guard = g
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

func WithObserver(o RunObserver) Option {
	return func(e *Engine) {
		if o != nil {
			e.observers = append(e.observers, o)
		}
	}
}

func NewEngine(settings SettingsStore, recipients RecipientSource, logs LogStore, providers ProviderResolver, opts ...Option) *Engine {
	e := &Engine{
		settings:   settings,
		recipients: recipients,
		logs:       logs,
		providers:  providers,
		now:        time.Now,
		loc:        time.Local,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) today() time.Time {
	return utils.StartOfDay(e.now(), e.loc)
}

type sourceFunc func(ctx context.Context, today time.Time, s models.NotificationSettings) ([]Recipient, error)

func (e *Engine) ProcessFeeReminders(ctx context.Context, trigger models.TriggerSource) NotificationResult {
	return e.processCategory(ctx, models.MessageTypeFee, trigger, func(ctx context.Context, today time.Time, s models.NotificationSettings) ([]Recipient, error) {
		return e.recipients.FeeDueRecipients(ctx, today, s.FeeReminderDaysBefore)
	})
}

func (e *Engine) ProcessOverdueReminders(ctx context.Context, trigger models.TriggerSource) NotificationResult {
	return e.processCategory(ctx, models.MessageTypeOverdue, trigger, func(ctx context.Context, today time.Time, _ models.NotificationSettings) ([]Recipient, error) {
		return e.recipients.OverdueRecipients(ctx, today)
	})
}

func (e *Engine) ProcessExamReminders(ctx context.Context, trigger models.TriggerSource) NotificationResult {
	return e.processCategory(ctx, models.MessageTypeExam, trigger, func(ctx context.Context, today time.Time, s models.NotificationSettings) ([]Recipient, error) {
		return e.recipients.ExamRecipients(ctx, today, s.ExamReminderDaysBefore)
	})
}

func (e *Engine) ProcessAbsentAlerts(ctx context.Context, trigger models.TriggerSource) NotificationResult {
	return e.processCategory(ctx, models.MessageTypeAbsent, trigger, func(ctx context.Context, today time.Time, _ models.NotificationSettings) ([]Recipient, error) {
		return e.recipients.AbsentRecipients(ctx, today)
	})
}

func (e *Engine) ProcessBirthdayWishes(ctx context.Context, trigger models.TriggerSource) NotificationResult {
	return e.processCategory(ctx, models.MessageTypeBirthday, trigger, func(ctx context.Context, today time.Time, _ models.NotificationSettings) ([]Recipient, error) {
		return e.recipients.BirthdayRecipients(ctx, today)
	})
}

// ProcessCategory runs a single category by type.
func (e *Engine) ProcessCategory(ctx context.Context, t models.MessageType, trigger models.TriggerSource) (NotificationResult, error) {
	switch t {
	case models.MessageTypeFee:
		return e.ProcessFeeReminders(ctx, trigger), nil
	case models.MessageTypeOverdue:
		return e.ProcessOverdueReminders(ctx, trigger), nil
	case models.MessageTypeExam:
		return e.ProcessExamReminders(ctx, trigger), nil
	case models.MessageTypeAbsent:
		return e.ProcessAbsentAlerts(ctx, trigger), nil
	case models.MessageTypeBirthday:
		return e.ProcessBirthdayWishes(ctx, trigger), nil
	}
	return emptyResult(t), utils.ValidationError("unknown notification category %q", t)
}

func (e *Engine) processCategory(ctx context.Context, t models.MessageType, trigger models.TriggerSource, source sourceFunc) NotificationResult {
	result := emptyResult(t)
	entry := logrus.WithFields(logrus.Fields{"category": t, "trigger": trigger})

	settings, err := e.settings.Get(ctx)
	if err != nil {
		result.Errors = append(result.Errors, "load settings: "+err.Error())
		entry.WithError(err).Error("notification settings unavailable")
		return result
	}
	if !settings.CategoryEnabled(t) {
		return result
	}

	today := e.today()
	recipients, err := source(ctx, today, settings)
	if err != nil {
		result.Errors = append(result.Errors, "load recipients: "+err.Error())
		entry.WithError(err).Error("recipient query failed")
		return result
	}
	result.Total = len(recipients)
	if len(recipients) == 0 {
		return result
	}

	provider, err := e.providers.Provider(ctx)
	if err != nil {
		// Every due message is still logged and counted as failed.
		result.Errors = append(result.Errors, "sms provider: "+err.Error())
		entry.WithError(err).Error("sms provider unavailable")
		provider = unavailableProvider{err: err}
	}
	sender := &dispatcher{engine: e, provider: provider, trigger: trigger, today: today}

	for _, r := range recipients {
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, ctx.Err().Error())
			break
		}
		switch outcome, msg := sender.deliver(ctx, t, r); outcome {
		case deliverySent:
			result.Sent++
		case deliveryFailed:
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", r.StudentName, msg))
		default:
			result.Skipped++
		}
	}

	entry.WithFields(logrus.Fields{
		"total":   result.Total,
		"sent":    result.Sent,
		"failed":  result.Failed,
		"skipped": result.Skipped,
	}).Info("notification category processed")
	return result
}

// RunAllNotifications runs every category concurrently and joins the results.
// A panic inside one category is recorded in that category's errors only.
func (e *Engine) RunAllNotifications(ctx context.Context, trigger models.TriggerSource) (BatchNotificationResult, error) {
	batch := BatchNotificationResult{
		FeeReminders:     emptyResult(models.MessageTypeFee),
		OverdueReminders: emptyResult(models.MessageTypeOverdue),
		ExamReminders:    emptyResult(models.MessageTypeExam),
		AbsentAlerts:     emptyResult(models.MessageTypeAbsent),
		BirthdayWishes:   emptyResult(models.MessageTypeBirthday),
		TriggeredBy:      trigger,
	}

	settings, err := e.settings.Get(ctx)
	if err != nil {
		batch.Timestamp = e.now()
		return batch, err
	}
	if !settings.EnableAutomaticMode {
		batch.Note = AutomaticModeDisabledNote
		batch.Timestamp = e.now()
		logrus.WithField("trigger", trigger).Info("notification run skipped, automatic mode disabled")
		return batch, nil
	}

	tasks := []struct {
		t   models.MessageType
		dst *NotificationResult
		run func(context.Context, models.TriggerSource) NotificationResult
	}{
		{models.MessageTypeFee, &batch.FeeReminders, e.ProcessFeeReminders},
		{models.MessageTypeOverdue, &batch.OverdueReminders, e.ProcessOverdueReminders},
		{models.MessageTypeExam, &batch.ExamReminders, e.ProcessExamReminders},
		{models.MessageTypeAbsent, &batch.AbsentAlerts, e.ProcessAbsentAlerts},
		{models.MessageTypeBirthday, &batch.BirthdayWishes, e.ProcessBirthdayWishes},
	}

	var g errgroup.Group
	for _, task := range tasks {
		task := task
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					res := emptyResult(task.t)
					res.Errors = append(res.Errors, fmt.Sprintf("category panicked: %v", r))
					*task.dst = res
					logrus.WithFields(logrus.Fields{"category": task.t, "panic": r}).Error("notification category panicked")
				}
			}()
			*task.dst = task.run(ctx, trigger)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range batch.Results() {
		batch.TotalSent += r.Sent
		batch.TotalFailed += r.Failed
	}
	batch.Timestamp = e.now()

	logrus.WithFields(logrus.Fields{
		"trigger":      trigger,
		"total_sent":   batch.TotalSent,
		"total_failed": batch.TotalFailed,
	}).Info("notification run completed")

	for _, o := range e.observers {
		e.notifyObserver(ctx, o, batch)
	}
	return batch, nil
}

func (e *Engine) notifyObserver(ctx context.Context, o RunObserver, batch BatchNotificationResult) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("panic", r).Error("notification run observer panicked")
		}
	}()
	o.RunCompleted(ctx, batch)
}

// AbsentAlertInput is the ad hoc absence send made while marking attendance.
// Without AttendanceID the absence recorded for the student on Date is used.
type AbsentAlertInput struct {
	StudentID    uint      `json:"student_id" validate:"required"`
	StudentName  string    `json:"student_name" validate:"required"`
	ParentPhone  string    `json:"parent_phone"`
	BatchName    string    `json:"batch_name"`
	AttendanceID *uint     `json:"attendance_id"`
	Date         time.Time `json:"-"`
}

// ErrCategoryDisabled is returned by TriggerAbsentAlert when absent alerts are switched off.
var ErrCategoryDisabled error = &utils.DetailError{Kind: utils.ErrValidation, Msg: "Absent alerts are disabled in settings"}

// TriggerAbsentAlert sends one absence alert. The same dedupe rule as the
// scheduled run applies, so marking attendance twice texts the parent once.
func (e *Engine) TriggerAbsentAlert(ctx context.Context, in AbsentAlertInput) (NotificationResult, error) {
	result := emptyResult(models.MessageTypeAbsent)
	if err := utils.ValidateStruct(in); err != nil {
		return result, err
	}
	settings, err := e.settings.Get(ctx)
	if err != nil {
		return result, err
	}
	if !settings.CategoryEnabled(models.MessageTypeAbsent) {
		return result, ErrCategoryDisabled
	}

	today := e.today()
	date := in.Date
	if date.IsZero() {
		date = today
	}
	date = utils.StartOfDay(date, e.loc)

	// The scheduled run keys absences by attendance row, so a manual send must too.
	var attendanceID uint
	if in.AttendanceID != nil {
		attendanceID = *in.AttendanceID
	} else {
		attendanceID, err = e.recipients.AbsenceID(ctx, in.StudentID, date)
		if err != nil {
			return result, err
		}
		if attendanceID == 0 {
			return result, utils.ValidationError("no absence is recorded for student %d on %s", in.StudentID, date.Format(utils.DateLayout))
		}
	}

	provider, err := e.providers.Provider(ctx)
	if err != nil {
		logrus.WithError(err).WithField("student_id", in.StudentID).Error("sms provider unavailable")
		provider = unavailableProvider{err: err}
	}
	r := Recipient{
		StudentID:         in.StudentID,
		StudentName:       in.StudentName,
		ParentPhone:       in.ParentPhone,
		RelatedEntityID:   attendanceID,
		RelatedEntityType: "attendance",
		Date:              date,
		BatchName:         in.BatchName,
	}

	result.Total = 1
	sender := &dispatcher{engine: e, provider: provider, trigger: models.TriggerManual, today: today}
	switch outcome, msg := sender.deliver(ctx, models.MessageTypeAbsent, r); outcome {
	case deliverySent:
		result.Sent = 1
	case deliveryFailed:
		result.Failed = 1
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", r.StudentName, msg))
	default:
		result.Skipped = 1
	}
	return result, nil
}
