package notifications

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"prepxiq_go/models"
	"prepxiq_go/services/sms"
	"prepxiq_go/utils"
)

type fakeSettings struct {
	s   models.NotificationSettings
	err error
}

func (f *fakeSettings) Get(context.Context) (models.NotificationSettings, error) {
	return f.s, f.err
}

type fakeRecipients struct {
	byType   map[models.MessageType][]Recipient
	errs     map[models.MessageType]error
	panics   map[models.MessageType]bool
	absences map[uint]uint
}

func (f *fakeRecipients) AbsenceID(_ context.Context, studentID uint, _ time.Time) (uint, error) {
	return f.absences[studentID], nil
}

func (f *fakeRecipients) get(t models.MessageType) ([]Recipient, error) {
	if f.panics[t] {
		panic("boom")
	}
	return f.byType[t], f.errs[t]
}

func (f *fakeRecipients) FeeDueRecipients(context.Context, time.Time, int) ([]Recipient, error) {
	return f.get(models.MessageTypeFee)
}
func (f *fakeRecipients) OverdueRecipients(context.Context, time.Time) ([]Recipient, error) {
	return f.get(models.MessageTypeOverdue)
}
func (f *fakeRecipients) ExamRecipients(context.Context, time.Time, int) ([]Recipient, error) {
	return f.get(models.MessageTypeExam)
}
func (f *fakeRecipients) AbsentRecipients(context.Context, time.Time) ([]Recipient, error) {
	return f.get(models.MessageTypeAbsent)
}
func (f *fakeRecipients) BirthdayRecipients(context.Context, time.Time) ([]Recipient, error) {
	return f.get(models.MessageTypeBirthday)
}

// memLogStore mimics the unique dedupe_key index of the real table.
type memLogStore struct {
	mu     sync.Mutex
	nextID uint
	rows   map[uint]*models.CommunicationLog
	keys   map[string]uint
}

func newMemLogStore() *memLogStore {
	return &memLogStore{rows: map[uint]*models.CommunicationLog{}, keys: map[string]uint{}}
}

func (m *memLogStore) HasActiveSend(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.keys[key]
	return ok, nil
}

func (m *memLogStore) CreatePending(_ context.Context, e *models.CommunicationLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.DedupeKey != nil {
		if _, ok := m.keys[*e.DedupeKey]; ok {
			return ErrDuplicateSend
		}
	}
	m.nextID++
	e.ID = m.nextID
	e.DeliveryStatus = models.DeliveryPending
	row := *e
	m.rows[e.ID] = &row
	if e.DedupeKey != nil {
		m.keys[*e.DedupeKey] = e.ID
	}
	return nil
}

func (m *memLogStore) Complete(_ context.Context, id uint, out Outcome, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok || row.DeliveryStatus != models.DeliveryPending {
		return utils.ErrNotFound
	}
	if out.Success {
		row.DeliveryStatus = models.DeliverySent
		row.SentAt = &at
		return nil
	}
	row.DeliveryStatus = models.DeliveryFailed
	row.ErrorMessage = out.Error
	if row.DedupeKey != nil {
		delete(m.keys, *row.DedupeKey)
		row.DedupeKey = nil
	}
	return nil
}

func (m *memLogStore) count(status models.DeliveryStatus) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.rows {
		if r.DeliveryStatus == status {
			n++
		}
	}
	return n
}

type fakeProvider struct {
	mu      sync.Mutex
	sent    []string
	failFor map[string]bool
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Send(_ context.Context, phone, message string) sms.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failFor[phone] {
		return sms.Result{Success: false, Error: "provider rejected number"}
	}
	p.sent = append(p.sent, phone+"|"+message)
	return sms.Result{Success: true, MessageID: "m-1"}
}

func (p *fakeProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent)
}

type fakeGuard struct {
	deny     bool
	released []string
	mu       sync.Mutex
}

func (g *fakeGuard) Acquire(context.Context, string, time.Time) (bool, error) {
	return !g.deny, nil
}

func (g *fakeGuard) Release(_ context.Context, key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.released = append(g.released, key)
}

type recordingObserver struct {
	calls int
	last  BatchNotificationResult
}

func (o *recordingObserver) RunCompleted(_ context.Context, b BatchNotificationResult) {
	o.calls++
	o.last = b
}

type panickingObserver struct{}

func (panickingObserver) RunCompleted(context.Context, BatchNotificationResult) { panic("observer") }

var testNow = time.Date(2026, 10, 19, 7, 0, 0, 0, time.UTC)

func sampleRecipients() map[models.MessageType][]Recipient {
	return map[models.MessageType][]Recipient{
		models.MessageTypeFee: {
			{StudentID: 1, StudentName: "Asha", ParentPhone: "98765 43210", RelatedEntityID: 11, RelatedEntityType: "fee", Amount: 2500, DueDate: testNow.AddDate(0, 0, 3)},
			{StudentID: 2, StudentName: "Ravi", StudentPhone: "91234-56789", RelatedEntityID: 12, RelatedEntityType: "fee", Amount: 1800, DueDate: testNow.AddDate(0, 0, 3)},
		},
		models.MessageTypeOverdue: {
			{StudentID: 3, StudentName: "Meena", ParentPhone: "9000000003", RelatedEntityID: 13, RelatedEntityType: "fee", Amount: 4000, DaysOverdue: 5},
		},
		models.MessageTypeExam: {
			{StudentID: 1, StudentName: "Asha", ParentPhone: "98765 43210", RelatedEntityID: 21, RelatedEntityType: "exam", ExamTitle: "Physics Unit Test", ExamDate: testNow.AddDate(0, 0, 2), BatchName: "JEE A"},
		},
		models.MessageTypeAbsent: {
			{StudentID: 4, StudentName: "Kiran", ParentPhone: "9000000004", RelatedEntityID: 31, RelatedEntityType: "attendance", Date: testNow},
		},
		models.MessageTypeBirthday: {
			{StudentID: 5, StudentName: "Neha", StudentPhone: "9000000005", RelatedEntityID: 5, RelatedEntityType: "student"},
		},
	}
}

type engineFixture struct {
	settings *fakeSettings
	sources  *fakeRecipients
	logs     *memLogStore
	provider *fakeProvider
	engine   *Engine
}

func newEngineFixture(opts ...Option) *engineFixture {
	f := &engineFixture{
		settings: &fakeSettings{s: models.DefaultNotificationSettings()},
		sources:  &fakeRecipients{byType: sampleRecipients()},
		logs:     newMemLogStore(),
		provider: &fakeProvider{failFor: map[string]bool{}},
	}
	opts = append([]Option{WithClock(func() time.Time { return testNow }), WithLocation(time.UTC)}, opts...)
	f.engine = NewEngine(f.settings, f.sources, f.logs, StaticProvider{P: f.provider}, opts...)
	return f
}

func TestRunAllNotificationsSendsEachCategory(t *testing.T) {
	f := newEngineFixture()
	batch, err := f.engine.RunAllNotifications(context.Background(), models.TriggerAutomatic)
	if err != nil {
		t.Fatalf("RunAllNotifications: %v", err)
	}

	want := map[models.MessageType]int{
		models.MessageTypeFee:      2,
		models.MessageTypeOverdue:  1,
		models.MessageTypeExam:     1,
		models.MessageTypeAbsent:   1,
		models.MessageTypeBirthday: 1,
	}
	for _, r := range batch.Results() {
		if r.Sent != want[r.Type] || r.Total != want[r.Type] || r.Failed != 0 || r.Skipped != 0 {
			t.Errorf("%s: got %+v, want %d sent", r.Type, r, want[r.Type])
		}
	}
	if batch.TotalSent != 6 || batch.TotalFailed != 0 {
		t.Errorf("totals = %d/%d, want 6/0", batch.TotalSent, batch.TotalFailed)
	}
	if batch.TriggeredBy != models.TriggerAutomatic {
		t.Errorf("TriggeredBy = %q", batch.TriggeredBy)
	}
	if !batch.Timestamp.Equal(testNow) {
		t.Errorf("Timestamp = %v", batch.Timestamp)
	}
	if got := f.logs.count(models.DeliverySent); got != 6 {
		t.Errorf("sent log rows = %d, want 6", got)
	}
	if got := f.logs.count(models.DeliveryPending); got != 0 {
		t.Errorf("pending log rows = %d, want 0", got)
	}
}

func TestRunAllNotificationsSecondRunSameDaySkips(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	if _, err := f.engine.RunAllNotifications(ctx, models.TriggerAutomatic); err != nil {
		t.Fatal(err)
	}
	calls := f.provider.calls()

	batch, err := f.engine.RunAllNotifications(ctx, models.TriggerManual)
	if err != nil {
		t.Fatal(err)
	}
	if batch.TotalSent != 0 {
		t.Errorf("second run sent %d, want 0", batch.TotalSent)
	}
	if batch.FeeReminders.Skipped != 2 {
		t.Errorf("fee skipped = %d, want 2", batch.FeeReminders.Skipped)
	}
	if f.provider.calls() != calls {
		t.Errorf("provider called again: %d -> %d", calls, f.provider.calls())
	}
}

func TestFailedSendIsRetriedOnNextRun(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	f.provider.failFor["9000000003"] = true

	res := f.engine.ProcessOverdueReminders(ctx, models.TriggerAutomatic)
	if res.Failed != 1 || res.Sent != 0 {
		t.Fatalf("first run = %+v, want 1 failed", res)
	}
	if len(res.Errors) != 1 || !strings.HasPrefix(res.Errors[0], "Meena: ") {
		t.Errorf("Errors = %v", res.Errors)
	}

	f.provider.failFor = map[string]bool{}
	res = f.engine.ProcessOverdueReminders(ctx, models.TriggerAutomatic)
	if res.Sent != 1 || res.Failed != 0 {
		t.Errorf("retry run = %+v, want 1 sent", res)
	}
	if got := f.logs.count(models.DeliveryFailed); got != 1 {
		t.Errorf("failed rows = %d, want 1", got)
	}
}

func TestRunAllNotificationsAutomaticModeDisabled(t *testing.T) {
	f := newEngineFixture()
	f.settings.s.EnableAutomaticMode = false

	batch, err := f.engine.RunAllNotifications(context.Background(), models.TriggerAutomatic)
	if err != nil {
		t.Fatal(err)
	}
	if batch.Note != AutomaticModeDisabledNote {
		t.Errorf("Note = %q", batch.Note)
	}
	if batch.TotalSent != 0 || f.provider.calls() != 0 {
		t.Errorf("expected no sends, got %d (provider %d)", batch.TotalSent, f.provider.calls())
	}
	for _, r := range batch.Results() {
		if r.Errors == nil {
			t.Errorf("%s: Errors should be an empty slice", r.Type)
		}
	}
}

func TestDisabledCategoryReturnsZeros(t *testing.T) {
	f := newEngineFixture()
	f.settings.s.EnableBirthdayWish = false

	batch, err := f.engine.RunAllNotifications(context.Background(), models.TriggerAutomatic)
	if err != nil {
		t.Fatal(err)
	}
	if b := batch.BirthdayWishes; b.Total != 0 || b.Sent != 0 {
		t.Errorf("birthday = %+v, want zeros", b)
	}
	if batch.TotalSent != 5 {
		t.Errorf("TotalSent = %d, want 5", batch.TotalSent)
	}
}

func TestPanickingCategoryIsIsolated(t *testing.T) {
	f := newEngineFixture()
	f.sources.panics = map[models.MessageType]bool{models.MessageTypeExam: true}

	batch, err := f.engine.RunAllNotifications(context.Background(), models.TriggerAutomatic)
	if err != nil {
		t.Fatal(err)
	}
	exam := batch.ExamReminders
	if exam.Type != models.MessageTypeExam || len(exam.Errors) != 1 || !strings.Contains(exam.Errors[0], "panicked") {
		t.Errorf("exam result = %+v", exam)
	}
	if batch.TotalSent != 5 {
		t.Errorf("other categories should still send, TotalSent = %d", batch.TotalSent)
	}
}

func TestRecipientQueryErrorIsReported(t *testing.T) {
	f := newEngineFixture()
	f.sources.errs = map[models.MessageType]error{models.MessageTypeFee: errors.New("db down")}

	res := f.engine.ProcessFeeReminders(context.Background(), models.TriggerAutomatic)
	if res.Total != 0 || len(res.Errors) != 1 || !strings.Contains(res.Errors[0], "db down") {
		t.Errorf("result = %+v", res)
	}
}

func TestRunAllNotificationsSettingsError(t *testing.T) {
	f := newEngineFixture()
	f.settings.err = errors.New("settings table missing")

	if _, err := f.engine.RunAllNotifications(context.Background(), models.TriggerAutomatic); err == nil {
		t.Fatal("expected error")
	}
	if f.provider.calls() != 0 {
		t.Error("provider should not be called")
	}
}

func TestRecipientWithoutPhoneIsSkipped(t *testing.T) {
	f := newEngineFixture()
	f.sources.byType[models.MessageTypeBirthday] = []Recipient{{StudentID: 9, StudentName: "NoPhone", ParentPhone: " - "}}

	res := f.engine.ProcessBirthdayWishes(context.Background(), models.TriggerAutomatic)
	if res.Total != 1 || res.Skipped != 1 || res.Sent != 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestGuardDenialSkipsSend(t *testing.T) {
	g := &fakeGuard{deny: true}
	f := newEngineFixture(WithGuard(g))

	res := f.engine.ProcessFeeReminders(context.Background(), models.TriggerAutomatic)
	if res.Skipped != 2 || f.provider.calls() != 0 {
		t.Errorf("result = %+v, provider calls = %d", res, f.provider.calls())
	}
}

func TestGuardReleasedOnFailure(t *testing.T) {
	g := &fakeGuard{}
	f := newEngineFixture(WithGuard(g))
	f.provider.failFor["9000000004"] = true

	res := f.engine.ProcessAbsentAlerts(context.Background(), models.TriggerAutomatic)
	if res.Failed != 1 {
		t.Fatalf("result = %+v", res)
	}
	want := models.DedupeKey(4, models.MessageTypeAbsent, 31, testNow)
	if len(g.released) != 1 || g.released[0] != want {
		t.Errorf("released = %v, want [%s]", g.released, want)
	}
}

func TestObserversAreNotified(t *testing.T) {
	rec := &recordingObserver{}
	f := newEngineFixture(WithObserver(panickingObserver{}), WithObserver(rec))

	if _, err := f.engine.RunAllNotifications(context.Background(), models.TriggerAutomatic); err != nil {
		t.Fatal(err)
	}
	if rec.calls != 1 || rec.last.TotalSent != 6 {
		t.Errorf("observer calls = %d, last = %+v", rec.calls, rec.last)
	}
}

func TestProcessCategoryUnknownType(t *testing.T) {
	f := newEngineFixture()
	_, err := f.engine.ProcessCategory(context.Background(), models.MessageType("sms"), models.TriggerManual)
	if !errors.Is(err, utils.ErrValidation) {
		t.Errorf("err = %v, want validation error", err)
	}
}

func TestTriggerAbsentAlert(t *testing.T) {
	attendanceID := uint(77)
	in := AbsentAlertInput{
		StudentID:    4,
		StudentName:  "Kiran",
		ParentPhone:  "9000000004",
		BatchName:    "NEET B",
		AttendanceID: &attendanceID,
	}

	t.Run("sends once per day", func(t *testing.T) {
		f := newEngineFixture()
		ctx := context.Background()
		res, err := f.engine.TriggerAbsentAlert(ctx, in)
		if err != nil || res.Sent != 1 {
			t.Fatalf("first = %+v, %v", res, err)
		}
		res, err = f.engine.TriggerAbsentAlert(ctx, in)
		if err != nil || res.Skipped != 1 || res.Sent != 0 {
			t.Errorf("second = %+v, %v", res, err)
		}
		if got := f.provider.sent[0]; !strings.Contains(got, "marked absent on 19 Oct 2026 in NEET B") {
			t.Errorf("message = %q", got)
		}
	})

	t.Run("disabled", func(t *testing.T) {
		f := newEngineFixture()
		f.settings.s.EnableAbsentAlert = false
		_, err := f.engine.TriggerAbsentAlert(context.Background(), in)
		if !errors.Is(err, ErrCategoryDisabled) {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("missing name", func(t *testing.T) {
		f := newEngineFixture()
		bad := in
		bad.StudentName = ""
		_, err := f.engine.TriggerAbsentAlert(context.Background(), bad)
		if !errors.Is(err, utils.ErrValidation) {
			t.Errorf("err = %v", err)
		}
	})
}

type failingResolver struct{ err error }

func (r failingResolver) Provider(context.Context) (sms.Provider, error) { return nil, r.err }

func TestUnavailableProviderCountsFailures(t *testing.T) {
	f := newEngineFixture()
	broken := NewEngine(f.settings, f.sources, f.logs, failingResolver{err: errors.New("api key is not configured")},
		WithClock(func() time.Time { return testNow }), WithLocation(time.UTC))

	batch, err := broken.RunAllNotifications(context.Background(), models.TriggerAutomatic)
	if err != nil {
		t.Fatal(err)
	}
	fee := batch.FeeReminders
	if fee.Total != 2 || fee.Failed != 2 || fee.Sent != 0 || fee.Skipped != 0 {
		t.Errorf("fee = %+v, want 2 failed", fee)
	}
	if len(fee.Errors) == 0 || !strings.Contains(fee.Errors[0], "api key is not configured") {
		t.Errorf("fee errors = %v", fee.Errors)
	}
	for _, r := range batch.Results() {
		if r.Sent+r.Failed+r.Skipped != r.Total {
			t.Errorf("%s: counts do not add up: %+v", r.Type, r)
		}
	}
	if batch.TotalFailed != 6 {
		t.Errorf("TotalFailed = %d, want 6", batch.TotalFailed)
	}
	if got := f.logs.count(models.DeliveryFailed); got != 6 {
		t.Errorf("failed log rows = %d, want 6", got)
	}

	// Once the provider is fixed the same day, the failed messages go out.
	batch, err = f.engine.RunAllNotifications(context.Background(), models.TriggerManual)
	if err != nil {
		t.Fatal(err)
	}
	if batch.TotalSent != 6 {
		t.Errorf("TotalSent after fix = %d, want 6", batch.TotalSent)
	}
}

func TestManualAbsentAlertThenScheduledRun(t *testing.T) {
	f := newEngineFixture()
	f.sources.absences = map[uint]uint{4: 31}
	ctx := context.Background()

	res, err := f.engine.TriggerAbsentAlert(ctx, AbsentAlertInput{StudentID: 4, StudentName: "Kiran", ParentPhone: "9000000004"})
	if err != nil || res.Sent != 1 {
		t.Fatalf("manual = %+v, %v", res, err)
	}

	res = f.engine.ProcessAbsentAlerts(ctx, models.TriggerAutomatic)
	if res.Total != 1 || res.Skipped != 1 || res.Sent != 0 {
		t.Errorf("scheduled = %+v, want 1 skipped", res)
	}
	if f.provider.calls() != 1 {
		t.Errorf("provider calls = %d, want 1", f.provider.calls())
	}
}

func TestManualAbsentAlertWithoutAbsence(t *testing.T) {
	f := newEngineFixture()
	_, err := f.engine.TriggerAbsentAlert(context.Background(), AbsentAlertInput{StudentID: 8, StudentName: "Dev", ParentPhone: "9000000008"})
	if !errors.Is(err, utils.ErrValidation) {
		t.Errorf("err = %v, want validation error", err)
	}
	if f.provider.calls() != 0 {
		t.Error("provider should not be called")
	}
}

func TestManualAbsentAlertUnavailableProvider(t *testing.T) {
	f := newEngineFixture()
	attendanceID := uint(31)
	broken := NewEngine(f.settings, f.sources, f.logs, failingResolver{err: errors.New("no sms provider configured")},
		WithClock(func() time.Time { return testNow }), WithLocation(time.UTC))

	res, err := broken.TriggerAbsentAlert(context.Background(), AbsentAlertInput{StudentID: 4, StudentName: "Kiran", ParentPhone: "9000000004", AttendanceID: &attendanceID})
	if err != nil {
		t.Fatal(err)
	}
	if res.Failed != 1 || res.Total != 1 {
		t.Errorf("result = %+v, want 1 failed", res)
	}
	if got := f.logs.count(models.DeliveryFailed); got != 1 {
		t.Errorf("failed rows = %d, want 1", got)
	}
}
