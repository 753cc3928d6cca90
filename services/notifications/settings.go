package notifications

import (
	"context"
	"errors"
	"strings"
	"time"

	"prepxiq_go/models"
	"prepxiq_go/services/sms"
	"prepxiq_go/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SettingsStore reads the engine configuration. Get never reports a missing
// row as an error: defaults are provisioned instead.
type SettingsStore interface {
	Get(ctx context.Context) (models.NotificationSettings, error)
}

// GormSettingsStore keeps the singleton settings row.
type GormSettingsStore struct {
	db *gorm.DB
}

func NewGormSettingsStore(db *gorm.DB) *GormSettingsStore {
	return &GormSettingsStore{db: db}
}

func (s *GormSettingsStore) Get(ctx context.Context) (models.NotificationSettings, error) {
	var row models.NotificationSettings
	err := s.db.WithContext(ctx).First(&row, models.NotificationSettingsID).Error
	if err == nil {
		return row, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return row, utils.TranslateDBError(err)
	}

	defaults := models.DefaultNotificationSettings()
	// Another process may create the row at the same time; keep whichever landed first.
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&defaults).Error; err != nil {
		return row, utils.TranslateDBError(err)
	}
	if err := s.db.WithContext(ctx).First(&row, models.NotificationSettingsID).Error; err != nil {
		return defaults, nil
	}
	return row, nil
}

// UpdateSettingsInput carries a partial settings update.
type UpdateSettingsInput struct {
	EnableAutomaticMode    *bool `json:"enable_automatic_mode"`
	EnableFeeReminder      *bool `json:"enable_fee_reminder"`
	EnableOverdueReminder  *bool `json:"enable_overdue_reminder"`
	EnableExamReminder     *bool `json:"enable_exam_reminder"`
	EnableAbsentAlert      *bool `json:"enable_absent_alert"`
	EnableBirthdayWish     *bool `json:"enable_birthday_wish"`
	FeeReminderDaysBefore  *int  `json:"fee_reminder_days_before" validate:"omitempty,gte=0,lte=30"`
	ExamReminderDaysBefore *int  `json:"exam_reminder_days_before" validate:"omitempty,gte=0,lte=30"`
}

// Apply copies the set fields onto s.
func (in UpdateSettingsInput) Apply(s *models.NotificationSettings) {
	setBool := func(dst *bool, v *bool) {
		if v != nil {
			*dst = *v
		}
	}
	setBool(&s.EnableAutomaticMode, in.EnableAutomaticMode)
	setBool(&s.EnableFeeReminder, in.EnableFeeReminder)
	setBool(&s.EnableOverdueReminder, in.EnableOverdueReminder)
	setBool(&s.EnableExamReminder, in.EnableExamReminder)
	setBool(&s.EnableAbsentAlert, in.EnableAbsentAlert)
	setBool(&s.EnableBirthdayWish, in.EnableBirthdayWish)
	if in.FeeReminderDaysBefore != nil {
		s.FeeReminderDaysBefore = *in.FeeReminderDaysBefore
	}
	if in.ExamReminderDaysBefore != nil {
		s.ExamReminderDaysBefore = *in.ExamReminderDaysBefore
	}
}

// Update validates and stores a partial settings change.
func (s *GormSettingsStore) Update(ctx context.Context, in UpdateSettingsInput) (models.NotificationSettings, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return models.NotificationSettings{}, err
	}
	current, err := s.Get(ctx)
	if err != nil {
		return current, err
	}
	in.Apply(&current)
	if err := s.db.WithContext(ctx).Save(&current).Error; err != nil {
		return current, utils.TranslateDBError(err)
	}
	return current, nil
}

// SMS setting keys in the app_settings table.
const (
	keySMSProvider    = "sms_provider"
	keySMSAPIKey      = "sms_api_key"
	keySMSAPISecret   = "sms_api_secret"
	keySMSSenderID    = "sms_sender_id"
	keySMSCountryCode = "sms_country_code"
	keySMSRoute       = "sms_route"
	keySMSTemplateID  = "sms_template_id"
	keySMSBaseURL     = "sms_base_url"
)

var smsKeys = []string{
	keySMSProvider, keySMSAPIKey, keySMSAPISecret, keySMSSenderID,
	keySMSCountryCode, keySMSRoute, keySMSTemplateID, keySMSBaseURL,
}

// ProviderResolver yields the provider to use for a run.
type ProviderResolver interface {
	Provider(ctx context.Context) (sms.Provider, error)
}

// StaticProvider always returns the same provider.
type StaticProvider struct {
	P sms.Provider
}

func (s StaticProvider) Provider(context.Context) (sms.Provider, error) {
	if s.P == nil {
		return nil, errors.New("no sms provider configured")
	}
	return s.P, nil
}

// SMSSettingsStore reads and writes provider credentials in app_settings and
// builds providers from them.
type SMSSettingsStore struct {
	db           *gorm.DB
	timeout      time.Duration
	allowConsole bool
}

// NewSMSSettingsStore builds the store. allowConsole enables the log-only
// provider and is meant for development installs.
func NewSMSSettingsStore(db *gorm.DB, timeout time.Duration, allowConsole bool) *SMSSettingsStore {
	return &SMSSettingsStore{db: db, timeout: timeout, allowConsole: allowConsole}
}

func (s *SMSSettingsStore) Load(ctx context.Context) (sms.Config, error) {
	var rows []models.AppSetting
	if err := s.db.WithContext(ctx).Where("`key` IN ?", smsKeys).Find(&rows).Error; err != nil {
		return sms.Config{}, utils.TranslateDBError(err)
	}
	values := make(map[string]string, len(rows))
	for _, r := range rows {
		values[r.Key] = strings.TrimSpace(r.Value)
	}
	return sms.Config{
		Provider:     values[keySMSProvider],
		APIKey:       values[keySMSAPIKey],
		APISecret:    values[keySMSAPISecret],
		SenderID:     values[keySMSSenderID],
		CountryCode:  values[keySMSCountryCode],
		Route:        values[keySMSRoute],
		TemplateID:   values[keySMSTemplateID],
		BaseURL:      values[keySMSBaseURL],
		Timeout:      s.timeout,
		AllowConsole: s.allowConsole,
	}, nil
}

func (s *SMSSettingsStore) Provider(ctx context.Context) (sms.Provider, error) {
	cfg, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return sms.NewProvider(cfg)
}

// SMSSettingsInput updates provider credentials. Nil fields are left unchanged.
type SMSSettingsInput struct {
	Provider    *string `json:"provider" validate:"omitempty,oneof=console fast2sms msg91 twilio textlocal"`
	APIKey      *string `json:"api_key"`
	APISecret   *string `json:"api_secret"`
	SenderID    *string `json:"sender_id" validate:"omitempty,max=20"`
	CountryCode *string `json:"country_code" validate:"omitempty,numeric,max=4"`
	Route       *string `json:"route"`
	TemplateID  *string `json:"template_id"`
}

func (s *SMSSettingsStore) Save(ctx context.Context, in SMSSettingsInput) error {
	if err := utils.ValidateStruct(in); err != nil {
		return err
	}
	pairs := map[string]*string{
		keySMSProvider:    in.Provider,
		keySMSAPIKey:      in.APIKey,
		keySMSAPISecret:   in.APISecret,
		keySMSSenderID:    in.SenderID,
		keySMSCountryCode: in.CountryCode,
		keySMSRoute:       in.Route,
		keySMSTemplateID:  in.TemplateID,
	}
	rows := make([]models.AppSetting, 0, len(pairs))
	for k, v := range pairs {
		if v == nil {
			continue
		}
		rows = append(rows, models.AppSetting{Key: k, Value: strings.TrimSpace(*v)})
	}
	if len(rows) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&rows).Error
	return utils.TranslateDBError(err)
}

// MaskedConfig returns the stored configuration with secrets hidden.
func (s *SMSSettingsStore) MaskedConfig(ctx context.Context) (sms.Config, error) {
	cfg, err := s.Load(ctx)
	if err != nil {
		return cfg, err
	}
	cfg.APIKey = mask(cfg.APIKey)
	cfg.APISecret = mask(cfg.APISecret)
	return cfg, nil
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(secret)-4) + secret[len(secret)-4:]
}
