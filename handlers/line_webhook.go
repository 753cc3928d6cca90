package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"

	"prepxiq_go/models"
	"prepxiq_go/services"

	"github.com/gofiber/fiber/v2"
	"github.com/line/line-bot-sdk-go/linebot"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StaffGroupSettingKey stores the LINE group that receives run summaries.
const StaffGroupSettingKey = "line_staff_group_id"

type LineWebhookHandler struct {
	DB     *gorm.DB
	Line   *services.LineMessagingService
	secret string
}

func NewLineWebhookHandler(db *gorm.DB, line *services.LineMessagingService, channelSecret string) *LineWebhookHandler {
	if channelSecret == "" {
		logrus.Warn("LINE channel secret missing: webhook disabled")
	}
	return &LineWebhookHandler{DB: db, Line: line, secret: channelSecret}
}

// LoadStaffGroupID returns the group id saved by a previous join event.
func LoadStaffGroupID(ctx context.Context, db *gorm.DB) string {
	var setting models.AppSetting
	err := db.WithContext(ctx).Where("`key` = ?", StaffGroupSettingKey).First(&setting).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logrus.WithError(err).Warn("Failed to load LINE staff group id")
		}
		return ""
	}
	return setting.Value
}

// Handle verifies the signature, acknowledges LINE immediately and processes
// join and leave events in the background.
func (h *LineWebhookHandler) Handle(c *fiber.Ctx) error {
	if h.secret == "" {
		return c.SendStatus(fiber.StatusOK)
	}

	signature := c.Get("X-Line-Signature")
	if signature == "" {
		return c.SendStatus(fiber.StatusBadRequest)
	}
	if !validateSignature(h.secret, c.Body(), signature) {
		logrus.WithField("ip", c.IP()).Warn("LINE webhook signature mismatch")
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	body := append([]byte(nil), c.Body()...)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logrus.WithField("panic", r).Error("LINE webhook processing panicked")
			}
		}()
		h.process(context.Background(), body)
	}()
	return c.SendStatus(fiber.StatusOK)
}

func (h *LineWebhookHandler) process(ctx context.Context, body []byte) {
	var webhook struct {
		Events []*linebot.Event `json:"events"`
	}
	if err := json.Unmarshal(body, &webhook); err != nil {
		logrus.WithError(err).Error("Failed to parse LINE webhook body")
		return
	}

	for _, event := range webhook.Events {
		if event.Source == nil || event.Source.GroupID == "" {
			continue
		}
		groupID := event.Source.GroupID
		switch event.Type {
		case linebot.EventTypeJoin:
			if err := h.saveGroupID(ctx, groupID); err != nil {
				logrus.WithError(err).Error("Failed to save LINE staff group id")
				continue
			}
			if h.Line != nil {
				h.Line.SetGroupID(groupID)
			}
			logrus.WithFields(logrus.Fields{"group_id": groupID, "at": time.Now().Format(time.RFC3339)}).Info("LINE bot joined staff group")
		case linebot.EventTypeLeave:
			if h.Line == nil || h.Line.GroupID() != groupID {
				continue
			}
			if err := h.saveGroupID(ctx, ""); err != nil {
				logrus.WithError(err).Error("Failed to clear LINE staff group id")
			}
			h.Line.SetGroupID("")
			logrus.WithField("group_id", groupID).Warn("LINE bot left staff group, summaries disabled")
		}
	}
}

func (h *LineWebhookHandler) saveGroupID(ctx context.Context, groupID string) error {
	if h.DB == nil {
		return nil
	}
	setting := models.AppSetting{Key: StaffGroupSettingKey, Value: groupID}
	return h.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&setting).Error
}

func computeSignature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func validateSignature(secret string, body []byte, signature string) bool {
	return hmac.Equal([]byte(signature), []byte(computeSignature(secret, body)))
}
