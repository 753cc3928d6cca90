package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"prepxiq_go/services/notifications"

	"github.com/line/line-bot-sdk-go/linebot"
	"github.com/sirupsen/logrus"
)

// LineMessagingService pushes run summaries to the staff LINE group.
type LineMessagingService struct {
	Bot *linebot.Client

	mu      sync.RWMutex
	groupID string
}

// NewLineMessagingService returns a disabled service when credentials are missing.
// The group id may be empty and set later when the bot joins a group.
func NewLineMessagingService(channelSecret, channelToken, groupID string) *LineMessagingService {
	if channelSecret == "" || channelToken == "" {
		logrus.Info("LINE staff summaries disabled: missing channel credentials")
		return &LineMessagingService{}
	}

	bot, err := linebot.New(channelSecret, channelToken)
	if err != nil {
		logrus.WithError(err).Error("Cannot create LINE bot client")
		return &LineMessagingService{}
	}
	return &LineMessagingService{Bot: bot, groupID: groupID}
}

func (s *LineMessagingService) GroupID() string {
	if s == nil {
		return ""
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.groupID
}

// SetGroupID changes the group that receives summaries. Empty disables pushes.
func (s *LineMessagingService) SetGroupID(id string) {
	s.mu.Lock()
	s.groupID = id
	s.mu.Unlock()
}

func (s *LineMessagingService) Enabled() bool {
	return s != nil && s.Bot != nil && s.GroupID() != ""
}

// SendLineMessageToGroup pushes a text message to a group.
func (s *LineMessagingService) SendLineMessageToGroup(ctx context.Context, groupID, message string) error {
	if s.Bot == nil {
		return fmt.Errorf("LINE Bot client is not initialized")
	}
	if _, err := s.Bot.PushMessage(groupID, linebot.NewTextMessage(message)).WithContext(ctx).Do(); err != nil {
		return fmt.Errorf("LINE Messaging API failed: %w", err)
	}
	return nil
}

// RunCompleted posts a summary of the run when anything was sent or failed.
func (s *LineMessagingService) RunCompleted(ctx context.Context, result notifications.BatchNotificationResult) {
	if !s.Enabled() || (result.TotalSent == 0 && result.TotalFailed == 0) {
		return
	}
	if err := s.SendLineMessageToGroup(ctx, s.GroupID(), FormatRunSummary(result)); err != nil {
		logrus.WithError(err).Warn("Failed to push notification summary to LINE")
	}
}

var categoryLabels = map[string]string{
	"fee":      "Fee reminders",
	"overdue":  "Overdue reminders",
	"exam":     "Exam reminders",
	"absent":   "Absent alerts",
	"birthday": "Birthday wishes",
}

// FormatRunSummary renders a run result for staff.
func FormatRunSummary(result notifications.BatchNotificationResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Notification run (%s) %s\n", result.TriggeredBy, result.Timestamp.Format("02 Jan 2006 15:04"))
	for _, r := range result.Results() {
		fmt.Fprintf(&b, "%s: %d sent, %d failed, %d skipped\n", categoryLabels[string(r.Type)], r.Sent, r.Failed, r.Skipped)
	}
	fmt.Fprintf(&b, "Total: %d sent, %d failed", result.TotalSent, result.TotalFailed)
	return b.String()
}
