package notifications

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"prepxiq_go/models"
)

const (
	signature         = "\n- PrepX IQ"
	birthdaySignature = "\n- PrepX IQ Team"
	messageDateLayout = "02 Jan 2006"
)

// RenderFeeReminder renders the upcoming fee message.
func RenderFeeReminder(name string, amount float64, due time.Time, note string) string {
	msg := fmt.Sprintf("Dear Parent, fee reminder for %s. Amount: ₹%s due on %s.", name, FormatINR(amount), due.Format(messageDateLayout))
	if note = strings.TrimSpace(note); note != "" {
		msg += " " + note
	}
	return msg + signature
}

// RenderOverdue renders the overdue fee message.
func RenderOverdue(name string, amount float64, daysOverdue int) string {
	return fmt.Sprintf("Dear Parent, fee overdue alert for %s. Amount: ₹%s is %d days overdue. Please clear the dues at the earliest.", name, FormatINR(amount), daysOverdue) + signature
}

// RenderExamReminder renders the upcoming exam message.
func RenderExamReminder(name, title string, date time.Time, batch string) string {
	msg := fmt.Sprintf("Dear Parent, %s has an exam \"%s\" scheduled for %s.", name, title, date.Format(messageDateLayout))
	if batch = strings.TrimSpace(batch); batch != "" {
		msg += " Batch: " + batch + "."
	}
	return msg + " Please ensure preparation." + signature
}

// RenderAbsentAlert renders the absence message.
func RenderAbsentAlert(name string, date time.Time, batch string) string {
	msg := fmt.Sprintf("Dear Parent, your child %s was marked absent on %s", name, date.Format(messageDateLayout))
	if batch = strings.TrimSpace(batch); batch != "" {
		msg += " in " + batch
	}
	return msg + ". Please contact the institute if this is unexpected." + signature
}

// RenderBirthdayWish renders the birthday message.
func RenderBirthdayWish(name string) string {
	return fmt.Sprintf("🎂 Happy Birthday %s! Wishing you a wonderful year ahead filled with success and happiness.", name) + birthdaySignature
}

// Render picks the template for t.
func Render(t models.MessageType, r Recipient) string {
	switch t {
	case models.MessageTypeFee:
		return RenderFeeReminder(r.StudentName, r.Amount, r.DueDate, r.Note)
	case models.MessageTypeOverdue:
		return RenderOverdue(r.StudentName, r.Amount, r.DaysOverdue)
	case models.MessageTypeExam:
		return RenderExamReminder(r.StudentName, r.ExamTitle, r.ExamDate, r.BatchName)
	case models.MessageTypeAbsent:
		return RenderAbsentAlert(r.StudentName, r.Date, r.BatchName)
	case models.MessageTypeBirthday:
		return RenderBirthdayWish(r.StudentName)
	}
	return ""
}

// FormatINR formats an amount with Indian digit grouping (12,34,567).
// Whole amounts drop the paise.
func FormatINR(amount float64) string {
	paise := int64(math.Round(amount * 100))
	sign := ""
	if paise < 0 {
		sign = "-"
		paise = -paise
	}
	rupees := strconv.FormatInt(paise/100, 10)
	frac := paise % 100

	if len(rupees) > 3 {
		head, tail := rupees[:len(rupees)-3], rupees[len(rupees)-3:]
		var groups []string
		for len(head) > 2 {
			groups = append([]string{head[len(head)-2:]}, groups...)
			head = head[:len(head)-2]
		}
		if head != "" {
			groups = append([]string{head}, groups...)
		}
		rupees = strings.Join(groups, ",") + "," + tail
	}
	if frac == 0 {
		return sign + rupees
	}
	return fmt.Sprintf("%s%s.%02d", sign, rupees, frac)
}
