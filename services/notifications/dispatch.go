package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"prepxiq_go/models"
	"prepxiq_go/services/sms"

	"github.com/sirupsen/logrus"
)

type deliveryOutcome int

const (
	deliverySkipped deliveryOutcome = iota
	deliverySent
	deliveryFailed
)

// dispatcher performs the per-recipient send for one category run.
type dispatcher struct {
	engine   *Engine
	provider sms.Provider
	trigger  models.TriggerSource
	today    time.Time
}

// deliver checks dedupe, writes a pending log row, sends and records the
// terminal status. The returned string is the failure reason, if any.
func (d *dispatcher) deliver(ctx context.Context, t models.MessageType, r Recipient) (deliveryOutcome, string) {
	phone := r.Phone()
	if phone == "" {
		return deliverySkipped, ""
	}

	key := models.DedupeKey(r.StudentID, t, r.RelatedEntityID, d.today)
	entry := logrus.WithFields(logrus.Fields{"category": t, "student_id": r.StudentID, "dedupe_key": key})

	guarded := false
	if g := d.engine.guard; g != nil {
		ok, err := g.Acquire(ctx, key, d.today.AddDate(0, 0, 1))
		switch {
		case err != nil:
			entry.WithError(err).Warn("send guard unavailable, falling back to log check")
		case !ok:
			return deliverySkipped, ""
		default:
			guarded = true
		}
	}
	release := func() {
		if guarded {
			d.engine.guard.Release(context.Background(), key)
		}
	}

	active, err := d.engine.logs.HasActiveSend(ctx, key)
	if err != nil {
		release()
		return deliveryFailed, "dedupe check: " + err.Error()
	}
	if active {
		return deliverySkipped, ""
	}

	message := Render(t, r)
	row := &models.CommunicationLog{
		StudentID:         uintPtr(r.StudentID),
		MessageType:       t,
		MessageContent:    message,
		RecipientPhone:    phone,
		TriggeredBy:       d.trigger,
		Provider:          d.provider.Name(),
		RelatedEntityType: r.RelatedEntityType,
		DedupeKey:         &key,
	}
	if r.RelatedEntityID != 0 {
		row.RelatedEntityID = uintPtr(r.RelatedEntityID)
	}
	if err := d.engine.logs.CreatePending(ctx, row); err != nil {
		if errors.Is(err, ErrDuplicateSend) {
			return deliverySkipped, ""
		}
		release()
		return deliveryFailed, "create log: " + err.Error()
	}

	res := d.provider.Send(ctx, phone, message)
	out := Outcome{
		Success:   res.Success,
		Provider:  d.provider.Name(),
		MessageID: res.MessageID,
		Error:     res.Error,
		Response:  responsePayload(res),
	}
	if err := d.engine.logs.Complete(context.WithoutCancel(ctx), row.ID, out, d.engine.now()); err != nil {
		entry.WithError(err).WithField("log_id", row.ID).Error("failed to record delivery status")
	}

	if !res.Success {
		release()
		entry.WithFields(logrus.Fields{"log_id": row.ID, "provider": out.Provider}).Warn("sms send failed: " + res.Error)
		return deliveryFailed, res.Error
	}
	entry.WithFields(logrus.Fields{"log_id": row.ID, "provider": out.Provider, "message_id": res.MessageID}).Debug("sms sent")
	return deliverySent, ""
}

// unavailableProvider stands in when no provider can be built. Every send fails
// with the build error.
type unavailableProvider struct {
	err error
}

func (unavailableProvider) Name() string { return "unconfigured" }

func (p unavailableProvider) Send(context.Context, string, string) sms.Result {
	return sms.Result{Success: false, Error: "sms provider: " + p.err.Error()}
}

func responsePayload(res sms.Result) json.RawMessage {
	if len(res.Data) > 0 {
		return res.Data
	}
	b, err := json.Marshal(res)
	if err != nil {
		return nil
	}
	return b
}

func uintPtr(v uint) *uint {
	if v == 0 {
		return nil
	}
	return &v
}
