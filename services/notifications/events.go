package notifications

import "context"

// EventPublisher pushes realtime events to connected dashboards.
type EventPublisher interface {
	Publish(event string, data interface{})
}

const EventRunCompleted = "notification.run_completed"

// PublishObserver broadcasts every finished run.
type PublishObserver struct {
	Publisher EventPublisher
}

func (o PublishObserver) RunCompleted(_ context.Context, result BatchNotificationResult) {
	if o.Publisher == nil {
		return
	}
	o.Publisher.Publish(EventRunCompleted, result)
}
