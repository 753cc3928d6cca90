package sms

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Console logs messages instead of sending them. It is the default for
// development installs and keeps the last messages for inspection.
type Console struct {
	mu   sync.Mutex
	sent []ConsoleMessage
}

// ConsoleMessage is one message captured by Console.
type ConsoleMessage struct {
	ID      string
	Phone   string
	Message string
}

const consoleKeep = 100

func NewConsole() *Console {
	return &Console{}
}

func (p *Console) Name() string { return ProviderConsole }

func (p *Console) Send(ctx context.Context, phone, message string) Result {
	if err := ctx.Err(); err != nil {
		return failure("console send aborted: %v", err)
	}
	number := NormalizePhone(phone)
	if number == "" {
		return failure("invalid phone number")
	}
	id := "console-" + uuid.NewString()

	logrus.WithFields(logrus.Fields{
		"provider":   ProviderConsole,
		"phone":      number,
		"message_id": id,
	}).Info(message)

	p.mu.Lock()
	p.sent = append(p.sent, ConsoleMessage{ID: id, Phone: number, Message: message})
	if len(p.sent) > consoleKeep {
		p.sent = p.sent[len(p.sent)-consoleKeep:]
	}
	p.mu.Unlock()

	return Result{Success: true, MessageID: id}
}

// Sent returns a copy of the captured messages.
func (p *Console) Sent() []ConsoleMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ConsoleMessage, len(p.sent))
	copy(out, p.sent)
	return out
}
