package sms

import (
	"context"
	"fmt"
	"log/slog"
)

// Log writes the message to the debug log instead of sending it.
type Log struct {
	message string
}

func NewLog(message string) *Log {
	if message == "" {
		message = DefaultMessage
	}
	return &Log{message: message}
}

func (l *Log) Send(ctx context.Context, phone, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	slog.DebugContext(ctx, "sms delivery skipped by log driver", "phone_number", phone, "body", fmt.Sprintf(l.message, code))
	return nil
}
