// Package notify delivers out-of-band alerts when a service changes status.
package notify

import (
	"context"
	"errors"
	"io"

	"go-status-hub/internal/domain"
	"go-status-hub/internal/infrastructure/logger"
)

// Sender announces a committed service status change to an external sink.
type Sender interface {
	NotifyStatusChange(ctx context.Context, svc domain.Service, old, new domain.ServiceStatus) error
}

// LogSender writes status changes to the log.
type LogSender struct {
	logger logger.Logger
}

func NewLogSender(log logger.Logger) *LogSender {
	return &LogSender{logger: log.WithField("component", "notify-log")}
}

func (s *LogSender) NotifyStatusChange(_ context.Context, svc domain.Service, old, new domain.ServiceStatus) error {
	s.logger.WithFields(logger.Fields{
		"service_id": svc.ID,
		"service":    svc.Name,
		"old_status": old,
		"new_status": new,
	}).Info("Service status changed")
	return nil
}

// Multi fans a change out to several senders. Every sender is tried; the
// errors are joined.
type Multi []Sender

func (m Multi) NotifyStatusChange(ctx context.Context, svc domain.Service, old, new domain.ServiceStatus) error {
	var errs []error
	for _, s := range m {
		if err := s.NotifyStatusChange(ctx, svc, old, new); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sender that holds resources.
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
