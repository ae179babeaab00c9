package service

import (
	"context"
	"log/slog"

	"github.com/herald/herald-go/internal/config"
	"github.com/herald/herald-go/internal/metrics"
	"github.com/herald/herald-go/internal/model"
	"github.com/herald/herald-go/internal/repository"
)

// EventNotification is the realtime event carrying notification pushes.
const EventNotification = "notification"

// Publisher delivers an event to every live connection of a user and
// reports how many connections accepted it.
type Publisher interface {
	PublishToUser(userID int64, event string, payload any) int
}

// NotificationService persists notifications and pushes them to connected
// clients.
type NotificationService struct {
	repo      *repository.NotificationRepository
	publisher Publisher
	policy    string
	metrics   *metrics.Metrics
}

// NewNotificationService creates a NotificationService. policy is
// config.PushSingle or config.PushList.
func NewNotificationService(repo *repository.NotificationRepository, publisher Publisher, policy string, m *metrics.Metrics) *NotificationService {
	return &NotificationService{
		repo:      repo,
		publisher: publisher,
		policy:    policy,
		metrics:   m,
	}
}

// CreateAndDispatch stores a notification and then pushes it to the user's
// room. The push is best effort: an error is returned only when the record
// could not be stored.
func (s *NotificationService) CreateAndDispatch(ctx context.Context, userID int64, title, body string) (model.Notification, error) {
	n := model.Notification{UserID: userID, Title: title, Body: body}
	if err := s.repo.Create(ctx, &n); err != nil {
		return model.Notification{}, err
	}

	var payload any = n
	if s.policy == config.PushList {
		list, err := s.repo.ListByUser(ctx, userID)
		if err != nil {
			slog.Error("load notifications for push", "user_id", userID, "error", err)
			s.metrics.NotificationsDispatched.WithLabelValues(metrics.OutcomeDropped).Inc()
			return n, nil
		}
		payload = list
	}

	delivered := s.publisher.PublishToUser(userID, EventNotification, payload)
	if delivered == 0 {
		s.metrics.NotificationsDispatched.WithLabelValues(metrics.OutcomeDropped).Inc()
	} else {
		s.metrics.NotificationsDispatched.WithLabelValues(metrics.OutcomeDelivered).Add(float64(delivered))
	}
	slog.Debug("notification dispatched", "user_id", userID, "notification_id", n.ID, "connections", delivered)

	return n, nil
}

// List returns the user's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, userID int64) ([]model.Notification, error) {
	return s.repo.ListByUser(ctx, userID)
}
