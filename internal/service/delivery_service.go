package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/propagentic/maintenance-service/internal/domain"
	"github.com/propagentic/maintenance-service/internal/observability"
	"github.com/propagentic/maintenance-service/internal/provider"
	"github.com/propagentic/maintenance-service/internal/repository"
	apperrors "github.com/propagentic/maintenance-service/pkg/util"
)

// DeliveryService fans a notification out over the recipient's enabled
// channels and tracks the per-channel outcome in a delivery record.
type DeliveryService struct {
	users         repository.UserRepository
	notifications repository.NotificationRepository
	pushTokens    repository.PushTokenRepository
	email         provider.EmailSender
	sms           provider.SMSSender
	push          provider.PushSender
	metrics       *observability.Metrics
	logger        *zap.Logger
}

// DeliveryDependencies bundles collaborators. Nil senders mark their
// channel as unconfigured.
type DeliveryDependencies struct {
	UserRepo         repository.UserRepository
	NotificationRepo repository.NotificationRepository
	PushTokenRepo    repository.PushTokenRepository
	EmailSender      provider.EmailSender
	SMSSender        provider.SMSSender
	PushSender       provider.PushSender
	Metrics          *observability.Metrics
	Logger           *zap.Logger
}

// NewDeliveryService creates the service.
func NewDeliveryService(deps DeliveryDependencies) *DeliveryService {
	return &DeliveryService{
		users:         deps.UserRepo,
		notifications: deps.NotificationRepo,
		pushTokens:    deps.PushTokenRepo,
		email:         deps.EmailSender,
		sms:           deps.SMSSender,
		push:          deps.PushSender,
		metrics:       deps.Metrics,
		logger:        deps.Logger,
	}
}

// Deliver sends the notification over every viable channel. The in-app
// channel is the stored notification itself and is marked delivered up
// front; email, SMS and push are attempted concurrently against their
// providers. A channel failure degrades the record, never the others.
func (s *DeliveryService) Deliver(ctx context.Context, notification *domain.Notification) (*domain.DeliveryRecord, error) {
	now := time.Now()
	record := &domain.DeliveryRecord{
		NotificationID: notification.ID,
		UserID:         notification.UserID,
		Channels: map[domain.Channel]domain.ChannelResult{
			domain.ChannelInApp: {Status: domain.ChannelStatusDelivered, Timestamp: now},
		},
	}
	s.metrics.RecordDelivery(string(domain.ChannelInApp), string(domain.ChannelStatusDelivered))

	user, err := s.users.GetByID(ctx, notification.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			reason := "recipient not found"
			record.Failed = true
			record.Completed = true
			record.Error = &reason
			if persistErr := s.notifications.CreateDeliveryRecord(ctx, record); persistErr != nil {
				s.logger.Error("persist delivery record", zap.Error(persistErr))
			}
			s.logger.Warn("delivery aborted",
				zap.String("notification_id", notification.ID),
				zap.String("user_id", notification.UserID),
				zap.String("reason", reason))
			return record, nil
		}
		return nil, apperrors.MapError(err)
	}

	tokens := s.listTokens(ctx, user.ID)
	plan := s.planChannels(user, tokens, now)
	for channel, result := range plan {
		record.Channels[channel] = result
		if result.Status == domain.ChannelStatusSkipped {
			s.metrics.RecordDelivery(string(channel), string(domain.ChannelStatusSkipped))
		}
	}

	if err := s.notifications.CreateDeliveryRecord(ctx, record); err != nil {
		return nil, apperrors.MapError(err)
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		attempt = func(channel domain.Channel, send func() error) {
			wg.Add(1)
			go func() {
				defer wg.Done()
				result := domain.ChannelResult{Status: domain.ChannelStatusDelivered, Timestamp: time.Now()}
				if err := send(); err != nil {
					result.Status = domain.ChannelStatusFailed
					result.Detail = err.Error()
					s.logger.Warn("channel delivery failed",
						zap.String("notification_id", notification.ID),
						zap.String("channel", string(channel)),
						zap.Error(err))
				}
				result.Timestamp = time.Now()
				s.metrics.RecordDelivery(string(channel), string(result.Status))
				mu.Lock()
				record.Channels[channel] = result
				mu.Unlock()
			}()
		}
	)

	if plan[domain.ChannelEmail].Status == domain.ChannelStatusPending {
		attempt(domain.ChannelEmail, func() error {
			return s.email.Send(ctx, user.Email, notification.Title, notification.Message)
		})
	}
	if plan[domain.ChannelSMS].Status == domain.ChannelStatusPending {
		attempt(domain.ChannelSMS, func() error {
			return s.sms.Send(ctx, *user.Phone, notification.Title+": "+notification.Message)
		})
	}
	if plan[domain.ChannelPush].Status == domain.ChannelStatusPending {
		attempt(domain.ChannelPush, func() error {
			return s.sendPush(ctx, user.ID, tokens, notification)
		})
	}
	wg.Wait()

	record.Completed = true
	for _, result := range record.Channels {
		if result.Status == domain.ChannelStatusFailed {
			record.Failed = true
			break
		}
	}
	if err := s.notifications.UpdateDeliveryRecord(ctx, record); err != nil {
		return nil, apperrors.MapError(err)
	}
	return record, nil
}

// planChannels decides, per channel, whether delivery is attempted
// (pending) or skipped with a reason.
func (s *DeliveryService) planChannels(user *domain.User, tokens []string, now time.Time) map[domain.Channel]domain.ChannelResult {
	plan := make(map[domain.Channel]domain.ChannelResult, 3)

	plan[domain.ChannelEmail] = channelPlan(now, []skipCheck{
		{!user.Preferences.Email, "channel disabled by preference"},
		{user.Email == "", "no email address on file"},
		{s.email == nil, "email provider not configured"},
	})
	plan[domain.ChannelSMS] = channelPlan(now, []skipCheck{
		{!user.Preferences.SMS, "channel disabled by preference"},
		{user.Phone == nil || *user.Phone == "", "no phone number on file"},
		{s.sms == nil, "sms provider not configured"},
	})
	plan[domain.ChannelPush] = channelPlan(now, []skipCheck{
		{!user.Preferences.Push, "channel disabled by preference"},
		{len(tokens) == 0, "no registered device tokens"},
		{s.push == nil, "push provider not configured"},
	})
	return plan
}

type skipCheck struct {
	skip   bool
	reason string
}

func channelPlan(now time.Time, checks []skipCheck) domain.ChannelResult {
	for _, check := range checks {
		if check.skip {
			return domain.ChannelResult{
				Status:    domain.ChannelStatusSkipped,
				Timestamp: now,
				Detail:    check.reason,
			}
		}
	}
	return domain.ChannelResult{Status: domain.ChannelStatusPending, Timestamp: now}
}

// sendPush delivers to all registered tokens and prunes exactly the ones
// the provider rejected. It fails only when every token fails.
func (s *DeliveryService) sendPush(ctx context.Context, userID string, tokens []string, notification *domain.Notification) error {
	data := map[string]string{"notification_id": notification.ID, "type": string(notification.Type)}
	results, err := s.push.Send(ctx, tokens, notification.Title, notification.Message, data)
	if err != nil {
		return err
	}

	var stale []string
	delivered := 0
	for _, result := range results {
		if result.Err != nil {
			stale = append(stale, result.Token)
			continue
		}
		delivered++
	}
	if len(stale) > 0 {
		if err := s.pushTokens.Remove(ctx, userID, stale...); err != nil {
			s.logger.Error("prune stale push tokens",
				zap.String("user_id", userID), zap.Error(err))
		}
	}
	if delivered == 0 {
		return apperrors.NewDeliveryError("push", errors.New("all device tokens rejected"))
	}
	return nil
}

func (s *DeliveryService) listTokens(ctx context.Context, userID string) []string {
	if s.pushTokens == nil {
		return nil
	}
	tokens, err := s.pushTokens.List(ctx, userID)
	if err != nil {
		s.logger.Error("list push tokens", zap.String("user_id", userID), zap.Error(err))
		return nil
	}
	return tokens
}
