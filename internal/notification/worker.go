package notification

import (
	"context"
	"fmt"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"parkride-insights-backend/internal/model"
)

// Event describes a facility status transition worth pushing to
// subscribers.
type Event struct {
	FacilityID   string
	FacilityName string
	Status       model.FacilityStatus
}

// NotificationSender defines the interface for sending a web push
// notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the
// webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// WorkerPool manages a pool of workers for sending notifications.
type WorkerPool struct {
	size    int
	jobs    chan Event
	db      *gorm.DB
	webpush *webpush.Options
	sender  NotificationSender
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan Event, size),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Debug().Int("worker", id).Msg("notification worker started")
	for {
		select {
		case event := <-wp.jobs:
			log.Debug().Int("worker", id).Str("facility", event.FacilityID).
				Str("status", string(event.Status)).Msg("processing notification event")
			wp.sendNotificationsForFacility(ctx, event)
		case <-ctx.Done():
			log.Debug().Int("worker", id).Msg("notification worker shutting down")
			return
		}
	}
}

// Dispatch sends an event to the worker pool.
func (wp *WorkerPool) Dispatch(event Event) {
	wp.jobs <- event
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan Event {
	return wp.jobs
}

// sendNotificationsForFacility fetches subscriptions for the facility and
// pushes the event to each of them.
func (wp *WorkerPool) sendNotificationsForFacility(ctx context.Context, event Event) {
	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Joins("JOIN subscription_facility_mapping sfm ON sfm.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("sfm.facility_id = ?", event.FacilityID).
		Find(&subscriptions).Error
	if err != nil {
		log.Error().Err(err).Str("facility", event.FacilityID).Msg("failed to fetch subscriptions")
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	label := event.FacilityName
	if label == "" {
		var facility model.Facility
		if err := wp.db.WithContext(ctx).Select("name").First(&facility, "id = ?", event.FacilityID).Error; err != nil {
			log.Warn().Err(err).Str("facility", event.FacilityID).Msg("failed to resolve facility name")
			label = event.FacilityID
		} else {
			label = facility.Name
		}
	}

	var message string
	switch event.Status {
	case model.StatusFull:
		message = fmt.Sprintf("Park&Ride %s is now full", label)
	case model.StatusAlmostFull:
		message = fmt.Sprintf("Park&Ride %s is almost full", label)
	default:
		message = fmt.Sprintf("Park&Ride %s has spaces again", label)
	}

	log.Info().Int("subscriptions", len(subscriptions)).Str("facility", event.FacilityID).
		Str("status", string(event.Status)).Msg("sending notifications")
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, []byte(message))
	}
}

// sendNotification sends a single web push notification and prunes
// subscriptions the push service reports as gone.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Error().Err(err).Str("endpoint", sub.Endpoint).Msg("failed to send notification")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		log.Info().Str("endpoint", sub.Endpoint).Msg("subscription expired, deleting")
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			log.Error().Err(err).Str("endpoint", sub.Endpoint).Msg("failed to delete expired subscription")
		}
	}
}
