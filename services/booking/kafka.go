package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/flatmates/flatmates-backend/shared/models"
)

const notificationTopic = "notification-events"

// NotificationProducer queues notification events onto Kafka with a
// worker pool, so email dispatch never blocks a booking request.
type NotificationProducer struct {
	writer       *kafka.Writer
	eventChan    chan models.NotificationEvent
	workerCount  int
	shutdownChan chan struct{}
	wg           sync.WaitGroup
}

// NewNotificationProducer creates a new Kafka producer with worker pool
func NewNotificationProducer(broker string) (*NotificationProducer, error) {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(broker),
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
	}

	np := &NotificationProducer{
		writer:       writer,
		eventChan:    make(chan models.NotificationEvent, 1000),
		workerCount:  10,
		shutdownChan: make(chan struct{}),
	}

	np.startWorkers()

	return np, nil
}

// startWorkers starts the worker pool for async event processing
func (np *NotificationProducer) startWorkers() {
	for i := 0; i < np.workerCount; i++ {
		np.wg.Add(1)
		go np.eventWorker(i)
	}

	logrus.Infof("[Kafka] Started %d notification workers", np.workerCount)
}

// eventWorker drains the event channel into Kafka
func (np *NotificationProducer) eventWorker(id int) {
	defer np.wg.Done()

	for {
		select {
		case event := <-np.eventChan:
			if err := np.publishSync(event); err != nil {
				logrus.Errorf("[Kafka Worker %d] Failed to publish notification event: %v", id, err)
			}
		case <-np.shutdownChan:
			logrus.Infof("[Kafka Worker %d] Shutting down notification worker", id)
			return
		}
	}
}

// Publish queues a notification event asynchronously (non-blocking)
func (np *NotificationProducer) Publish(event models.NotificationEvent) error {
	select {
	case np.eventChan <- event:
		return nil
	default:
		// Channel full - drop event
		return fmt.Errorf("notification event queue full, event dropped")
	}
}

// publishSync writes a notification event to Kafka (called by workers)
func (np *NotificationProducer) publishSync(event models.NotificationEvent) error {
	message, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal notification event: %w", err)
	}

	msg := kafka.Message{
		Topic: notificationTopic,
		Key:   []byte(event.Recipient),
		Value: message,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "listing_id", Value: []byte(event.ListingID.String())},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := np.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write notification event to Kafka: %w", err)
	}

	return nil
}

// Close gracefully shuts down the Kafka producer and workers
func (np *NotificationProducer) Close() error {
	close(np.shutdownChan)

	np.wg.Wait()

	close(np.eventChan)

	if err := np.writer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka writer: %w", err)
	}

	return nil
}
