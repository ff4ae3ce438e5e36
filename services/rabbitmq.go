package services

import (
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/resoul/shortsgen/config"
	"github.com/resoul/shortsgen/models"
	"github.com/sirupsen/logrus"
)

// RabbitMQService lets upstream automation submit generation jobs over a
// durable queue instead of HTTP. Messages use the array-format request
// payload and feed the same worker pool.
type RabbitMQService struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   amqp.Queue
	tasks   *TaskStore
	pool    *WorkerPool
}

func NewRabbitMQService(cfg config.RabbitMQConfig, tasks *TaskStore, pool *WorkerPool) (*RabbitMQService, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	q, err := ch.QueueDeclare(
		cfg.QueueName,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &RabbitMQService{
		conn:    conn,
		channel: ch,
		queue:   q,
		tasks:   tasks,
		pool:    pool,
	}, nil
}

// Consume blocks reading job messages until the channel closes or the pool
// shuts down. Messages are acked once handed to the pool; malformed messages
// are dropped with a nack so they never wedge the queue.
func (s *RabbitMQService) Consume() error {
	msgs, err := s.channel.Consume(
		s.queue.Name,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return err
	}

	for msg := range msgs {
		task, err := s.accept(msg.Body)
		if err != nil {
			if errors.Is(err, ErrPoolClosed) {
				// Shutdown is in progress; requeue so another
				// consumer picks the job up.
				if nerr := msg.Nack(false, true); nerr != nil {
					logrus.WithError(nerr).Warn("Failed to nack queued job")
				}
				return err
			}

			logrus.WithError(err).Warn("Dropping queued job")
			if nerr := msg.Nack(false, false); nerr != nil {
				logrus.WithError(nerr).Warn("Failed to nack queued job")
			}
			continue
		}

		logrus.WithField("task_id", task.ID).Info("Queued job accepted")
		if aerr := msg.Ack(false); aerr != nil {
			logrus.WithError(aerr).Warn("Failed to ack queued job")
		}
	}

	return fmt.Errorf("consume channel closed")
}

// accept parses and validates one queued job message and hands the task to
// the worker pool, blocking when the pool is saturated so the broker feels
// the backpressure.
func (s *RabbitMQService) accept(body []byte) (*models.Task, error) {
	var req models.GenerateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("parse queued job: %w", err)
	}

	if len(req.Videos) != len(models.Platforms) {
		return nil, fmt.Errorf("queued job has %d videos, want %d", len(req.Videos), len(models.Platforms))
	}

	task := models.NewGenerateTask(req)
	s.tasks.Add(task)

	if err := s.pool.Enqueue(task); err != nil {
		s.tasks.MarkFailed(task.ID, err.Error())
		return task, err
	}
	return task, nil
}

func (s *RabbitMQService) Close() {
	if s.channel != nil {
		s.channel.Close()
	}
	if s.conn != nil {
		s.conn.Close()
	}
}
