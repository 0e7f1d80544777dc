package events

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

// Publisher mirrors outbound realtime events to RabbitMQ so off-process
// consumers (dashboard backend, analytics) can observe routing activity.
// A Publisher built without a URL is disabled and publishes nothing.
type Publisher struct {
	conn        *amqp091.Connection
	channel     *amqp091.Channel
	enabled     bool
	queuePrefix string
}

// queueEnvelope wraps an event payload with correlation metadata for consumers.
type queueEnvelope struct {
	Event         string      `json:"event"`
	Payload       interface{} `json:"payload"`
	CorrelationID string      `json:"correlationId"`
	EmittedAt     time.Time   `json:"emittedAt"`
}

// NewPublisher connects to RabbitMQ. An empty URL disables publishing; a
// connection failure also leaves the publisher disabled rather than failing
// startup, since the event mirror is a side channel.
func NewPublisher(rabbitURL, queuePrefix string) *Publisher {
	p := &Publisher{queuePrefix: queuePrefix}
	if p.queuePrefix == "" {
		p.queuePrefix = "botup"
	}

	if rabbitURL == "" {
		log.Info().Msg("RABBITMQ_URL is not set. Event mirroring disabled.")
		return p
	}

	conn, err := amqp091.Dial(rabbitURL)
	if err != nil {
		log.Error().Err(err).Msg("Could not connect to RabbitMQ")
		return p
	}
	channel, err := conn.Channel()
	if err != nil {
		log.Error().Err(err).Msg("Could not open RabbitMQ channel")
		_ = conn.Close()
		return p
	}

	p.conn = conn
	p.channel = channel
	p.enabled = true
	log.Info().Str("prefix", p.queuePrefix).Msg("RabbitMQ connection established.")
	return p
}

// Enabled reports whether events are actually being mirrored.
func (p *Publisher) Enabled() bool {
	return p.enabled
}

// queueName derives the per-event queue, e.g. botup_bot_response.
func (p *Publisher) queueName(eventType string) string {
	return p.queuePrefix + "_" + strings.ToLower(eventType)
}

// Publish mirrors one event. Failures are logged, never surfaced: the mirror
// must not affect the realtime path.
func (p *Publisher) Publish(eventType string, payload interface{}) {
	if !p.enabled {
		return
	}

	envelope := queueEnvelope{
		Event:         eventType,
		Payload:       payload,
		CorrelationID: uuid.NewString(),
		EmittedAt:     time.Now(),
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		log.Error().Err(err).Str("event", eventType).Msg("Failed to marshal event envelope for RabbitMQ")
		return
	}

	queue := p.queueName(eventType)

	// Declare queue (idempotent)
	_, err = p.channel.QueueDeclare(
		queue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		log.Error().Err(err).Str("queue", queue).Msg("Could not declare RabbitMQ queue")
		return
	}

	err = p.channel.Publish(
		"",    // exchange (default)
		queue, // routing key = queue
		false, // mandatory
		false, // immediate
		amqp091.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
	if err != nil {
		log.Error().Err(err).Str("queue", queue).Msg("Could not publish to RabbitMQ")
	} else {
		log.Debug().Str("event", eventType).Str("queue", queue).Msg("Mirrored event to RabbitMQ")
	}
}

// Close tears down the AMQP channel and connection.
func (p *Publisher) Close() {
	if !p.enabled {
		return
	}
	if err := p.channel.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing RabbitMQ channel")
	}
	if err := p.conn.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing RabbitMQ connection")
	}
	p.enabled = false
}
