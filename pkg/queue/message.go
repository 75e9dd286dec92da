package queue

import (
	"errors"
	"time"
)

// ErrNoAcknowledger is returned when settling a delivery that was not received from a broker.
var ErrNoAcknowledger = errors.New("delivery has no acknowledger")

// Acknowledger settles a single delivery with the broker. amqp091.Delivery satisfies it.
type Acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
	Reject(requeue bool) error
}

// Message represents a message that can be published or consumed.
type Message struct {
	ID          string
	ContentType string
	Body        []byte
	Headers     map[string]any
	Timestamp   time.Time
}

// Delivery is a message received from a queue together with its acknowledgement handle.
type Delivery struct {
	Message

	Queue       string
	ConsumerTag string
	Redelivered bool

	acker Acknowledger
}

// NewDelivery binds msg to acker.
func NewDelivery(msg Message, queue, consumerTag string, redelivered bool, acker Acknowledger) Delivery {
	return Delivery{
		Message:     msg,
		Queue:       queue,
		ConsumerTag: consumerTag,
		Redelivered: redelivered,
		acker:       acker,
	}
}

// Ack is used to positively acknowledge a consumed message.
func (d Delivery) Ack() error {
	if d.acker == nil {
		return ErrNoAcknowledger
	}

	return d.acker.Ack(false)
}

// Nack is used to negatively acknowledge a consumed message.
func (d Delivery) Nack(requeue bool) error {
	if d.acker == nil {
		return ErrNoAcknowledger
	}

	return d.acker.Nack(false, requeue)
}

// Reject is used to negatively acknowledge a consumed message. It will not be requeued.
func (d Delivery) Reject() error {
	if d.acker == nil {
		return ErrNoAcknowledger
	}

	return d.acker.Reject(false)
}
