package infrastructure

import (
	"go.opentelemetry.io/otel/attribute"
)

const (
	queueKey    = "messaging.destination.name"
	consumerKey = "messaging.consumer.id"
	outcomeKey  = "outcome"
	roleKey     = "role"
	statusKey   = "status"
)

const (
	OutcomeAcked   = "acked"
	OutcomeDropped = "dropped"

	StatusSuccess = "success"
	StatusError   = "error"
)

func QueueAttr(queue string) attribute.KeyValue {
	return attribute.String(queueKey, queue)
}

func ConsumerAttr(consumer string) attribute.KeyValue {
	return attribute.String(consumerKey, consumer)
}

func OutcomeAttr(outcome string) attribute.KeyValue {
	return attribute.String(outcomeKey, outcome)
}

func RoleAttr(role string) attribute.KeyValue {
	return attribute.String(roleKey, role)
}

func StatusAttr(status string) attribute.KeyValue {
	return attribute.String(statusKey, status)
}

func connectStatus(success bool) string {
	if success {
		return StatusSuccess
	}

	return StatusError
}
