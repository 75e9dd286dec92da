// Package queue provides the broker client used by the harness to publish and
// consume records, with a RabbitMQ implementation and an in-process one.
//
// # Overview
//
// The package exposes three small interfaces that mirror the AMQP model:
// a Broker dials a Connection, a Connection opens Channels, and a Channel
// declares queues, publishes messages and streams deliveries. Every Delivery
// carries its own acknowledgement handle.
//
// # Basic Usage
//
// Connecting to RabbitMQ:
//
//	broker := queue.NewRabbitMQBroker(queue.Config{
//		Scheme:   "amqp",
//		Username: "guest",
//		Password: "guest",
//		Host:     "localhost",
//		Port:     5672,
//		Vhost:    "/",
//	}, queue.WithLogger(queue.NewZerologAdapter(logger)))
//
//	conn, err := broker.Connect(ctx)
//	if err != nil {
//		return err
//	}
//	defer conn.Close()
//
//	ch, err := conn.Channel(ctx)
//	if err != nil {
//		return err
//	}
//
//	if err := ch.DeclareQueue(ctx, "person_queue", true); err != nil {
//		return err
//	}
//
// Publishing messages (the default exchange routes by queue name):
//
//	err := ch.Publish(ctx, "person_queue", queue.Message{
//		ID:          uuid.NewString(),
//		ContentType: "application/json",
//		Body:        body,
//	})
//
// Consuming messages:
//
//	deliveries, err := ch.Consume(ctx, "person_queue", "consumer-1")
//	if err != nil {
//		return err
//	}
//
//	for d := range deliveries {
//		// process d.Body
//		if err := d.Ack(); err != nil {
//			return err
//		}
//	}
//
// # Acknowledgement
//
// Deliveries are consumed with manual acknowledgement. A delivery that is
// neither acknowledged nor rejected before its channel closes is returned to
// the queue by the broker and redelivered to another consumer.
//
// # In-process broker
//
// NewMemoryBroker returns a Broker that keeps queues in memory with
// competing-consumer semantics. It is used for local runs without RabbitMQ and
// as a test double. WithMaxLength bounds each queue so a publisher running
// without consumers cannot grow it without limit.
//
// # Logging Integration
//
// The package defines a minimal logging interface. NewZerologAdapter bridges it
// to zerolog.
package queue
