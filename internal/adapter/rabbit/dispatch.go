package rabbit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/velodrop/courier-dispatch-system/internal/domain/models"
	"github.com/velodrop/courier-dispatch-system/pkg/logger"
	wrap "github.com/velodrop/courier-dispatch-system/pkg/logger/wrapper"
	"github.com/velodrop/courier-dispatch-system/pkg/metrics"
	"github.com/velodrop/courier-dispatch-system/pkg/rabbit"
)

const (
	DispatchExchange = "dispatch_topic"

	QueueOrderCreated   = "order_created"
	QueueOrderCancelled = "order_cancelled"

	KeyOrderCreated   = "order.created"
	KeyOrderCancelled = "order.cancelled"
)

// DispatchBroker publishes dispatch lifecycle events and consumes order
// announcements from the upstream order service.
type DispatchBroker struct {
	client   *rabbit.RabbitMQ
	exchange string
	service  string

	l logger.Logger
}

func NewDispatchBroker(client *rabbit.RabbitMQ, service string, log logger.Logger) *DispatchBroker {
	return &DispatchBroker{
		client:   client,
		exchange: DispatchExchange,
		service:  service,

		l: log,
	}
}

// publish marshals msg and sends it with the given routing key, retrying
// transient broker hiccups.
func (b *DispatchBroker) publish(ctx context.Context, key, correlationID string, msg any) error {
	if err := b.client.EnsureConnection(ctx); err != nil {
		b.l.Error(ctx, "ensure connection failed", err)
		metrics.RabbitMQMessagesPublished.WithLabelValues(b.service, key, "error").Inc()
		return wrap.Error(ctx, err)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return wrap.Error(ctx, fmt.Errorf("failed to marshal message: %w", err))
	}

	err = retry(5, time.Second, func() error {
		return b.client.Channel.PublishWithContext(
			ctx,
			b.exchange, // exchange
			key,        // routing key
			false,      // mandatory
			false,      // immediate
			amqp091.Publishing{
				ContentType:   "application/json",
				CorrelationId: correlationID,
				Body:          body,
				Timestamp:     time.Now(),
			},
		)
	})
	if err != nil {
		metrics.RabbitMQMessagesPublished.WithLabelValues(b.service, key, "error").Inc()
		return wrap.Error(ctx, fmt.Errorf("failed to publish %s: %w", key, err))
	}

	metrics.RabbitMQMessagesPublished.WithLabelValues(b.service, key, "success").Inc()
	return nil
}

// OrderAssigned announces a successful assignment. Routing key carries the
// courier id so courier apps can bind to their own events.
func (b *DispatchBroker) OrderAssigned(ctx context.Context, msg models.OrderStatusUpdateMessage) error {
	ctx = wrap.WithAction(ctx, "rabbitmq_publish_order_assigned")

	key := "order.assigned"
	if msg.CourierID != nil {
		key = fmt.Sprintf("order.assigned.%s", msg.CourierID)
	}
	return b.publish(ctx, key, msg.CorrelationID, msg)
}

func (b *DispatchBroker) OrderCancelled(ctx context.Context, msg models.OrderStatusUpdateMessage) error {
	ctx = wrap.WithAction(ctx, "rabbitmq_publish_order_cancelled")
	return b.publish(ctx, "order.cancelled", msg.CorrelationID, msg)
}

// DispatchExhausted alerts operations that no courier could be found.
func (b *DispatchBroker) DispatchExhausted(ctx context.Context, msg models.DispatchExhaustedMessage) error {
	ctx = wrap.WithAction(ctx, "rabbitmq_publish_dispatch_exhausted")
	return b.publish(ctx, "dispatch.exhausted", msg.CorrelationID, msg)
}

func (b *DispatchBroker) CourierStatusChanged(ctx context.Context, msg models.CourierStatusUpdateMessage) error {
	ctx = wrap.WithAction(ctx, "rabbitmq_publish_courier_status")
	return b.publish(ctx, fmt.Sprintf("courier.status.%s", msg.Status), "", msg)
}

// OrderCreatedHandler processes one announced order; returning a recoverable
// error requeues the message.
type OrderCreatedHandler func(ctx context.Context, msg models.OrderCreatedMessage) error

// ConsumeOrderCreated blocks, feeding announced orders to the handler until
// ctx is cancelled. Connection loss triggers reconnect-and-resume.
func (b *DispatchBroker) ConsumeOrderCreated(ctx context.Context, handler OrderCreatedHandler) error {
	ctx = wrap.WithAction(ctx, "rabbitmq_consume_order_created")
	return consume(ctx, b, QueueOrderCreated, KeyOrderCreated, func(ctx context.Context, body []byte) error {
		var msg models.OrderCreatedMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			return fmt.Errorf("failed to unmarshal order created message: %w", err)
		}
		return handler(wrap.WithRequestID(ctx, msg.CorrelationID), msg)
	})
}

// OrderCancelledHandler reacts to upstream cancellations of pending orders.
type OrderCancelledHandler func(ctx context.Context, msg models.OrderStatusUpdateMessage) error

func (b *DispatchBroker) ConsumeOrderCancelled(ctx context.Context, handler OrderCancelledHandler) error {
	ctx = wrap.WithAction(ctx, "rabbitmq_consume_order_cancelled")
	return consume(ctx, b, QueueOrderCancelled, KeyOrderCancelled, func(ctx context.Context, body []byte) error {
		var msg models.OrderStatusUpdateMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			return fmt.Errorf("failed to unmarshal order cancelled message: %w", err)
		}
		return handler(wrap.WithRequestID(ctx, msg.CorrelationID), msg)
	})
}

// declareAndBind makes sure the exchange and queue exist and are bound, so
// consumers survive a fresh broker.
func (b *DispatchBroker) declareAndBind(queue, bindingKey string) error {
	const op = "DispatchBroker.declareAndBind"

	if err := b.client.Channel.ExchangeDeclare(b.exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("%s: declare exchange failed: %w", op, err)
	}

	q, err := b.client.Channel.QueueDeclare(queue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("%s: declare queue failed: %w", op, err)
	}

	if err := b.client.Channel.QueueBind(q.Name, bindingKey, b.exchange, false, nil); err != nil {
		return fmt.Errorf("%s: bind queue failed: %w", op, err)
	}

	return nil
}

// consume is the shared consumer loop: declare, subscribe, dispatch each
// delivery to a goroutine, reconnect on channel loss.
func consume(ctx context.Context, b *DispatchBroker, queue, bindingKey string, handle func(ctx context.Context, body []byte) error) error {
	for {
		if ctx.Err() != nil {
			b.l.Debug(ctx, "consumer stopped by context", "queue", queue)
			return nil
		}

		if err := b.client.EnsureConnection(ctx); err != nil {
			b.l.Error(ctx, "ensure connection failed", err)
			time.Sleep(2 * time.Second)
			continue
		}

		if err := b.declareAndBind(queue, bindingKey); err != nil {
			b.l.Error(ctx, "declare failed", err, "queue", queue)
			time.Sleep(2 * time.Second)
			continue
		}

		msgs, err := b.client.Channel.Consume(queue, "", false, false, false, false, nil)
		if err != nil {
			b.l.Error(ctx, "consume failed", err, "queue", queue)
			time.Sleep(2 * time.Second)
			continue
		}

		b.l.Info(ctx, "start consuming", "queue", queue)

	consumeLoop:
		for {
			select {
			case <-ctx.Done():
				b.l.Info(ctx, "consumer shutting down", "queue", queue)
				return nil

			case msg, ok := <-msgs:
				if !ok {
					b.l.Warn(ctx, "message channel closed, reconnecting...", "queue", queue)
					time.Sleep(2 * time.Second)
					break consumeLoop
				}

				go func(d amqp091.Delivery) {
					msgCtx := wrap.WithRequestID(ctx, d.CorrelationId)

					if err := handle(msgCtx, d.Body); err != nil {
						b.l.Error(wrap.ErrorCtx(msgCtx, err), "failed to handle message", err, "queue", queue)
						metrics.RabbitMQMessagesConsumed.WithLabelValues(b.service, queue, "error").Inc()

						if isRecoverableError(err) {
							d.Nack(false, true) // requeue
						} else {
							d.Nack(false, false)
						}
						return
					}

					metrics.RabbitMQMessagesConsumed.WithLabelValues(b.service, queue, "success").Inc()
					d.Ack(false)
				}(msg)
			}
		}
	}
}
