package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Skotchmaster/marketplace/pkg/logging"
	"github.com/Skotchmaster/marketplace/pkg/metrics"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

type LineItem struct {
	ProductID uuid.UUID       `json:"product_id"`
	VendorID  uuid.UUID       `json:"vendor_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// OrderPlaced is the merchant-facing summary of a committed order.
type OrderPlaced struct {
	OrderID       uuid.UUID       `json:"order_id"`
	OrderNumber   string          `json:"order_number"`
	CustomerName  string          `json:"customer_name"`
	Total         decimal.Decimal `json:"total"`
	PaymentMethod *string         `json:"payment_method"`
	Items         []LineItem      `json:"items"`
	CreatedAt     time.Time       `json:"created_at"`
}

type Notifier interface {
	Notify(ctx context.Context, msg OrderPlaced) error
}

type KafkaNotifier struct {
	w *kafka.Writer
}

func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	return &KafkaNotifier{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		},
	}
}

func (n *KafkaNotifier) Notify(ctx context.Context, msg OrderPlaced) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	return n.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.OrderNumber),
		Value: data,
		Time:  time.Now().UTC(),
	})
}

func (n *KafkaNotifier) Close() error {
	return n.w.Close()
}

// LogNotifier stands in for the broker when none is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, msg OrderPlaced) error {
	logging.FromContext(ctx).Info("merchant_notification",
		"order_number", msg.OrderNumber,
		"total", msg.Total.String(),
		"items", len(msg.Items),
	)
	return nil
}

// Dispatcher sends notifications in the background. A failed or panicking
// send is logged and counted, nothing else.
type Dispatcher struct {
	Notifier Notifier
	Timeout  time.Duration
	Metrics  *metrics.CheckoutMetrics

	wg sync.WaitGroup
}

func NewDispatcher(n Notifier, timeout time.Duration, m *metrics.CheckoutMetrics) *Dispatcher {
	return &Dispatcher{Notifier: n, Timeout: timeout, Metrics: m}
}

func (d *Dispatcher) Dispatch(ctx context.Context, msg OrderPlaced) {
	if d == nil || d.Notifier == nil {
		return
	}
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	// keep request values such as the logger, drop its cancellation
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	l := logging.FromContext(ctx).With("order_number", msg.OrderNumber)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				d.Metrics.ObserveNotification("panic")
				l.Error("merchant_notification_error", "reason", "panic", "error", fmt.Sprint(r))
			}
		}()

		if err := d.Notifier.Notify(sendCtx, msg); err != nil {
			d.Metrics.ObserveNotification("error")
			l.Warn("merchant_notification_error", "error", err)
			return
		}
		d.Metrics.ObserveNotification("ok")
		l.Debug("merchant_notification_sent")
	}()
}

// Wait blocks until in-flight notifications finish.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}

var (
	_ Notifier = (*KafkaNotifier)(nil)
	_ Notifier = LogNotifier{}
)
