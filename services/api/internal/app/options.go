package app

import (
	"context"
	"time"

	"github.com/cimillas/checkout-ledger/services/api/internal/domain"
	"github.com/cimillas/checkout-ledger/services/api/internal/events"
	"go.uber.org/zap"
)

// DefaultPaymentWindow applies to payment methods without a configured window.
const DefaultPaymentWindow = 30 * time.Minute

// PaymentWindows holds the payment window length per payment method.
type PaymentWindows struct {
	Default  time.Duration
	ByMethod map[domain.PaymentMethod]time.Duration
}

// For returns the window for m, falling back to Default and then DefaultPaymentWindow.
func (w PaymentWindows) For(m domain.PaymentMethod) time.Duration {
	if d, ok := w.ByMethod[m]; ok && d > 0 {
		return d
	}
	if w.Default > 0 {
		return w.Default
	}
	return DefaultPaymentWindow
}

type options struct {
	logger    *zap.Logger
	publisher events.Publisher
	windows   PaymentWindows
}

// Option configures the services in this package.
type Option func(*options)

func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithPublisher(p events.Publisher) Option {
	return func(o *options) {
		if p != nil {
			o.publisher = p
		}
	}
}

// WithPaymentWindows overrides the payment window per method.
func WithPaymentWindows(w PaymentWindows) Option {
	return func(o *options) {
		o.windows = w
	}
}

func newOptions(opts []Option) options {
	o := options{
		logger:    zap.NewNop(),
		publisher: events.Nop{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// publish sends ev after the state change has committed. Failures are logged,
// never returned: the write already happened.
func (o options) publish(ctx context.Context, ev events.Event) {
	if err := o.publisher.Publish(ctx, ev); err != nil {
		o.logger.Warn("publish event failed",
			zap.String("event_type", ev.Type),
			zap.String("key", ev.Key),
			zap.Error(err))
	}
}
