package notification

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/eventreg/internal/config"
	identitydomain "github.com/smallbiznis/eventreg/internal/identity/domain"
	"github.com/smallbiznis/eventreg/internal/notification/domain"
	obsmetrics "github.com/smallbiznis/eventreg/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const sendTimeout = 10 * time.Second

type Params struct {
	fx.In

	Log        *zap.Logger
	Policy     *config.PolicyHolder
	Senders    []domain.Sender                 `group:"notification.senders"`
	Identity   identitydomain.Service          `optional:"true"`
	ObsMetrics *obsmetrics.Metrics             `optional:"true"`
	RegMetrics *obsmetrics.RegistrationMetrics `optional:"true"`
}

// Dispatcher queues notifications in a bounded buffer drained by one worker.
// A full queue drops the notification; delivery never blocks the caller.
type Dispatcher struct {
	log        *zap.Logger
	senders    []domain.Sender
	identity   identitydomain.Service
	obsMetrics *obsmetrics.Metrics
	regMetrics *obsmetrics.RegistrationMetrics

	queue chan domain.Notification

	mu      sync.RWMutex
	stopped bool
	done    chan struct{}
}

func NewDispatcher(p Params) *Dispatcher {
	size := p.Policy.Get().NotificationQueueSize
	if size <= 0 {
		size = config.DefaultRegistrationPolicy().NotificationQueueSize
	}
	return &Dispatcher{
		log:        p.Log.Named("notification.dispatcher"),
		senders:    p.Senders,
		identity:   p.Identity,
		obsMetrics: p.ObsMetrics,
		regMetrics: p.RegMetrics,
		queue:      make(chan domain.Notification, size),
		done:       make(chan struct{}),
	}
}

func (d *Dispatcher) Notify(ctx context.Context, n domain.Notification) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return
	}
	if n.OccurredAt.IsZero() {
		n.OccurredAt = time.Now().UTC()
	}

	select {
	case d.queue <- n:
		d.regMetrics.SetNotificationQueueDepth(len(d.queue))
	default:
		d.regMetrics.IncNotificationDropped()
		d.log.Warn("notification queue full, dropping",
			zap.String("kind", string(n.Kind)),
			zap.String("registration_id", n.RegistrationID.String()),
		)
	}
}

// Run drains the queue until Stop closes it.
func (d *Dispatcher) Run() {
	defer close(d.done)
	for n := range d.queue {
		d.regMetrics.SetNotificationQueueDepth(len(d.queue))
		d.deliver(n)
	}
}

// Stop closes the queue and waits for queued notifications to drain or ctx to end.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.stopped {
		d.stopped = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) deliver(n domain.Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	if n.Recipient == nil && d.identity != nil {
		contact, err := d.identity.Contact(ctx, n.Participant)
		if err != nil {
			d.log.Warn("resolve notification recipient",
				zap.String("participant", n.Participant.String()),
				zap.Error(err),
			)
		} else {
			n.Recipient = &contact
		}
	}

	for _, sender := range d.senders {
		d.send(ctx, sender, n)
	}
}

func (d *Dispatcher) send(ctx context.Context, sender domain.Sender, n domain.Notification) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("notification sender panicked", zap.String("transport", sender.Name()), zap.Any("panic", r))
		}
	}()

	outcome := "ok"
	if err := sender.Send(ctx, n); err != nil {
		outcome = "error"
		d.log.Warn("notification delivery failed",
			zap.String("transport", sender.Name()),
			zap.String("kind", string(n.Kind)),
			zap.Error(err),
		)
	}
	if d.obsMetrics != nil {
		d.obsMetrics.RecordNotification(ctx, sender.Name(), outcome)
	}
}
