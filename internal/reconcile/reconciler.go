// Package reconcile applies trade lifecycle events to the record store and the
// notification channel.
package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/traderelay/internal/domain"
	"github.com/betbot/traderelay/internal/message"
	"github.com/betbot/traderelay/internal/metrics"
	"github.com/betbot/traderelay/internal/notify"
	"github.com/betbot/traderelay/internal/store"
	"github.com/betbot/traderelay/pkg/logger"
)

// AnchorPolicy decides which message later notifications reply to.
type AnchorPolicy string

const (
	// AnchorLatest moves the anchor to every successfully sent message.
	AnchorLatest AnchorPolicy = "latest"
	// AnchorOpen keeps the Open message as the anchor for the whole order.
	AnchorOpen AnchorPolicy = "open"
)

func (p AnchorPolicy) Valid() bool { return p == AnchorLatest || p == AnchorOpen }

type OutcomeKind string

const (
	OutcomeCreated  OutcomeKind = "created"
	OutcomeUpdated  OutcomeKind = "updated"
	OutcomeClosed   OutcomeKind = "closed"
	OutcomeNotFound OutcomeKind = "not_found"
)

type Outcome struct {
	Kind    OutcomeKind
	OrderID int64
	// NotificationHandle is the message sent for this event.
	NotificationHandle string
	RecordHandle       string
}

const DefaultSendTimeout = 10 * time.Second

type Options struct {
	Anchor      AnchorPolicy
	SendTimeout time.Duration
	ProfitUnit  domain.ProfitUnit
}

type Reconciler struct {
	store     store.RecordStore
	channel   notify.Channel
	formatter *message.Formatter
	profit    ProfitCalculator
	anchor    AnchorPolicy
	timeout   time.Duration
}

func New(st store.RecordStore, ch notify.Channel, opts Options) *Reconciler {
	if !opts.Anchor.Valid() {
		opts.Anchor = AnchorLatest
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = DefaultSendTimeout
	}
	if !opts.ProfitUnit.Valid() {
		opts.ProfitUnit = domain.ProfitCurrency
	}
	return &Reconciler{
		store:     st,
		channel:   ch,
		formatter: message.NewFormatter(message.Options{ProfitUnit: opts.ProfitUnit}),
		profit:    NewProfitCalculator(opts.ProfitUnit),
		anchor:    opts.Anchor,
		timeout:   opts.SendTimeout,
	}
}

// Reconcile handles one event: look up the order, send the notification, then
// persist. A failed send persists nothing. Nothing is retried.
func (r *Reconciler) Reconcile(ctx context.Context, ev domain.Event) (Outcome, error) {
	metrics.RelayEvents.Add(1)
	log := logger.WithFields(logrus.Fields{
		"order_id": ev.OrderID,
		"action":   ev.Action,
	})

	out, err := r.reconcile(ctx, ev, log)
	if err != nil {
		kind := domain.KindOf(err)
		metrics.RelayFailures.Add(string(kind), 1)
		log.WithField("kind", kind).Errorf("reconcile failed: %v", err)
		return out, err
	}

	metrics.RelayOutcomes.Add(string(out.Kind), 1)
	if out.Kind == OutcomeNotFound {
		metrics.RelayNotFound.Add(1)
		log.Infof("no record for order, nothing to do")
		return out, nil
	}
	log.WithFields(logrus.Fields{
		"outcome":             out.Kind,
		"notification_handle": out.NotificationHandle,
		"record_handle":       out.RecordHandle,
	}).Info("reconciled")
	return out, nil
}

func (r *Reconciler) reconcile(ctx context.Context, ev domain.Event, log *logrus.Entry) (Outcome, error) {
	out := Outcome{OrderID: ev.OrderID}
	if err := ev.Validate(); err != nil {
		return out, err
	}

	var existing *domain.Order
	found, err := r.store.FindByOrderID(ctx, ev.OrderID)
	switch {
	case err == nil:
		existing = &found
	case errors.Is(err, store.ErrRecordNotFound):
	default:
		return out, asKind(domain.KindLookupError, "find record", err)
	}

	if existing != nil && ev.Action == domain.ActionClose {
		ev.Profit = decimal.NewNullDecimal(r.profit.Profit(*existing, ev))
	}

	plan, err := Decide(ev, existing)
	if err != nil {
		return out, err
	}
	out.Kind = plan.Outcome
	if plan.Kind == PlanNotFound {
		return out, nil
	}

	text, err := r.formatter.Format(ev)
	if err != nil {
		return out, err
	}

	handle, err := r.send(ctx, text, plan.ReplyTo)
	if err != nil {
		return out, err
	}
	out.NotificationHandle = handle

	switch plan.Kind {
	case PlanCreate:
		plan.Order.NotificationHandle = handle
		recordHandle, err := r.store.Create(ctx, plan.Order)
		if err != nil {
			log.WithField("notification_handle", handle).Warn("message sent but record not created")
			return out, asKind(domain.KindWriteError, "create record", err)
		}
		out.RecordHandle = recordHandle

	case PlanUpdate:
		if r.moveAnchor(ev, plan.ReplyTo) {
			plan.Changes.NotificationHandle = domain.Ptr(handle)
		}
		if err := r.store.Update(ctx, plan.RecordHandle, plan.Changes); err != nil {
			log.WithField("notification_handle", handle).Warn("message sent but record not updated")
			return out, asKind(domain.KindWriteError, "update record", err)
		}
		out.RecordHandle = plan.RecordHandle
	}
	metrics.RelayStoreWrites.Add(1)
	return out, nil
}

func (r *Reconciler) send(ctx context.Context, text, replyTo string) (string, error) {
	sendCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	handle, err := r.channel.Send(sendCtx, text, replyTo)
	latencyMs := time.Since(start).Milliseconds()
	metrics.NotifyLatencyLastMs.Set(latencyMs)
	metrics.NotifyLatencyTotalMs.Add(latencyMs)
	metrics.NotifyLatencySamples.Add(1)
	if err != nil {
		return "", asKind(domain.KindNotificationError, "send notification", err)
	}
	metrics.RelayNotifications.Add(1)
	return handle, nil
}

// moveAnchor reports whether the message just sent becomes the reply anchor.
func (r *Reconciler) moveAnchor(ev domain.Event, current string) bool {
	if r.anchor == AnchorLatest {
		return true
	}
	return ev.Action == domain.ActionOpen || current == ""
}

// asKind keeps an existing kind and tags untyped errors with kind.
func asKind(kind domain.Kind, op string, err error) error {
	if domain.KindOf(err) != domain.KindInternal {
		return err
	}
	return domain.NewError(kind, op, err)
}
