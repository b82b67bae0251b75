package reconcile

import (
	"errors"

	"github.com/betbot/traderelay/internal/domain"
)

type PlanKind int

const (
	PlanNotFound PlanKind = iota
	PlanCreate
	PlanUpdate
)

func (k PlanKind) String() string {
	switch k {
	case PlanCreate:
		return "create"
	case PlanUpdate:
		return "update"
	default:
		return "not_found"
	}
}

// Plan is what one event does to the store and the channel.
type Plan struct {
	Kind PlanKind
	// Outcome is reported once the plan has been carried out.
	Outcome OutcomeKind

	// Order is the new record for PlanCreate.
	Order domain.Order

	// RecordHandle, ReplyTo and Changes apply to PlanUpdate.
	RecordHandle string
	ReplyTo      string
	Changes      domain.Changes
}

// Decide maps (action, record exists) to a plan. It has no side effects and
// expects a validated event. The notification handle is not known yet and is
// left for the caller to fill in.
func Decide(ev domain.Event, existing *domain.Order) (Plan, error) {
	switch ev.Action {
	case domain.ActionOpen:
		if existing == nil {
			return Plan{Kind: PlanCreate, Outcome: OutcomeCreated, Order: openOrder(ev)}, nil
		}
		return updatePlan(existing, OutcomeUpdated, openChanges(ev)), nil

	case domain.ActionUpdate:
		if existing == nil {
			return Plan{Kind: PlanNotFound, Outcome: OutcomeNotFound}, nil
		}
		return updatePlan(existing, OutcomeUpdated, levelChanges(ev)), nil

	case domain.ActionClose:
		if existing == nil {
			return Plan{Kind: PlanNotFound, Outcome: OutcomeNotFound}, nil
		}
		return updatePlan(existing, OutcomeClosed, closeChanges(ev)), nil
	}
	return Plan{}, domain.NewError(domain.KindInvalidAction, "decide", errors.New("unknown action "+string(ev.Action)))
}

func updatePlan(existing *domain.Order, outcome OutcomeKind, c domain.Changes) Plan {
	return Plan{
		Kind:         PlanUpdate,
		Outcome:      outcome,
		RecordHandle: existing.RecordHandle,
		ReplyTo:      existing.NotificationHandle,
		Changes:      c,
	}
}

func openOrder(ev domain.Event) domain.Order {
	return domain.Order{
		OrderID:    ev.OrderID,
		Action:     domain.ActionOpen,
		Symbol:     ev.Symbol,
		Direction:  ev.Direction,
		Volume:     ev.Volume.Decimal,
		OpenPrice:  ev.OpenPrice.Decimal,
		StopLoss:   ev.StopLoss,
		TakeProfit: ev.TakeProfit,
		Balance:    ev.Balance.Decimal,
	}
}

// openChanges rewrites the Open-time fields of a replayed Open and leaves
// close-time fields alone.
func openChanges(ev domain.Event) domain.Changes {
	c := domain.Changes{
		Action:     domain.Ptr(domain.ActionOpen),
		Symbol:     domain.Ptr(ev.Symbol),
		Volume:     domain.NullPtr(ev.Volume),
		OpenPrice:  domain.NullPtr(ev.OpenPrice),
		StopLoss:   domain.NullPtr(ev.StopLoss),
		TakeProfit: domain.NullPtr(ev.TakeProfit),
		Balance:    domain.NullPtr(ev.Balance),
	}
	if ev.Direction != "" {
		c.Direction = domain.Ptr(ev.Direction)
	}
	return c
}

func levelChanges(ev domain.Event) domain.Changes {
	return domain.Changes{
		Action:     domain.Ptr(domain.ActionUpdate),
		StopLoss:   domain.NullPtr(ev.StopLoss),
		TakeProfit: domain.NullPtr(ev.TakeProfit),
		Balance:    domain.NullPtr(ev.Balance),
	}
}

func closeChanges(ev domain.Event) domain.Changes {
	return domain.Changes{
		Action:     domain.Ptr(domain.ActionClose),
		ClosePrice: domain.NullPtr(ev.ClosePrice),
		Profit:     domain.NullPtr(ev.Profit),
		Balance:    domain.NullPtr(ev.Balance),
		Closed:     domain.Ptr(true),
	}
}
