package reconcile

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/traderelay/internal/domain"
)

func nd(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func openEvent(id int64) domain.Event {
	return domain.Event{
		Action:    domain.ActionOpen,
		OrderID:   id,
		Symbol:    "EURUSD",
		Direction: domain.DirectionBuy,
		Volume:    nd("1.00"),
		OpenPrice: nd("1.08500"),
		Balance:   nd("10000.00"),
	}
}

func storedOrder() *domain.Order {
	return &domain.Order{
		OrderID:            101,
		Action:             domain.ActionOpen,
		Symbol:             "EURUSD",
		Direction:          domain.DirectionBuy,
		Volume:             decimal.RequireFromString("1"),
		OpenPrice:          decimal.RequireFromString("1.085"),
		TakeProfit:         nd("1.09"),
		Balance:            decimal.RequireFromString("10000"),
		NotificationHandle: "500",
		RecordHandle:       "rec-1",
	}
}

func TestDecide_Table(t *testing.T) {
	tests := []struct {
		name     string
		ev       domain.Event
		existing *domain.Order
		kind     PlanKind
		outcome  OutcomeKind
	}{
		{"open new", openEvent(101), nil, PlanCreate, OutcomeCreated},
		{"open existing", openEvent(101), storedOrder(), PlanUpdate, OutcomeUpdated},
		{"update missing", domain.Event{Action: domain.ActionUpdate, OrderID: 101, StopLoss: nd("1.08")}, nil, PlanNotFound, OutcomeNotFound},
		{"update existing", domain.Event{Action: domain.ActionUpdate, OrderID: 101, StopLoss: nd("1.08")}, storedOrder(), PlanUpdate, OutcomeUpdated},
		{"close missing", domain.Event{Action: domain.ActionClose, OrderID: 999, ClosePrice: nd("1.09"), Profit: nd("5"), Balance: nd("1")}, nil, PlanNotFound, OutcomeNotFound},
		{"close existing", domain.Event{Action: domain.ActionClose, OrderID: 101, ClosePrice: nd("1.09"), Profit: nd("5"), Balance: nd("1")}, storedOrder(), PlanUpdate, OutcomeClosed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := Decide(tt.ev, tt.existing)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, plan.Kind)
			assert.Equal(t, tt.outcome, plan.Outcome)
			if tt.kind == PlanUpdate {
				assert.Equal(t, "rec-1", plan.RecordHandle)
				assert.Equal(t, "500", plan.ReplyTo)
			}
		})
	}
}

func TestDecide_UnknownAction(t *testing.T) {
	_, err := Decide(domain.Event{Action: "modify", OrderID: 1}, nil)
	assert.True(t, domain.IsKind(err, domain.KindInvalidAction))
}

func TestDecide_OpenCreatesFullOrder(t *testing.T) {
	ev := openEvent(101)
	ev.StopLoss = nd("1.08")
	plan, err := Decide(ev, nil)
	require.NoError(t, err)

	o := plan.Order
	assert.Equal(t, int64(101), o.OrderID)
	assert.Equal(t, domain.ActionOpen, o.Action)
	assert.Equal(t, "EURUSD", o.Symbol)
	assert.True(t, o.StopLoss.Valid)
	assert.False(t, o.TakeProfit.Valid)
	assert.False(t, o.ClosePrice.Valid)
	assert.False(t, o.Profit.Valid)
	assert.False(t, o.Closed)
}

func TestDecide_UpdateTouchesOnlySuppliedLevels(t *testing.T) {
	plan, err := Decide(domain.Event{Action: domain.ActionUpdate, OrderID: 101, StopLoss: nd("1.08")}, storedOrder())
	require.NoError(t, err)

	c := plan.Changes
	require.NotNil(t, c.StopLoss)
	assert.Nil(t, c.TakeProfit)
	assert.Nil(t, c.Balance)
	assert.Nil(t, c.Symbol)
	assert.Nil(t, c.Closed)
	assert.Nil(t, c.NotificationHandle, "handle is filled after the send")
}

func TestDecide_ReplayedOpenKeepsCloseFields(t *testing.T) {
	ev := openEvent(101)
	ev.Direction = ""
	plan, err := Decide(ev, storedOrder())
	require.NoError(t, err)

	c := plan.Changes
	assert.Nil(t, c.ClosePrice)
	assert.Nil(t, c.Profit)
	assert.Nil(t, c.Closed)
	assert.Nil(t, c.Direction, "absent direction does not clear the stored one")
	require.NotNil(t, c.Symbol)
	assert.Equal(t, "EURUSD", *c.Symbol)
}

func TestDecide_CloseChanges(t *testing.T) {
	plan, err := Decide(domain.Event{
		Action: domain.ActionClose, OrderID: 101,
		ClosePrice: nd("1.09"), Profit: nd("50"), Balance: nd("10050"),
	}, storedOrder())
	require.NoError(t, err)

	c := plan.Changes
	require.NotNil(t, c.Closed)
	assert.True(t, *c.Closed)
	assert.Equal(t, domain.ActionClose, *c.Action)
	assert.True(t, c.Profit.Equal(decimal.RequireFromString("50")))
	assert.Nil(t, c.StopLoss)
}

func TestPlanKindString(t *testing.T) {
	assert.Equal(t, "create", PlanCreate.String())
	assert.Equal(t, "update", PlanUpdate.String())
	assert.Equal(t, "not_found", PlanNotFound.String())
}
