package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/traderelay/internal/domain"
	"github.com/betbot/traderelay/internal/notify"
	"github.com/betbot/traderelay/internal/store"
)

type harness struct {
	store   *store.MemoryStore
	channel *notify.Recorder
	r       *Reconciler
}

func newHarness(opts Options) *harness {
	h := &harness{store: store.NewMemoryStore(), channel: notify.NewRecorder()}
	h.r = New(h.store, h.channel, opts)
	return h
}

func (h *harness) order(t *testing.T, id int64) domain.Order {
	t.Helper()
	o, err := h.store.FindByOrderID(context.Background(), id)
	require.NoError(t, err)
	return o
}

func updateEvent(id int64, sl, tp string) domain.Event {
	ev := domain.Event{Action: domain.ActionUpdate, OrderID: id}
	if sl != "" {
		ev.StopLoss = nd(sl)
	}
	if tp != "" {
		ev.TakeProfit = nd(tp)
	}
	return ev
}

func closeEvent(id int64, price, profit, balance string) domain.Event {
	return domain.Event{
		Action:     domain.ActionClose,
		OrderID:    id,
		ClosePrice: nd(price),
		Profit:     nd(profit),
		Balance:    nd(balance),
	}
}

func TestReconcile_Lifecycle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(Options{})

	out, err := h.r.Reconcile(ctx, openEvent(101))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, out.Kind)
	assert.Equal(t, "1", out.NotificationHandle)
	assert.NotEmpty(t, out.RecordHandle)

	sent := h.channel.Sent()
	require.Len(t, sent, 1)
	assert.Empty(t, sent[0].ReplyTo)
	assert.Contains(t, sent[0].Text, "EURUSD (Buy)")
	assert.Contains(t, sent[0].Text, "1.08500")
	assert.Contains(t, sent[0].Text, "1.00")
	assert.Contains(t, sent[0].Text, "$10000.00")

	o := h.order(t, 101)
	assert.Equal(t, "1", o.NotificationHandle)
	assert.False(t, o.ClosePrice.Valid)
	assert.False(t, o.Profit.Valid)
	assert.False(t, o.Closed)

	out, err = h.r.Reconcile(ctx, updateEvent(101, "1.08000", ""))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, out.Kind)

	sent = h.channel.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "1", sent[1].ReplyTo)
	assert.Contains(t, sent[1].Text, "SL updated")
	assert.Contains(t, sent[1].Text, "SL: 1.08000")
	assert.NotContains(t, sent[1].Text, "TP")

	o = h.order(t, 101)
	require.True(t, o.StopLoss.Valid)
	assert.Equal(t, "1.08000", o.StopLoss.Decimal.StringFixed(5))
	assert.False(t, o.TakeProfit.Valid, "TP untouched")
	assert.Equal(t, domain.ActionUpdate, o.Action)
	assert.Equal(t, "2", o.NotificationHandle)

	out, err = h.r.Reconcile(ctx, closeEvent(101, "1.09000", "50.00", "10050.00"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeClosed, out.Kind)

	sent = h.channel.Sent()
	require.Len(t, sent, 3)
	assert.Equal(t, "2", sent[2].ReplyTo, "replies to the most recent message")
	assert.Contains(t, sent[2].Text, "$50.00")

	o = h.order(t, 101)
	assert.True(t, o.Closed)
	assert.Equal(t, domain.ActionClose, o.Action)
	assert.Equal(t, "50.00", o.Profit.Decimal.StringFixed(2))
	assert.Equal(t, "1.09000", o.ClosePrice.Decimal.StringFixed(5))
	assert.Equal(t, "10050.00", o.Balance.StringFixed(2))
	assert.Equal(t, 1, h.store.Len())
}

func TestReconcile_NotFoundIsSilent(t *testing.T) {
	ctx := context.Background()
	for _, ev := range []domain.Event{
		closeEvent(999, "1.1", "1", "1"),
		updateEvent(999, "1.1", ""),
	} {
		t.Run(string(ev.Action), func(t *testing.T) {
			h := newHarness(Options{})
			out, err := h.r.Reconcile(ctx, ev)
			require.NoError(t, err)
			assert.Equal(t, OutcomeNotFound, out.Kind)
			assert.Equal(t, int64(999), out.OrderID)
			assert.Empty(t, h.channel.Sent())
			assert.Equal(t, 0, h.store.Writes)
			assert.Equal(t, 0, h.store.Len())
		})
	}
}

func TestReconcile_ReplayedOpenUpdatesInPlace(t *testing.T) {
	ctx := context.Background()
	h := newHarness(Options{})

	_, err := h.r.Reconcile(ctx, openEvent(7))
	require.NoError(t, err)
	_, err = h.r.Reconcile(ctx, closeEvent(7, "1.09", "5", "10005"))
	require.NoError(t, err)

	again := openEvent(7)
	again.Volume = nd("2.00")
	out, err := h.r.Reconcile(ctx, again)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, out.Kind)
	assert.Equal(t, 1, h.store.Len())

	o := h.order(t, 7)
	assert.Equal(t, "2.00", o.Volume.StringFixed(2))
	assert.True(t, o.Profit.Valid, "close-time fields preserved")
	assert.True(t, o.ClosePrice.Valid)
	assert.Equal(t, "2", h.channel.Sent()[2].ReplyTo)
}

func TestReconcile_CombinedLevels(t *testing.T) {
	ctx := context.Background()
	h := newHarness(Options{})
	ev := openEvent(3)
	ev.TakeProfit = nd("1.1")
	_, err := h.r.Reconcile(ctx, ev)
	require.NoError(t, err)

	_, err = h.r.Reconcile(ctx, updateEvent(3, "1.08", "1.095"))
	require.NoError(t, err)

	sent := h.channel.Sent()
	require.Len(t, sent, 2, "one message for both levels")
	assert.Contains(t, sent[1].Text, "SL&TP updated")
	assert.Equal(t, 2, h.store.Writes, "one create and one combined update")

	o := h.order(t, 3)
	assert.Equal(t, "1.08000", o.StopLoss.Decimal.StringFixed(5))
	assert.Equal(t, "1.09500", o.TakeProfit.Decimal.StringFixed(5))
}

func TestReconcile_SendFailurePersistsNothing(t *testing.T) {
	ctx := context.Background()
	h := newHarness(Options{})

	h.channel.ErrorOnNext = errors.New("telegram down")
	_, err := h.r.Reconcile(ctx, openEvent(5))
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindNotificationError))
	assert.Equal(t, 0, h.store.Len())

	_, err = h.r.Reconcile(ctx, openEvent(5))
	require.NoError(t, err)
	writes := h.store.Writes

	h.channel.ErrorOnNext = errors.New("telegram down")
	_, err = h.r.Reconcile(ctx, updateEvent(5, "1.07", ""))
	require.Error(t, err)
	assert.Equal(t, writes, h.store.Writes)
	assert.False(t, h.order(t, 5).StopLoss.Valid)
}

type slowChannel struct{}

func (slowChannel) Send(ctx context.Context, text, replyTo string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestReconcile_SendTimeout(t *testing.T) {
	st := store.NewMemoryStore()
	r := New(st, slowChannel{}, Options{SendTimeout: 20 * time.Millisecond})

	start := time.Now()
	_, err := r.Reconcile(context.Background(), openEvent(8))
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindNotificationError))
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 0, st.Len())
}

func TestReconcile_StoreFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("lookup", func(t *testing.T) {
		h := newHarness(Options{})
		h.store.ErrorOnNext["find"] = errors.New("timeout")
		_, err := h.r.Reconcile(ctx, openEvent(1))
		assert.True(t, domain.IsKind(err, domain.KindLookupError))
		assert.Empty(t, h.channel.Sent())
	})

	t.Run("write", func(t *testing.T) {
		h := newHarness(Options{})
		h.store.ErrorOnNext["create"] = errors.New("rejected")
		_, err := h.r.Reconcile(ctx, openEvent(1))
		assert.True(t, domain.IsKind(err, domain.KindWriteError))
		assert.Len(t, h.channel.Sent(), 1, "message already went out")
		assert.Equal(t, 0, h.store.Len())
	})
}

func TestReconcile_InvalidInput(t *testing.T) {
	ctx := context.Background()
	h := newHarness(Options{})

	_, err := h.r.Reconcile(ctx, domain.Event{Action: "modify", OrderID: 1})
	assert.True(t, domain.IsKind(err, domain.KindInvalidAction))

	_, err = h.r.Reconcile(ctx, domain.Event{Action: domain.ActionUpdate, OrderID: 1})
	assert.True(t, domain.IsKind(err, domain.KindInvalidEvent))

	assert.Empty(t, h.channel.Sent())
	assert.Equal(t, 0, h.store.Writes)
}

func TestReconcile_OpenAnchorPolicy(t *testing.T) {
	ctx := context.Background()
	h := newHarness(Options{Anchor: AnchorOpen})

	_, err := h.r.Reconcile(ctx, openEvent(11))
	require.NoError(t, err)
	_, err = h.r.Reconcile(ctx, updateEvent(11, "1.08", ""))
	require.NoError(t, err)
	_, err = h.r.Reconcile(ctx, updateEvent(11, "", "1.1"))
	require.NoError(t, err)
	_, err = h.r.Reconcile(ctx, closeEvent(11, "1.09", "4", "10004"))
	require.NoError(t, err)

	sent := h.channel.Sent()
	require.Len(t, sent, 4)
	for _, s := range sent[1:] {
		assert.Equal(t, "1", s.ReplyTo)
	}
	assert.Equal(t, "1", h.order(t, 11).NotificationHandle)
}

func TestReconcile_PipProfit(t *testing.T) {
	ctx := context.Background()
	h := newHarness(Options{ProfitUnit: domain.ProfitPips})

	ev := openEvent(21)
	ev.Direction = domain.DirectionSell
	_, err := h.r.Reconcile(ctx, ev)
	require.NoError(t, err)

	_, err = h.r.Reconcile(ctx, closeEvent(21, "1.08300", "40.00", "10040"))
	require.NoError(t, err)

	o := h.order(t, 21)
	assert.True(t, o.Profit.Decimal.Equal(decimal.RequireFromString("20")), "got %s", o.Profit.Decimal)
	assert.Contains(t, h.channel.Sent()[1].Text, "20.0 pips")
}

func TestReconcile_ParallelOrdersAreIndependent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(Options{})

	done := make(chan error, 20)
	for i := int64(1); i <= 20; i++ {
		go func(id int64) {
			_, err := h.r.Reconcile(ctx, openEvent(id))
			done <- err
		}(i)
	}
	for i := 0; i < 20; i++ {
		require.NoError(t, <-done)
	}
	assert.Equal(t, 20, h.store.Len())
}
