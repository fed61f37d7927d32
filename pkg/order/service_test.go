package order

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefront-dev/storefront/pkg/apperr"
	"github.com/storefront-dev/storefront/pkg/eventbus"
	"github.com/storefront-dev/storefront/pkg/session"
)

func setupService(orders ...Order) (*Service, *mockAPI, *[]eventbus.OrderEvent) {
	api := newMockAPI(orders...)
	bus := eventbus.New()
	events := &[]eventbus.OrderEvent{}
	eventbus.Subscribe(bus, eventbus.OrderUpdate, func(ev eventbus.OrderEvent) {
		*events = append(*events, ev)
	})
	return NewService(api, WithBus(bus)), api, events
}

func TestRequestTransition(t *testing.T) {
	ctx := context.Background()

	t.Run("blocked transition never reaches the network", func(t *testing.T) {
		o := newOrder("o1", StatusPreparing, PaymentEsewa, PaymentPending)
		svc, api, events := setupService(o)

		got, err := svc.RequestTransition(ctx, session.RoleVendor, o, StatusOnTheWay)
		require.Error(t, err)
		assert.Nil(t, got)
		assert.True(t, apperr.Is(err, apperr.KindTransitionPrecondition))

		set, list := api.calls()
		assert.Equal(t, 0, set)
		assert.Equal(t, 0, list)
		assert.Empty(t, *events)
	})

	t.Run("success reconciles by refetching", func(t *testing.T) {
		o := newOrder("o1", StatusPending, PaymentCashOnDelivery, PaymentPending)
		svc, api, events := setupService(o)

		got, err := svc.RequestTransition(ctx, session.RoleVendor, o, StatusPreparing)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, StatusPreparing, got.Status)
		assert.True(t, got.UpdatedAt.After(o.UpdatedAt))

		set, list := api.calls()
		assert.Equal(t, 1, set)
		assert.Equal(t, 1, list)

		require.Len(t, *events, 1)
		assert.Equal(t, "o1", (*events)[0].OrderID)
		assert.Equal(t, "preparing", (*events)[0].Status)
		assert.Equal(t, SourceTransition, (*events)[0].Source)
	})

	t.Run("refetch failure falls back to the response", func(t *testing.T) {
		o := newOrder("o1", StatusPending, PaymentCashOnDelivery, PaymentPending)
		svc, api, _ := setupService(o)
		api.listErr = errors.New("boom")

		got, err := svc.RequestTransition(ctx, session.RoleAdmin, o, StatusCancelled)
		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, got.Status)
	})

	t.Run("backend failure is returned and not published", func(t *testing.T) {
		o := newOrder("o1", StatusPending, PaymentCashOnDelivery, PaymentPending)
		svc, api, events := setupService(o)
		api.setErr = apperr.FromStatus(500, "", nil)

		_, err := svc.RequestTransition(ctx, session.RoleVendor, o, StatusPreparing)
		require.Error(t, err)
		assert.True(t, apperr.IsRetryable(err))
		assert.Empty(t, *events)
	})

	t.Run("customer may cancel a pending order", func(t *testing.T) {
		o := newOrder("o1", StatusPending, PaymentEsewa, PaymentPending)
		svc, _, _ := setupService(o)

		got, err := svc.RequestTransition(ctx, session.RoleCustomer, o, StatusCancelled)
		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, got.Status)
	})
}
