package checkout

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/abgdnv/storefront/internal/cart"
	"github.com/abgdnv/storefront/internal/identity"
	"github.com/abgdnv/storefront/internal/orders"
	"github.com/abgdnv/storefront/internal/partition"
	"github.com/abgdnv/storefront/internal/service"
	"github.com/abgdnv/storefront/pkg/messaging"
	"github.com/abgdnv/storefront/pkg/messaging/events"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.DiscardHandler)

type mockSubmitter struct {
	confirmation *orders.Confirmation
	error        error
	got          *orders.Payload
}

func (m *mockSubmitter) Submit(_ context.Context, order orders.Payload) (*orders.Confirmation, error) {
	m.got = &order
	if m.error != nil {
		return nil, m.error
	}
	return m.confirmation, nil
}

type recordingPublisher struct {
	events []messaging.Event
	error  error
}

func (p *recordingPublisher) Publish(_ context.Context, event messaging.Event) error {
	p.events = append(p.events, event)
	return p.error
}

var validAddress = orders.Address{Address: "1 Main St", City: "Pune", State: "MH", Pincode: "411001"}

type fixture struct {
	carts     *service.Service
	submitter *mockSubmitter
	publisher *recordingPublisher
	checkout  *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	backend := partition.NewInMemoryStore()
	f := &fixture{
		carts:     service.NewService(backend, partition.NewSyncMirror(backend, time.Second, discard), 0, discard),
		submitter: &mockSubmitter{confirmation: &orders.Confirmation{OrderID: "ord-1", Confirmed: true}},
		publisher: &recordingPublisher{},
	}
	f.checkout = NewService(f.carts, f.submitter, f.publisher, DefaultPricing, discard)
	f.checkout.now = func() time.Time { return time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC) }
	return f
}

func (f *fixture) fill(t *testing.T, who identity.Identity) {
	t.Helper()
	_, err := f.carts.AddItem(context.Background(), who, cart.Candidate{ID: "a", Quantity: 2, UnitPrice: 100})
	require.NoError(t, err)
	_, err = f.carts.AddItem(context.Background(), who, cart.Candidate{ID: "b", UnitPrice: 50})
	require.NoError(t, err)
}

func TestPlaceOrder_Confirmed(t *testing.T) {
	// given
	f := newFixture(t)
	who := identity.User("u1")
	f.fill(t, who)

	// when
	result, err := f.checkout.PlaceOrder(context.Background(), who, PlaceOrderRequest{
		QuoteRequest:     QuoteRequest{CouponCode: "SAVE", Discount: dec("50")},
		ShippingAddress:  validAddress,
		PaymentReference: "pay_1",
	})

	// then
	require.NoError(t, err)
	assert.Equal(t, "ord-1", result.OrderID)
	assert.True(t, result.Confirmed)
	assert.True(t, dec("250").Equal(result.Summary.Total))

	require.NotNil(t, f.submitter.got)
	assert.Len(t, f.submitter.got.Items, 2)
	assert.Equal(t, "a", f.submitter.got.Items[0].ProductID)
	assert.Equal(t, "SAVE", f.submitter.got.CouponCode)
	assert.Equal(t, "pay_1", f.submitter.got.PaymentReference)
	assert.Equal(t, validAddress, f.submitter.got.ShippingAddress)

	snapshot, err := f.carts.Snapshot(context.Background(), who)
	require.NoError(t, err)
	assert.Empty(t, snapshot.Items, "cart is cleared after confirmation")

	require.Len(t, f.publisher.events, 1)
	event, ok := f.publisher.events[0].(events.CartCheckedOutEvent)
	require.True(t, ok)
	assert.Equal(t, "ord-1", event.OrderID)
	assert.Equal(t, "u1", event.PrincipalID)
	assert.Equal(t, 2, event.Items)
	assert.Equal(t, 3, event.Units)
	assert.Equal(t, "250.00", event.Total)
}

func TestPlaceOrder_NotConfirmedKeepsCart(t *testing.T) {
	// given
	f := newFixture(t)
	f.submitter.confirmation = &orders.Confirmation{OrderID: "ord-2", Confirmed: false}
	who := identity.User("u1")
	f.fill(t, who)

	// when
	result, err := f.checkout.PlaceOrder(context.Background(), who, PlaceOrderRequest{ShippingAddress: validAddress})

	// then
	require.NoError(t, err)
	assert.False(t, result.Confirmed)
	snapshot, err := f.carts.Snapshot(context.Background(), who)
	require.NoError(t, err)
	assert.Len(t, snapshot.Items, 2)
	assert.Empty(t, f.publisher.events)
}

func TestPlaceOrder_Errors(t *testing.T) {
	tests := []struct {
		name    string
		who     identity.Identity
		fill    bool
		address orders.Address
		submit  error
		wantErr error
	}{
		{name: "guest", who: identity.Guest, fill: true, address: validAddress, wantErr: ErrLoginRequired},
		{name: "empty cart", who: identity.User("u1"), address: validAddress, wantErr: ErrEmptyCart},
		{name: "incomplete address", who: identity.User("u1"), fill: true,
			address: orders.Address{Address: "1 Main St", City: "Pune"}, wantErr: ErrIncompleteAddress},
		{name: "order rejected", who: identity.User("u1"), fill: true, address: validAddress,
			submit: orders.ErrOrderRejected, wantErr: orders.ErrOrderRejected},
		{name: "order service down", who: identity.User("u1"), fill: true, address: validAddress,
			submit: orders.ErrOrderServiceUnavailable, wantErr: orders.ErrOrderServiceUnavailable},
		{name: "resolving", who: identity.Identity{Resolving: true}, address: validAddress,
			wantErr: service.ErrIdentityResolving},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// given
			f := newFixture(t)
			f.submitter.error = tc.submit
			if tc.fill {
				f.fill(t, tc.who)
			}

			// when
			result, err := f.checkout.PlaceOrder(context.Background(), tc.who, PlaceOrderRequest{ShippingAddress: tc.address})

			// then
			assert.Nil(t, result)
			assert.ErrorIs(t, err, tc.wantErr)
			assert.Empty(t, f.publisher.events)
			if tc.fill {
				snapshot, err := f.carts.Snapshot(context.Background(), tc.who)
				require.NoError(t, err)
				assert.Len(t, snapshot.Items, 2, "cart is kept")
			}
		})
	}
}

func TestPlaceOrder_IncompleteAddressCarriesFields(t *testing.T) {
	f := newFixture(t)

	_, err := f.checkout.PlaceOrder(context.Background(), identity.User("u1"), PlaceOrderRequest{})

	var validationErrors validator.ValidationErrors
	require.True(t, errors.As(err, &validationErrors))
	assert.Len(t, validationErrors, 4)
}

func TestPlaceOrder_PublishFailureIsNotReturned(t *testing.T) {
	// given
	f := newFixture(t)
	f.publisher.error = errors.New("nats down")
	who := identity.User("u1")
	f.fill(t, who)

	// when
	result, err := f.checkout.PlaceOrder(context.Background(), who, PlaceOrderRequest{ShippingAddress: validAddress})

	// then
	require.NoError(t, err)
	assert.True(t, result.Confirmed)
	assert.Len(t, f.publisher.events, 1)
}

func TestQuote(t *testing.T) {
	// given
	f := newFixture(t)
	who := identity.Guest
	f.fill(t, who)

	// when
	sum, err := f.checkout.Quote(context.Background(), who, QuoteRequest{Discount: dec("50")})

	// then
	require.NoError(t, err)
	assert.True(t, dec("200").Equal(sum.DiscountedSubtotal))
	assert.True(t, dec("250").Equal(sum.Total))
	assert.Nil(t, f.submitter.got)

	snapshot, err := f.carts.Snapshot(context.Background(), who)
	require.NoError(t, err)
	assert.Len(t, snapshot.Items, 2)
}
