package events

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet_saga/internal/domain"
)

func nullLog() *logrus.Entry {
	l, _ := test.NewNullLogger()
	return logrus.NewEntry(l)
}

func TestHandleDecodesAndValidates(t *testing.T) {
	var got domain.TransactionCompleted
	h := Handle(func(_ context.Context, ev domain.TransactionCompleted) error {
		got = ev
		return nil
	})

	id := uuid.New()
	env, err := NewEnvelope(TopicTransactionCompleted, domain.TransactionCompleted{
		TransactionID: id, Status: domain.StatusSuccess,
	}, nowUTC())
	require.NoError(t, err)
	require.NoError(t, h(context.Background(), env))
	assert.Equal(t, id, got.TransactionID)

	bad, err := NewEnvelope(TopicTransactionCompleted, domain.TransactionCompleted{
		TransactionID: id, Status: domain.StatusPending,
	}, nowUTC())
	require.NoError(t, err)
	assert.ErrorIs(t, h(context.Background(), bad), ErrPoison)

	garbage := Envelope{Topic: TopicTransactionCompleted, Payload: []byte("{")}
	assert.ErrorIs(t, h(context.Background(), garbage), ErrPoison)
}

func TestMemoryBusRedeliversUntilSuccess(t *testing.T) {
	bus := NewMemoryBus(nullLog(), 3)
	calls := 0
	bus.Subscribe(TopicOtpVerified, func(_ context.Context, env Envelope) error {
		calls++
		assert.Equal(t, calls, env.Delivery)
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, bus.Publish(context.Background(), TopicOtpVerified, domain.OtpVerified{
		TransactionID: uuid.New(), Amount: decimal.NewFromInt(5),
	}))
	assert.Equal(t, 2, calls)
}

func TestMemoryBusStopsOnPoisonAndMaxDeliveries(t *testing.T) {
	bus := NewMemoryBus(nullLog(), 3)
	poison, failing := 0, 0
	bus.Subscribe("a", func(context.Context, Envelope) error {
		poison++
		return ErrPoison
	})
	bus.Subscribe("b", func(context.Context, Envelope) error {
		failing++
		return errors.New("down")
	})

	require.NoError(t, bus.Publish(context.Background(), "a", struct{}{}))
	require.NoError(t, bus.Publish(context.Background(), "b", struct{}{}))
	assert.Equal(t, 1, poison)
	assert.Equal(t, 3, failing)
}

func TestMemoryBusNestedPublish(t *testing.T) {
	bus := NewMemoryBus(nullLog(), 1)
	var order []string
	bus.Subscribe("first", func(ctx context.Context, _ Envelope) error {
		order = append(order, "first")
		return bus.Publish(ctx, "second", struct{}{})
	})
	bus.Subscribe("second", func(context.Context, Envelope) error {
		order = append(order, "second")
		return nil
	})

	require.NoError(t, bus.Publish(context.Background(), "first", struct{}{}))
	assert.Equal(t, []string{"first", "second"}, order)
}
