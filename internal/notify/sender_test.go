package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingSender struct{ calls int }

func (f *failingSender) Send(context.Context, string, string, string) error {
	f.calls++
	return errors.New("smtp down")
}

func TestLogSenderLogsRecipient(t *testing.T) {
	l, hook := test.NewNullLogger()
	s := NewLogSender(logrus.NewEntry(l))

	require.NoError(t, s.Send(context.Background(), "a@b.c", "Your OTP", "123456"))
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "a@b.c", hook.LastEntry().Data["to"])
	assert.NotContains(t, hook.LastEntry().Data, "body")
}

func TestBreakerSenderOpensAfterConsecutiveFailures(t *testing.T) {
	l, _ := test.NewNullLogger()
	next := &failingSender{}
	s := NewBreakerSender(next, BreakerSettings{Name: "otp", ConsecutiveFailures: 2, OpenTimeout: time.Minute}, logrus.NewEntry(l))

	ctx := context.Background()
	assert.Error(t, s.Send(ctx, "a@b.c", "s", "b"))
	assert.Error(t, s.Send(ctx, "a@b.c", "s", "b"))
	err := s.Send(ctx, "a@b.c", "s", "b")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 2, next.calls)
}
