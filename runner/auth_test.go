package runner

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcgn/imapfetch/model"
)

func TestAuthenticate_RepromptsAfterRejection(t *testing.T) {
	client := newFakeClient("right")
	client.addMailbox("INBOX")

	var prompts []int
	reprompt := func(_ context.Context, attempt int) (string, error) {
		prompts = append(prompts, attempt)
		if attempt == 1 {
			return "still wrong", nil
		}
		return "right", nil
	}

	r := newRunner(t, client, Options{Secret: "wrong", Retry: DefaultRetryPolicy(reprompt)})
	_, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"wrong", "still wrong", "right"}, client.logins)
	assert.Equal(t, []int{1, 2}, prompts)
	assert.Equal(t, 1, client.connected)
}

func TestAuthenticate_GivesUpAfterThreeAttempts(t *testing.T) {
	client := newFakeClient("right")
	reprompt := func(context.Context, int) (string, error) { return "wrong", nil }

	r := newRunner(t, client, Options{Secret: "wrong", Retry: DefaultRetryPolicy(reprompt)})
	_, err := r.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrAuth))
	assert.Len(t, client.logins, 3)
	assert.Equal(t, Failed, r.State())
	assert.Equal(t, 1, client.closes)
	assert.Equal(t, 0, client.logouts)
}

func TestAuthenticate_NoRepromptFailsImmediately(t *testing.T) {
	client := newFakeClient("right")

	_, err := newRunner(t, client, Options{Secret: "wrong"}).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrAuth))
	assert.Len(t, client.logins, 1)
}

func TestAuthenticate_TransportErrorNotRetried(t *testing.T) {
	client := newFakeClient("right")
	client.loginErr = fmt.Errorf("%w: connection reset by peer", model.ErrIO)
	prompted := false
	reprompt := func(context.Context, int) (string, error) {
		prompted = true
		return "right", nil
	}

	_, err := newRunner(t, client, Options{Retry: DefaultRetryPolicy(reprompt)}).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrIO))
	assert.False(t, errors.Is(err, model.ErrAuth))
	assert.Len(t, client.logins, 1)
	assert.False(t, prompted)
}

func TestAuthenticate_RepromptError(t *testing.T) {
	client := newFakeClient("right")
	reprompt := func(context.Context, int) (string, error) { return "", errors.New("not a terminal") }

	_, err := newRunner(t, client, Options{Secret: "wrong", Retry: DefaultRetryPolicy(reprompt)}).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a terminal")
}

func TestAuthenticate_ConnectError(t *testing.T) {
	connect := func(context.Context) (Client, error) {
		return nil, fmt.Errorf("%w: dial tcp: refused", model.ErrIO)
	}
	r, err := New(Options{User: "user"}, connect, nil, nil)
	require.NoError(t, err)

	_, err = r.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrIO))
	assert.Equal(t, Failed, r.State())
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{User: "user"}, nil, nil, nil)
	assert.Error(t, err)

	_, err = New(Options{}, newFakeClient("x").connector(), nil, nil)
	assert.Error(t, err)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "mailbox_selected", MailboxSelected.String())
	assert.Equal(t, "state(42)", State(42).String())
}
