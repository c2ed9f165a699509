package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dhcgn/imapfetch/model"
)

// DefaultMaxAttempts bounds the number of logins per run.
const DefaultMaxAttempts = 3

// RetryPolicy governs repeated logins after the server rejects the
// credentials. Transport failures are never retried.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
	// Reprompt obtains a new secret before the next attempt. Without it a
	// rejected login fails at once, since retrying the same secret is
	// pointless.
	Reprompt func(ctx context.Context, attempt int) (string, error)
}

// DefaultRetryPolicy allows three attempts without backoff, asking for a
// new secret through reprompt after each rejection.
func DefaultRetryPolicy(reprompt func(ctx context.Context, attempt int) (string, error)) RetryPolicy {
	return RetryPolicy{MaxAttempts: DefaultMaxAttempts, Reprompt: reprompt}
}

// State is the engine's position in a run.
type State int

const (
	Disconnected State = iota
	Authenticated
	MailboxSelected
	Syncing
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Authenticated:
		return "authenticated"
	case MailboxSelected:
		return "mailbox_selected"
	case Syncing:
		return "syncing"
	case Done:
		return "done"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (r *Runner) authenticate(ctx context.Context) (Client, error) {
	r.setState(Disconnected)
	client, err := r.connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	policy := r.opts.Retry
	secret := r.opts.Secret
	for attempt := 1; ; attempt++ {
		err := client.Login(r.opts.User, secret)
		if err == nil {
			r.setState(Authenticated)
			r.logger.Debug("logged in", "user", r.opts.User, "attempt", attempt)
			return client, nil
		}

		if !errors.Is(err, model.ErrCredentialsRejected) {
			_ = client.Close()
			return nil, fmt.Errorf("login: %w", err)
		}

		r.logger.Warn("login rejected", "user", r.opts.User, "attempt", attempt, "maxAttempts", policy.MaxAttempts)
		if attempt >= policy.MaxAttempts || policy.Reprompt == nil {
			_ = client.Close()
			return nil, fmt.Errorf("%w: %s rejected after %d attempt(s): %w", model.ErrAuth, r.opts.User, attempt, err)
		}

		if policy.Backoff > 0 {
			select {
			case <-ctx.Done():
				_ = client.Close()
				return nil, ctx.Err()
			case <-time.After(policy.Backoff):
			}
		}

		secret, err = policy.Reprompt(ctx, attempt)
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("read password: %w", err)
		}
	}
}
