package plan

import (
	"context"
	"fmt"
	"time"

	"loom/pkg/agent"
	"loom/pkg/retry"
	"loom/pkg/session"
)

// SessionRunner is the production AgentRunner: each item gets a fresh
// session from the manager, is driven to completion with SendAndWait, and
// the session is destroyed afterwards. Items in a parallel phase therefore
// run on independent sessions and subprocesses.
type SessionRunner struct {
	Sessions *session.Manager

	// ItemTimeout caps one item's run from the caller side, layered above
	// the client's own deadline and watchdog. 0 waits indefinitely.
	ItemTimeout time.Duration

	// Retry, when set, wraps each item's invocation. Session misuse errors
	// never reach here; only classified agent failures are retried.
	Retry *retry.Policy

	// Notify, when set, receives every session event for live progress.
	Notify func(item WorkItem, ev session.Event)
}

// Run implements AgentRunner.
func (r *SessionRunner) Run(ctx context.Context, item WorkItem) (string, error) {
	op := func(ctx context.Context) (*agent.Result, error) {
		return r.runOnce(ctx, item)
	}

	var res *agent.Result
	var err error
	if r.Retry != nil {
		res, err = retry.Do(ctx, *r.Retry, op)
	} else {
		res, err = op(ctx)
	}
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

func (r *SessionRunner) runOnce(ctx context.Context, item WorkItem) (*agent.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var opts *agent.Options
	if item.Model != "" {
		o := r.Sessions.Defaults()
		o.Model = item.Model
		opts = &o
	}
	s := r.Sessions.CreateSession(opts)
	defer r.Sessions.DestroySession(s.ID())

	if r.Notify != nil {
		unsub := s.Subscribe(func(ev session.Event) {
			r.Notify(item, ev)
		})
		defer unsub()
	}

	return s.SendAndWait(itemPrompt(item), r.ItemTimeout)
}

// itemPrompt builds the agent prompt for a work item. An explicit prompt on
// the item wins; otherwise a uniform instruction is derived from the item's
// identity.
func itemPrompt(item WorkItem) string {
	if item.Prompt != "" {
		return item.Prompt
	}
	return fmt.Sprintf("Implement %s %s: %s. Mark progress through the tracker tools as you go.",
		item.Type, item.ID, item.Title)
}
