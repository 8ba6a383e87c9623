package core

import (
	"time"

	"github.com/engramlabs/engram-go/pkg/record"
)

// callOptions collects the per-call settings shared by Build and Retrieve.
type callOptions struct {
	sctx  record.SessionContext
	limit int
}

// Option configures a single Build or Retrieve call.
type Option func(*callOptions)

// WithScope sets the logical scope (session/conversation id) for the call.
func WithScope(scope string) Option {
	return func(o *callOptions) {
		o.sctx.ScopeID = scope
	}
}

// WithKeywords attaches salient conversation keywords used for contextual
// scoring.
func WithKeywords(keywords ...string) Option {
	return func(o *callOptions) {
		o.sctx.Keywords = append(o.sctx.Keywords, keywords...)
	}
}

// WithParticipants names the conversation participants.
func WithParticipants(participants ...string) Option {
	return func(o *callOptions) {
		o.sctx.Participants = append(o.sctx.Participants, participants...)
	}
}

// WithTimestamp overrides the call's notion of "now". Useful for replaying
// historical conversations.
func WithTimestamp(ts time.Time) Option {
	return func(o *callOptions) {
		o.sctx.Timestamp = ts
	}
}

// WithPlan supplies a pre-computed query plan, skipping the planning stage.
func WithPlan(plan *record.QueryPlan) Option {
	return func(o *callOptions) {
		o.sctx.Plan = plan
	}
}

// WithLimit caps the number of retrieved records. Default 10.
func WithLimit(limit int) Option {
	return func(o *callOptions) {
		o.limit = limit
	}
}

func applyOptions(opts []Option) callOptions {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
