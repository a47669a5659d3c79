// Package processor handles roster management requests of one session.
package processor

import (
	"context"
	"errors"
	"time"

	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/stanza"

	"github.com/meszmate/rosterd/internal/dynamic"
	"github.com/meszmate/rosterd/internal/logging"
	"github.com/meszmate/rosterd/internal/session"
	"github.com/meszmate/rosterd/internal/xmpp"
	"github.com/meszmate/rosterd/internal/xmpp/roster"
)

// DefaultChunkSize is the number of dynamic contacts sent per roster push
const DefaultChunkSize = 20

// DefaultAnonymousMarker is the item type that marks an anonymous contact
const DefaultAnonymousMarker = "anon"

// Session is the requesting session as seen by the handlers
type Session interface {
	// Owner returns the bare JID of the user, or session.ErrNotAuthorized
	Owner() (jid.JID, error)
	// JID returns the full JID of the session
	JID() (jid.JID, error)
	ConnectionID() string
	// LastPresence returns a copy of the last presence the session broadcast
	LastPresence() *xmpp.Presence
}

// Notifier propagates a changed roster item to the live sessions of a user
type Notifier interface {
	NotifyChange(ctx context.Context, requester session.Target, item roster.Item, results *xmpp.Queue) error
}

// Outcome is the result of processing one request
type Outcome int

const (
	Success Outcome = iota
	Ignored
	BadRequest
	NotAuthorized
	StorageFailure
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Ignored:
		return "ignored"
	case BadRequest:
		return "bad_request"
	case NotAuthorized:
		return "not_authorized"
	case StorageFailure:
		return "storage_failure"
	default:
		return "unknown"
	}
}

// Options configures a Processor
type Options struct {
	Store roster.Store
	// Provider may be nil when no dynamic contacts are configured
	Provider dynamic.Provider
	// Notifier defaults to pushing to the requesting session only
	Notifier        Notifier
	Logger          *logging.Logger
	Metrics         *Metrics
	ChunkSize       int
	AnonymousMarker string
}

// Processor dispatches roster requests to their handlers
type Processor struct {
	store      roster.Store
	provider   dynamic.Provider
	notifier   Notifier
	logger     *logging.Logger
	metrics    *Metrics
	chunkSize  int
	anonMarker string
}

// New creates a processor
func New(opts Options) *Processor {
	p := &Processor{
		store:      opts.Store,
		provider:   opts.Provider,
		notifier:   opts.Notifier,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		chunkSize:  opts.ChunkSize,
		anonMarker: opts.AnonymousMarker,
	}
	if p.provider == nil {
		p.provider = dynamic.NewComposite(nil, nil)
	}
	if p.notifier == nil {
		p.notifier = requesterOnly{}
	}
	if p.logger == nil {
		p.logger = logging.Nop()
	}
	if p.chunkSize < 1 {
		p.chunkSize = DefaultChunkSize
	}
	if p.anonMarker == "" {
		p.anonMarker = DefaultAnonymousMarker
	}
	return p
}

type handler func(ctx context.Context, req *xmpp.Request, sess Session, owner jid.JID, settings dynamic.Settings, out *xmpp.Queue) (Outcome, error)

// Process handles one request and appends the resulting stanzas to
// results. Requests that are dropped leave results untouched; every other
// request gets exactly one reply.
func (p *Processor) Process(ctx context.Context, req *xmpp.Request, sess Session, settings dynamic.Settings, results *xmpp.Queue) Outcome {
	start := time.Now()
	outcome := p.process(ctx, req, sess, settings, results)
	p.metrics.observe(req, outcome, time.Since(start))
	return outcome
}

func (p *Processor) process(ctx context.Context, req *xmpp.Request, sess Session, settings dynamic.Settings, results *xmpp.Queue) Outcome {
	var h handler
	switch req.Namespace {
	case roster.NS:
		h = p.selectHandler(req.Type, p.get, p.set)
	case roster.NSDynamic:
		h = p.selectHandler(req.Type, p.dynamicGet, p.dynamicSet)
	default:
		p.logger.Warn("unexpected namespace in %s", req)
		return Ignored
	}

	// Results are never answered, whoever sent them.
	if h == nil && req.Type == stanza.ResultIQ {
		return Ignored
	}

	owner, err := sess.Owner()
	if err != nil {
		return p.fail(req, sess, err, results)
	}

	if req.HasFrom && !req.From.Bare().Equal(owner) {
		p.logger.Warn("dropping %s: sender does not match session owner %s", req, owner)
		return Ignored
	}

	if h == nil {
		results.Offer(errorReply(req, sess, xmpp.ErrorModify, stanza.BadRequest, textBadType))
		return BadRequest
	}
	if req.Malformed != nil {
		p.logger.Warn("rejecting %s: %v", req, req.Malformed)
		results.Offer(errorReply(req, sess, xmpp.ErrorModify, stanza.BadRequest, textMalformed))
		return BadRequest
	}

	// Side effects are only delivered together with a successful reply.
	var out xmpp.Queue
	outcome, err := h(ctx, req, sess, owner, settings, &out)
	if err != nil {
		return p.fail(req, sess, err, results)
	}
	for _, packet := range out.Packets() {
		results.Offer(packet)
	}
	return outcome
}

func (p *Processor) selectHandler(typ stanza.IQType, get, set handler) handler {
	switch typ {
	case stanza.GetIQ:
		return get
	case stanza.SetIQ:
		return set
	}
	return nil
}

func (p *Processor) fail(req *xmpp.Request, sess Session, err error, results *xmpp.Queue) Outcome {
	if errors.Is(err, session.ErrNotAuthorized) {
		p.logger.Warn("unauthorized session %s sent %s", sess.ConnectionID(), req)
		results.Offer(errorReply(req, sess, xmpp.ErrorAuth, stanza.NotAuthorized, textNotAuthorized))
		return NotAuthorized
	}
	p.logger.Warn("storage failure processing %s: %v", req, err)
	results.Offer(errorReply(req, sess, xmpp.ErrorWait, stanza.InternalServerError, textStorageFailure))
	return StorageFailure
}

// requesterOnly pushes changes back to the requesting session
type requesterOnly struct{}

func (requesterOnly) NotifyChange(_ context.Context, requester session.Target, item roster.Item, results *xmpp.Queue) error {
	results.Offer(push(requester, "push-"+newID(), item))
	return nil
}
