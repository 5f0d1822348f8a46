package relay

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/arc-self/sync-relay/internal/config"
	"github.com/arc-self/sync-relay/internal/publish"
	"github.com/arc-self/sync-relay/internal/subject"
)

// EngineConfig tunes the per-link pull loop (spec.md §4.6, §6).
type EngineConfig struct {
	BatchSize     int
	FetchWait     time.Duration
	RetryInterval time.Duration // how often a link with no subscription yet retries PullSubscribe
}

// Engine runs one durable pull consumer per Link, rewriting each message's
// subject and republishing it to the next hop before acking. It never
// treats "broker/stream not ready yet" as fatal: every link retries its own
// subscribe attempt forever on a ticker, the same startup-tolerance posture
// as the rest of the fabric (spec.md §9).
type Engine struct {
	js         nats.JetStreamContext
	publisher  publish.Publisher
	identity   config.Identity
	links      []Link
	cfg        EngineConfig
	log        *zap.Logger
	startToken <-chan struct{}

	republished metric.Int64Counter
	naked       metric.Int64Counter
}

// NewEngine constructs an Engine for the links this node's tier and topology
// own (see LinksForTier). startToken is the best-effort "bootstrap complete"
// signal (e.g. a *streams.Bootstrapper's Complete() channel) that lets a
// waiting link retry its subscribe immediately instead of idling out the
// rest of its ticker period; it is purely an optimization, never a
// correctness dependency — a nil startToken degrades gracefully to
// ticker-only retry (spec.md §9: best-effort signal + independent retry).
// republished and naked are the telemetry.RelayMetrics counters of the same
// name; either may be nil (e.g. in tests), in which case that outcome is
// simply not recorded.
func NewEngine(js nats.JetStreamContext, publisher publish.Publisher, identity config.Identity, links []Link, cfg EngineConfig, log *zap.Logger, startToken <-chan struct{}, republished, naked metric.Int64Counter) *Engine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.FetchWait <= 0 {
		cfg.FetchWait = 5 * time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 5 * time.Second
	}
	return &Engine{js: js, publisher: publisher, identity: identity, links: links, cfg: cfg, log: log, startToken: startToken, republished: republished, naked: naked}
}

// Run starts one goroutine per link and blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	if len(e.links) == 0 {
		e.log.Info("relay engine has no links for this node's tier/topology, idling")
		<-ctx.Done()
		return
	}

	done := make(chan struct{}, len(e.links))
	for _, l := range e.links {
		go func(link Link) {
			e.runLink(ctx, link)
			done <- struct{}{}
		}(l)
	}

	<-ctx.Done()
	for range e.links {
		<-done
	}
	e.log.Info("relay engine stopped")
}

// runLink owns the full lifecycle of a single link: subscribe-with-retry,
// then fetch/process/ack until ctx is cancelled.
func (e *Engine) runLink(ctx context.Context, link Link) {
	durable := link.DurableName(e.identity)
	logger := e.log.With(
		zap.String("link", link.Key),
		zap.String("durable", durable),
		zap.String("in_stream", link.InStream),
	)

	sub := e.subscribeWithRetry(ctx, link, durable, logger)
	if sub == nil {
		return // ctx was cancelled while waiting for the stream to appear
	}
	defer sub.Unsubscribe()

	logger.Info("relay link active")
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		e.pollOnce(ctx, link, sub, logger)
	}
}

// subscribeWithRetry attempts PullSubscribe on a ticker until it succeeds or
// ctx is cancelled. A missing stream (bootstrap not yet complete, or this
// node started before its upstream peer) is expected at startup, not fatal.
// It also selects over the engine's start-token channel so a subzone/zone
// whose own bootstrapper just finished provisioning streams doesn't wait out
// a full ticker period before its first retry; the token is consumed once
// and then discarded (select no longer matches on it), so it can never
// cause a busy loop once fired (spec.md §9).
func (e *Engine) subscribeWithRetry(ctx context.Context, link Link, durable string, logger *zap.Logger) *nats.Subscription {
	sub, err := e.trySubscribe(link, durable)
	if err == nil {
		return sub
	}
	logger.Warn("pull subscribe failed, retrying", zap.Error(err))

	ticker := time.NewTicker(e.cfg.RetryInterval)
	defer ticker.Stop()
	startToken := e.startToken
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-startToken:
			startToken = nil
			sub, err := e.trySubscribe(link, durable)
			if err == nil {
				return sub
			}
			logger.Warn("pull subscribe failed after start token, retrying on ticker", zap.Error(err))
		case <-ticker.C:
			sub, err := e.trySubscribe(link, durable)
			if err == nil {
				return sub
			}
			logger.Warn("pull subscribe failed, retrying", zap.Error(err))
		}
	}
}

func (e *Engine) trySubscribe(link Link, durable string) (*nats.Subscription, error) {
	return e.js.PullSubscribe(link.InFilter, durable,
		nats.ManualAck(),
		nats.BindStream(link.InStream),
	)
}

// pollOnce fetches one batch, processes each message independently, and
// never lets a single bad message stall the link: parse failures are
// terminally rejected (Term, not Nak — redelivery cannot fix malformed
// data), publish failures are Nak'd for redelivery, and everything else
// publishes before acking (spec.md §4.6 step: publish-then-ack).
func (e *Engine) pollOnce(ctx context.Context, link Link, sub *nats.Subscription, logger *zap.Logger) {
	msgs, err := sub.Fetch(e.cfg.BatchSize, nats.MaxWait(e.cfg.FetchWait))
	if err != nil {
		if err == nats.ErrTimeout || err == nats.ErrNoMessages {
			return
		}
		logger.Warn("fetch failed", zap.Error(err))
		return
	}

	for _, msg := range msgs {
		if ctx.Err() != nil {
			return
		}
		e.relayOne(ctx, link, msg, logger)
	}
}

// outScope picks the out_zone/out_subzone for a rewrite (spec.md §4.6 step
// 3b): down relays preserve the destination scope already encoded in the
// inbound subject (a zone's down-from-central link fans a single inbound
// subject out across every subzone it owns, so the subzone must come from
// the message, never from this node's own identity); up relays re-identify
// at this hop using the local node's own zone/subzone.
func outScope(direction subject.Direction, parsed *subject.Parsed, local config.Identity) (zone, subzone string) {
	if direction == subject.Down {
		return parsed.Zone, parsed.Subzone
	}
	return local.Zone, local.Subzone
}

func (e *Engine) relayOne(ctx context.Context, link Link, msg *nats.Msg, logger *zap.Logger) {
	parsed, ok := subject.TryParse(msg.Subject)
	if !ok {
		logger.Error("non-canonical subject, terminating message", zap.String("subject", msg.Subject))
		_ = msg.Term()
		return
	}

	outZone, outSubzone := outScope(link.OutDirection, parsed, e.identity)
	rewritten, err := subject.Build(link.OutDirection, link.OutTier, outZone, outSubzone, e.identity.Node, parsed.Domain, parsed.Entity, parsed.Event)
	if err != nil {
		logger.Error("non-canonical subject, terminating message", zap.String("subject", msg.Subject), zap.Error(err))
		_ = msg.Term()
		return
	}

	messageID := msg.Header.Get(nats.MsgIdHdr)
	if _, err := e.publisher.Publish(rewritten, msg.Data, messageID); err != nil {
		logger.Warn("relay republish failed, nak for redelivery",
			zap.String("in_subject", msg.Subject), zap.String("out_subject", rewritten), zap.Error(err))
		_ = msg.Nak()
		if e.naked != nil {
			e.naked.Add(ctx, 1)
		}
		return
	}
	if e.republished != nil {
		e.republished.Add(ctx, 1)
	}

	if err := msg.Ack(); err != nil {
		logger.Warn("ack failed after successful republish (broker dedup makes the eventual redelivery harmless)",
			zap.String("out_subject", rewritten), zap.Error(err))
	}
}
