// Package relay orchestrates the per-message relay flow: resolve the pair,
// run the content filter, deliver, and record the mapping. Every event
// reaches exactly one terminal outcome, logged with enough context to audit
// after the fact.
package relay

import (
	"context"
	"fmt"
	"sync"

	"github.com/tinyland-inc/relayx/pkg/bus"
	"github.com/tinyland-inc/relayx/pkg/deliver"
	"github.com/tinyland-inc/relayx/pkg/filter"
	"github.com/tinyland-inc/relayx/pkg/logger"
	"github.com/tinyland-inc/relayx/pkg/mapping"
	"github.com/tinyland-inc/relayx/pkg/pairs"
)

// Outcome is the terminal state of one processed event.
type Outcome string

const (
	OutcomeDelivered      Outcome = "delivered"
	OutcomeNoPair         Outcome = "dropped_no_pair"
	OutcomeBlocked        Outcome = "dropped_blocked"
	OutcomeTrapped        Outcome = "flagged_trap"
	OutcomeEmpty          Outcome = "dropped_empty"
	OutcomeDeliveryFailed Outcome = "delivery_failed"

	OutcomeEditCorrelated   Outcome = "edit_correlated"
	OutcomeEditCapped       Outcome = "edit_capped"
	OutcomeEditUnmapped     Outcome = "edit_unmapped"
	OutcomeEditFailed       Outcome = "edit_failed"
	OutcomeDeleteCorrelated Outcome = "delete_correlated"
	OutcomeDeleteUnmapped   Outcome = "delete_unmapped"
	OutcomeDeleteFailed     Outcome = "delete_failed"
)

// Result is the audited terminal outcome for one source event.
type Result struct {
	Outcome       Outcome `json:"outcome"`
	Pair          string  `json:"pair,omitempty"`
	SourceID      string  `json:"source_id"`
	DestinationID string  `json:"destination_id,omitempty"`
	Detail        string  `json:"detail,omitempty"`
}

// Flagger marks a source message as trapped, operator-visibly.
type Flagger interface {
	Flag(ctx context.Context, ev bus.SourceEvent) error
}

// Alerter notifies operators about a trapped message. This is a
// notification, never a delivery.
type Alerter interface {
	TrapAlert(ctx context.Context, pairName, trapKind string, ev bus.SourceEvent) error
}

// Options wires a Pipeline.
type Options struct {
	Bus           *bus.EventBus
	Registry      *pairs.Registry
	Filter        *filter.Filter
	Store         *mapping.Store
	Deliverers    deliver.Set
	Flagger       Flagger // optional
	Alerter       Alerter // optional
	EditThreshold int
	Workers       int
	Observer      func(Result) // optional, receives every terminal outcome
}

// Pipeline consumes the event bus with a small worker pool. Message
// processing is concurrent across messages; only the mapping store write
// path is serialized, inside the store itself.
type Pipeline struct {
	opts    Options
	targets map[string]deliver.Target // pair name -> parsed destination
	stats   *Stats
	wg      sync.WaitGroup
}

func New(opts Options) (*Pipeline, error) {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.EditThreshold <= 0 {
		opts.EditThreshold = 3
	}

	targets := make(map[string]deliver.Target)
	for _, p := range opts.Registry.Pairs() {
		target, err := deliver.ParseTarget(p.Destination)
		if err != nil {
			return nil, fmt.Errorf("pair %q: %w", p.Name, err)
		}
		targets[p.Name] = target
	}

	return &Pipeline{opts: opts, targets: targets, stats: &Stats{}}, nil
}

// Stats returns the live relay counters.
func (p *Pipeline) Stats() *Stats { return p.stats }

// Run consumes events until the context is canceled or the bus closes.
func (p *Pipeline) Run(ctx context.Context) {
	for i := 0; i < p.opts.Workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for {
				ev, ok := p.opts.Bus.Consume(ctx)
				if !ok {
					return
				}
				p.Process(ctx, ev)
			}
		}()
	}
}

// Wait blocks until all workers have drained.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// Process runs one event to its terminal outcome. Errors are contained to
// the event; nothing propagates to the caller.
func (p *Pipeline) Process(ctx context.Context, ev bus.SourceEvent) Result {
	var res Result
	switch ev.Kind {
	case bus.EventEdited:
		res = p.processEdit(ctx, ev)
	case bus.EventDeleted:
		res = p.processDelete(ctx, ev)
	default:
		res = p.processNew(ctx, ev)
	}

	p.stats.record(res.Outcome)
	if p.opts.Observer != nil {
		p.opts.Observer(res)
	}
	return res
}

func (p *Pipeline) processNew(ctx context.Context, ev bus.SourceEvent) Result {
	if !ev.Channel.Supported() {
		return Result{Outcome: OutcomeNoPair, SourceID: ev.MessageID, Detail: "unsupported channel"}
	}

	pair, ok := p.opts.Registry.ResolveBySource(ev.Channel.Identifier)
	if !ok {
		// Expected for every channel the sessions see but no pair routes.
		logger.DebugCF("relay", "No matching pair", map[string]any{
			"channel": ev.Channel.Identifier,
		})
		return Result{Outcome: OutcomeNoPair, SourceID: ev.MessageID}
	}

	if ev.Text == "" {
		logger.DebugCF("relay", "Skipping non-text message", map[string]any{
			"pair":      pair.Name,
			"source_id": ev.MessageID,
		})
		return Result{Outcome: OutcomeEmpty, Pair: pair.Name, SourceID: ev.MessageID}
	}

	verdict := p.opts.Filter.Evaluate(ev.Text, pair)
	switch verdict.Decision {
	case filter.DecisionBlocked:
		logger.WarnCF("relay", "Blocked content", map[string]any{
			"pair":      pair.Name,
			"source_id": ev.MessageID,
			"entry":     verdict.Reason,
		})
		return Result{Outcome: OutcomeBlocked, Pair: pair.Name, SourceID: ev.MessageID, Detail: verdict.Reason}
	case filter.DecisionTrapped:
		p.flagTrap(ctx, pair.Name, verdict.Reason, ev)
		return Result{Outcome: OutcomeTrapped, Pair: pair.Name, SourceID: ev.MessageID, Detail: verdict.Reason}
	}

	target := p.targets[pair.Name]
	d, ok := p.opts.Deliverers.For(target.Kind)
	if !ok {
		logger.ErrorCF("relay", "No deliverer for destination", map[string]any{
			"pair": pair.Name,
			"kind": target.Kind,
		})
		return Result{Outcome: OutcomeDeliveryFailed, Pair: pair.Name, SourceID: ev.MessageID, Detail: "no deliverer"}
	}

	content := deliver.PrepareContent(ev.Text)
	destID, err := d.Deliver(ctx, target, content)
	if err != nil {
		// No retry: the message is dropped and only the log remains.
		logger.ErrorCF("relay", "Delivery failed", map[string]any{
			"pair":      pair.Name,
			"source_id": ev.MessageID,
			"error":     err.Error(),
		})
		return Result{Outcome: OutcomeDeliveryFailed, Pair: pair.Name, SourceID: ev.MessageID, Detail: err.Error()}
	}

	res := Result{Outcome: OutcomeDelivered, Pair: pair.Name, SourceID: ev.MessageID, DestinationID: destID}
	if err := p.opts.Store.Insert(ev.MessageID, destID, pair.Name); err != nil {
		// Delivered, record kept in memory; the durability gap closes on
		// the next successful write.
		logger.ErrorCF("relay", "Mapping persist failed", map[string]any{
			"pair":      pair.Name,
			"source_id": ev.MessageID,
			"error":     err.Error(),
		})
		res.Detail = "mapping persist failed"
		return res
	}

	logger.InfoCF("relay", "Message relayed", map[string]any{
		"pair":           pair.Name,
		"source_id":      ev.MessageID,
		"destination_id": destID,
	})
	return res
}

func (p *Pipeline) flagTrap(ctx context.Context, pairName, trapKind string, ev bus.SourceEvent) {
	logger.WarnCF("relay", "Trap detected", map[string]any{
		"pair":      pairName,
		"trap":      trapKind,
		"source_id": ev.MessageID,
	})
	if p.opts.Alerter != nil {
		if err := p.opts.Alerter.TrapAlert(ctx, pairName, trapKind, ev); err != nil {
			logger.ErrorCF("relay", "Trap alert failed", map[string]any{
				"pair":  pairName,
				"error": err.Error(),
			})
		}
	}
	if p.opts.Flagger != nil {
		if err := p.opts.Flagger.Flag(ctx, ev); err != nil {
			logger.ErrorCF("relay", "Source flag failed", map[string]any{
				"pair":  pairName,
				"error": err.Error(),
			})
		}
	}
}

func (p *Pipeline) processEdit(ctx context.Context, ev bus.SourceEvent) Result {
	rec, ok := p.opts.Store.Get(ev.MessageID)
	if !ok {
		return Result{Outcome: OutcomeEditUnmapped, SourceID: ev.MessageID}
	}

	if rec.EditCount >= p.opts.EditThreshold {
		logger.DebugCF("relay", "Edit threshold reached, ignoring edit", map[string]any{
			"pair":      rec.PairName,
			"source_id": ev.MessageID,
			"edits":     rec.EditCount,
		})
		return Result{Outcome: OutcomeEditCapped, Pair: rec.PairName, SourceID: ev.MessageID}
	}

	target, d, err := p.delivererFor(rec.PairName)
	if err != nil {
		return Result{Outcome: OutcomeEditFailed, Pair: rec.PairName, SourceID: ev.MessageID, Detail: err.Error()}
	}

	content := deliver.PrepareContent(ev.Text)
	if err := d.Edit(ctx, target, rec.DestinationID, content); err != nil {
		logger.ErrorCF("relay", "Edit correlation failed", map[string]any{
			"pair":      rec.PairName,
			"source_id": ev.MessageID,
			"error":     err.Error(),
		})
		return Result{Outcome: OutcomeEditFailed, Pair: rec.PairName, SourceID: ev.MessageID, Detail: err.Error()}
	}

	count := p.opts.Store.IncrementEdit(ev.MessageID)
	logger.InfoCF("relay", "Edit correlated", map[string]any{
		"pair":           rec.PairName,
		"source_id":      ev.MessageID,
		"destination_id": rec.DestinationID,
		"edits":          count,
	})
	return Result{Outcome: OutcomeEditCorrelated, Pair: rec.PairName, SourceID: ev.MessageID, DestinationID: rec.DestinationID}
}

func (p *Pipeline) processDelete(ctx context.Context, ev bus.SourceEvent) Result {
	rec, ok := p.opts.Store.Get(ev.MessageID)
	if !ok {
		return Result{Outcome: OutcomeDeleteUnmapped, SourceID: ev.MessageID}
	}

	target, d, err := p.delivererFor(rec.PairName)
	if err != nil {
		return Result{Outcome: OutcomeDeleteFailed, Pair: rec.PairName, SourceID: ev.MessageID, Detail: err.Error()}
	}

	if err := d.Delete(ctx, target, rec.DestinationID); err != nil {
		logger.ErrorCF("relay", "Delete correlation failed", map[string]any{
			"pair":      rec.PairName,
			"source_id": ev.MessageID,
			"error":     err.Error(),
		})
		return Result{Outcome: OutcomeDeleteFailed, Pair: rec.PairName, SourceID: ev.MessageID, Detail: err.Error()}
	}

	p.opts.Store.Delete(ev.MessageID)
	logger.InfoCF("relay", "Delete correlated", map[string]any{
		"pair":           rec.PairName,
		"source_id":      ev.MessageID,
		"destination_id": rec.DestinationID,
	})
	return Result{Outcome: OutcomeDeleteCorrelated, Pair: rec.PairName, SourceID: ev.MessageID, DestinationID: rec.DestinationID}
}

func (p *Pipeline) delivererFor(pairName string) (deliver.Target, deliver.Deliverer, error) {
	target, ok := p.targets[pairName]
	if !ok {
		return deliver.Target{}, nil, fmt.Errorf("pair %q no longer configured", pairName)
	}
	d, ok := p.opts.Deliverers.For(target.Kind)
	if !ok {
		return deliver.Target{}, nil, fmt.Errorf("no deliverer for %q", target.Kind)
	}
	return target, d, nil
}
