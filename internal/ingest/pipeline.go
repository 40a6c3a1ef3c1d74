// Package ingest runs feed records through dedup, enrichment and storage.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/roadwatch/internal/dedup"
	"github.com/linnemanlabs/roadwatch/internal/feed"
	"github.com/linnemanlabs/roadwatch/internal/incident"
)

const scope = "github.com/linnemanlabs/roadwatch/internal/ingest"

// Record outcomes.
const (
	OutcomeCreated   = "created"
	OutcomeSkipped   = "skipped"   // dedup key already claimed
	OutcomeDuplicate = "duplicate" // store already holds message+location
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// Enricher turns a feed record into an incident draft.
type Enricher interface {
	FromRecord(rec *feed.Record) incident.Draft
}

// Recorder persists a draft and announces it.
type Recorder interface {
	Record(ctx context.Context, d *incident.Draft) (*incident.Incident, error)
}

// Hooks are optional callbacks for instrumentation.
type Hooks struct {
	OnRun    func(rep *RunReport)
	OnRecord func(outcome string)
}

// Config holds pipeline tuning.
type Config struct {
	// Stagger delays the i-th new record of a run by i*Stagger.
	Stagger time.Duration
}

// RunReport summarizes one run.
type RunReport struct {
	RunID      string        `json:"run_id"`
	Source     string        `json:"source"`
	Absent     bool          `json:"absent,omitempty"`
	Fetched    int           `json:"fetched"`
	Skipped    int           `json:"skipped"`
	Created    int           `json:"created"`
	Duplicates int           `json:"duplicates"`
	Failed     int           `json:"failed"`
	Cancelled  int           `json:"cancelled"`
	Error      string        `json:"error,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
}

// Pipeline processes one feed source. It is safe to Run concurrently;
// the ledger keeps overlapping runs from processing a record twice.
type Pipeline struct {
	source   feed.Source
	ledger   dedup.Ledger
	enricher Enricher
	recorder Recorder
	logger   log.Logger
	hooks    Hooks
	stagger  time.Duration
}

// New wires a pipeline from its components.
func New(src feed.Source, ledger dedup.Ledger, enricher Enricher, recorder Recorder, logger log.Logger, hooks Hooks, cfg Config) *Pipeline {
	if logger == nil {
		logger = log.Nop()
	}
	return &Pipeline{
		source:   src,
		ledger:   ledger,
		enricher: enricher,
		recorder: recorder,
		logger:   logger,
		hooks:    hooks,
		stagger:  max(cfg.Stagger, 0),
	}
}

// Run fetches the source once and processes every new record. Records are
// started Stagger apart and run concurrently; Run returns when all have
// finished. Only a failed fetch is returned as an error; per-record
// failures are logged and counted.
func (p *Pipeline) Run(ctx context.Context, runID string) (*RunReport, error) {
	ctx, span := otel.Tracer(scope).Start(ctx, "ingest.Run", trace.WithAttributes(
		attribute.String("ingest.run_id", runID),
		attribute.String("ingest.source", p.source.Name()),
	))
	defer span.End()

	L := p.logger.With("run_id", runID, "source", p.source.Name())
	rep := &RunReport{RunID: runID, Source: p.source.Name(), StartedAt: time.Now()}
	defer func() {
		rep.Duration = time.Since(rep.StartedAt)
		span.SetAttributes(
			attribute.Int("ingest.fetched", rep.Fetched),
			attribute.Int("ingest.created", rep.Created),
			attribute.Int("ingest.skipped", rep.Skipped),
			attribute.Int("ingest.failed", rep.Failed),
		)
		if p.hooks.OnRun != nil {
			p.hooks.OnRun(rep)
		}
	}()

	recs, err := p.source.Fetch(ctx)
	switch {
	case errors.Is(err, feed.ErrAbsent):
		rep.Absent = true
		L.Info(ctx, "feed absent, nothing to ingest")
		return rep, nil
	case err != nil && len(recs) == 0:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		L.Error(ctx, err, "feed fetch failed")
		rep.Error = err.Error()
		return rep, fmt.Errorf("fetch %s: %w", p.source.Name(), err)
	case err != nil:
		// partial read, process what we got
		L.Error(ctx, err, "feed read incomplete", "records", len(recs))
	}
	rep.Fetched = len(recs)

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	count := func(outcome string) {
		mu.Lock()
		switch outcome {
		case OutcomeCreated:
			rep.Created++
		case OutcomeSkipped:
			rep.Skipped++
		case OutcomeDuplicate:
			rep.Duplicates++
		case OutcomeCancelled:
			rep.Cancelled++
		default:
			rep.Failed++
		}
		mu.Unlock()
		if p.hooks.OnRecord != nil {
			p.hooks.OnRecord(outcome)
		}
	}

	scheduled := 0
	for i := range recs {
		rec := recs[i]
		key := rec.Key()

		claimed, err := p.ledger.Claim(ctx, key)
		if err != nil {
			L.Error(ctx, err, "dedup claim failed", recordFields(&rec)...)
			count(OutcomeFailed)
			continue
		}
		if !claimed {
			count(OutcomeSkipped)
			continue
		}

		delay := time.Duration(scheduled) * p.stagger
		scheduled++

		wg.Add(1)
		go func() {
			defer wg.Done()
			if delay > 0 {
				t := time.NewTimer(delay)
				select {
				case <-ctx.Done():
					t.Stop()
					p.release(ctx, L, &rec)
					count(OutcomeCancelled)
					return
				case <-t.C:
				}
			}
			outcome := p.process(ctx, L, &rec)
			if outcome == OutcomeCancelled {
				p.release(ctx, L, &rec)
			}
			count(outcome)
		}()
	}
	wg.Wait()

	L.Info(ctx, "ingest run complete",
		"fetched", rep.Fetched,
		"created", rep.Created,
		"skipped", rep.Skipped,
		"duplicates", rep.Duplicates,
		"failed", rep.Failed,
		"cancelled", rep.Cancelled,
	)
	return rep, nil
}

// process enriches and stores one record. Panics are recovered so one bad
// record cannot take the run down.
func (p *Pipeline) process(ctx context.Context, L log.Logger, rec *feed.Record) (outcome string) {
	ctx, span := otel.Tracer(scope).Start(ctx, "ingest.process", trace.WithAttributes(
		attribute.String("ingest.key", rec.Key()),
	))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic processing record: %v", r)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			L.Error(ctx, err, "record processing panicked", recordFields(rec)...)
			outcome = OutcomeFailed
		}
	}()

	d := p.enricher.FromRecord(rec)
	inc, err := p.recorder.Record(ctx, &d)
	switch {
	case errors.Is(err, incident.ErrDuplicate):
		span.SetAttributes(attribute.String("ingest.outcome", OutcomeDuplicate))
		return OutcomeDuplicate
	case err != nil && ctx.Err() != nil:
		// the run was stopped under the store call; nothing was written
		span.SetAttributes(attribute.String("ingest.outcome", OutcomeCancelled))
		return OutcomeCancelled
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		// logged with every field so the record can be replayed by hand
		L.Error(ctx, err, "failed to store feed record", recordFields(rec)...)
		return OutcomeFailed
	}

	span.SetAttributes(
		attribute.String("ingest.outcome", OutcomeCreated),
		attribute.Int64("incident.id", inc.ID),
	)
	return OutcomeCreated
}

// release gives back the claim of a record the run never stored, so the
// next run picks it up again. ctx is already cancelled here.
func (p *Pipeline) release(ctx context.Context, L log.Logger, rec *feed.Record) {
	if err := p.ledger.Release(context.WithoutCancel(ctx), rec.Key()); err != nil {
		// logged with every field so the record can be replayed by hand
		L.Error(ctx, err, "record not processed and dedup claim kept, run cancelled", recordFields(rec)...)
		return
	}
	L.Warn(ctx, "record not processed, run cancelled; claim released for the next run", "dedup_key", rec.Key())
}

func recordFields(rec *feed.Record) []any {
	return []any{
		"dedup_key", rec.Key(),
		"report_time", rec.RawTime,
		"disaster_type", rec.DisasterType,
		"location", rec.Location,
		"coordinates", rec.Coordinates,
		"content", rec.Content,
		"reason", rec.Reason,
	}
}
