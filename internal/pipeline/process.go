package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/couchcryptid/bcfishobs/internal/domain"
	"github.com/couchcryptid/bcfishobs/internal/observability"
)

// Processor runs the scripts that reference observations to the stream
// network and tag maximal events.
type Processor struct {
	db        Database
	queries   Queries
	plan      domain.ProcessPlan
	publisher SummaryPublisher
	progress  *Progress
	out       io.Writer
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewProcessor creates a Processor for the default plan. Pass a nil
// publisher to skip announcing finished runs. Species progress and the
// match report are written to out.
func NewProcessor(db Database, q Queries, publisher SummaryPublisher, out io.Writer, logger *slog.Logger, metrics *observability.Metrics) *Processor {
	return &Processor{
		db:        db,
		queries:   q,
		plan:      domain.DefaultPlan(),
		publisher: publisher,
		progress:  NewProgress(),
		out:       out,
		logger:    logger,
		metrics:   metrics,
	}
}

// Progress exposes the run state for the status server.
func (p *Processor) Progress() *Progress {
	return p.progress
}

// Run executes the full plan: the ordered steps, the species loop, cleanup
// unless disabled, and the match report.
func (p *Processor) Run(ctx context.Context, cleanup bool) (summary domain.RunSummary, err error) {
	summary = domain.RunSummary{Command: "process", StartedAt: domain.Now(), Cleanup: cleanup}
	defer func() { p.finish(err) }()

	if err := p.queries.Require(p.plan.Scripts()...); err != nil {
		return summary, fmt.Errorf("check scripts: %w", err)
	}

	p.metrics.RunRunning.Set(1)
	defer p.metrics.RunRunning.Set(0)

	for _, step := range p.plan.Steps {
		if err := p.runScript(ctx, step); err != nil {
			return summary, err
		}
		summary.Steps = append(summary.Steps, step)
	}

	species, err := p.tagMaximal(ctx)
	summary.Species = species
	if err != nil {
		return summary, err
	}

	if cleanup {
		if err := p.runScript(ctx, p.plan.Cleanup); err != nil {
			return summary, err
		}
		summary.Steps = append(summary.Steps, p.plan.Cleanup)
	} else {
		p.logger.Info("skipping cleanup")
	}

	report, err := p.matchReport(ctx)
	if err != nil {
		return summary, err
	}
	summary.Report = report
	summary.FinishedAt = domain.Now()

	p.publish(ctx, summary)
	return summary, nil
}

// TagMaximal runs only the species loop against an already processed database.
func (p *Processor) TagMaximal(ctx context.Context) (summary domain.RunSummary, err error) {
	summary = domain.RunSummary{Command: "tag-maximal", StartedAt: domain.Now()}
	defer func() { p.finish(err) }()

	if err := p.queries.Require(p.plan.SpeciesQuery, p.plan.PerSpecies); err != nil {
		return summary, fmt.Errorf("check scripts: %w", err)
	}

	p.metrics.RunRunning.Set(1)
	defer p.metrics.RunRunning.Set(0)

	species, err := p.tagMaximal(ctx)
	summary.Species = species
	if err != nil {
		return summary, err
	}
	summary.FinishedAt = domain.Now()

	p.publish(ctx, summary)
	return summary, nil
}

// tagMaximal runs the per-species script once for every species code, in
// code order, and returns the codes processed.
func (p *Processor) tagMaximal(ctx context.Context) ([]string, error) {
	p.progress.Start(p.plan.SpeciesQuery)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	query, err := p.queries.Get(p.plan.SpeciesQuery)
	if err != nil {
		return nil, err
	}
	codes, err := p.db.SpeciesCodes(ctx, query)
	if err != nil {
		return nil, err
	}
	p.logger.Info("tagging maximal events", "species_count", len(codes))

	done := make([]string, 0, len(codes))
	for _, code := range codes {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		if _, err := fmt.Fprintf(p.out, "Processing species: %s\n", code); err != nil {
			return done, fmt.Errorf("write progress: %w", err)
		}
		if err := p.runScript(ctx, p.plan.PerSpecies, code); err != nil {
			return done, fmt.Errorf("species %s: %w", code, err)
		}
		p.metrics.SpeciesProcessed.Inc()
		done = append(done, code)
	}
	return done, nil
}

func (p *Processor) matchReport(ctx context.Context) ([]domain.MatchReportRow, error) {
	p.progress.Start(p.plan.Report)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	query, err := p.queries.Get(p.plan.Report)
	if err != nil {
		return nil, err
	}
	report, err := p.db.MatchReport(ctx, query)
	if err != nil {
		return nil, err
	}
	if err := domain.FormatMatchReport(p.out, report); err != nil {
		return nil, fmt.Errorf("write match report: %w", err)
	}
	return report, nil
}

// runScript executes one named script. args bind to its placeholders.
// A cancelled context stops the run before the script starts.
func (p *Processor) runScript(ctx context.Context, name string, args ...any) error {
	p.progress.Start(name)
	if err := ctx.Err(); err != nil {
		return err
	}
	sql, err := p.queries.Get(name)
	if err != nil {
		return err
	}

	start := time.Now()
	logger := p.logger.With("step", name)
	if len(args) > 0 {
		logger = logger.With("args", args)
	}
	logger.Debug("running script")

	if err := p.db.Exec(ctx, sql, args...); err != nil {
		p.metrics.ScriptErrors.WithLabelValues(name).Inc()
		return fmt.Errorf("run %s: %w", name, err)
	}

	elapsed := time.Since(start)
	p.metrics.ScriptDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	if len(args) == 0 {
		logger.Info("script finished", "duration", elapsed)
	} else {
		logger.Debug("script finished", "duration", elapsed)
	}
	return nil
}

func (p *Processor) finish(err error) {
	p.progress.Finish(err)
	if err == nil {
		p.metrics.LastSuccess.SetToCurrentTime()
	}
}

// publish announces the run. A failed announcement is logged, not returned:
// the database work it describes has already been committed.
func (p *Processor) publish(ctx context.Context, summary domain.RunSummary) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(ctx, summary); err != nil {
		p.logger.Error("publish run summary failed", "error", err)
	}
}
