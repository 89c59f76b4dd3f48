package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/couchcryptid/bcfishobs/internal/domain"
)

// Database runs scripts and the two read queries of the process command.
type Database interface {
	Exec(ctx context.Context, sql string, args ...any) error
	SpeciesCodes(ctx context.Context, query string) ([]string, error)
	MatchReport(ctx context.Context, query string) ([]domain.MatchReportRow, error)
}

// Queries resolves script names to SQL text.
type Queries interface {
	Get(name string) (string, error)
	Require(names ...string) error
}

// Catalogue resolves and orders layers from the BC Data Catalogue.
type Catalogue interface {
	ObjectName(ctx context.Context, pkg string) (domain.ObjectName, error)
	CreateOrder(ctx context.Context, email string, obj domain.ObjectName) (string, error)
	WaitForOrder(ctx context.Context, orderID string) (string, error)
}

// Fetcher downloads and unpacks archives.
type Fetcher interface {
	Download(ctx context.Context, url, dest string) (int64, error)
	Extract(archive, destDir string) ([]string, error)
}

// LayerLoader loads a file into a Postgres table.
type LayerLoader interface {
	Load(ctx context.Context, layer domain.Layer) error
}

// SummaryPublisher announces a finished run.
type SummaryPublisher interface {
	Publish(ctx context.Context, summary domain.RunSummary) error
}

// Progress tracks the step a command is running. It implements the
// readiness check of the status server: ready once the command has finished
// without error.
type Progress struct {
	mu   sync.Mutex
	step string
	done bool
	err  error
}

// NewProgress returns a Progress for a command that has not started.
func NewProgress() *Progress {
	return &Progress{}
}

// Start records the step now running.
func (p *Progress) Start(step string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.step = step
}

// Finish records the outcome of the command.
func (p *Progress) Finish(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done = true
	p.err = err
}

// Step returns the most recently started step.
func (p *Progress) Step() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.step
}

// CheckReadiness returns nil once the command completed successfully.
func (p *Progress) CheckReadiness(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case p.done && p.err != nil:
		return fmt.Errorf("failed at step %s: %w", p.step, p.err)
	case p.done:
		return nil
	case p.step == "":
		return errors.New("not started")
	default:
		return fmt.Errorf("running step %s", p.step)
	}
}
