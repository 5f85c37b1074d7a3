package balancer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"

	"actorset/internal/composite"
	"actorset/internal/domain"
	"actorset/internal/infra"
	"actorset/internal/manifest"
	"actorset/internal/plan"
	"actorset/internal/providers/vision"
)

// Status tracks a single actor through the balancing state machine:
// pending -> evaluating -> (balanced | needs_action) -> deleting ->
// generating -> done, with failed reachable from any state.
type Status string

const (
	StatusPending     Status = "pending"
	StatusEvaluating  Status = "evaluating"
	StatusBalanced    Status = "balanced"
	StatusNeedsAction Status = "needs_action"
	StatusDeleting    Status = "deleting"
	StatusGenerating  Status = "generating"
	StatusDone        Status = "done"
	StatusFailed      Status = "failed"
)

// Evaluator is the slice of the vision client the orchestrator needs.
type Evaluator interface {
	Evaluate(ctx context.Context, composite []byte, imageCount int) (*vision.Result, error)
}

// OrchestratorOptions wires an Orchestrator.
type OrchestratorOptions struct {
	Manifests *manifest.Store
	Builder   *composite.Builder
	Evaluator Evaluator
	Executor  *Executor
	Targets   plan.Targets
	// HTTPClient fetches composite inputs that only exist in object storage.
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Orchestrator runs the evaluate -> plan -> execute sequence for one actor at
// a time. Actors are independent, sequential units of work.
type Orchestrator struct {
	manifests  *manifest.Store
	builder    *composite.Builder
	evaluator  Evaluator
	executor   *Executor
	targets    plan.Targets
	httpClient *http.Client
	logger     *infra.Logger
}

// Outcome summarizes one actor's pass through the pipeline.
type Outcome struct {
	ActorID   string           `json:"actor_id"`
	Status    Status           `json:"status"`
	Plan      *plan.ActionPlan `json:"plan,omitempty"`
	Execution *ExecutionResult `json:"execution,omitempty"`
	Analysis  string           `json:"analysis,omitempty"`
}

// NewOrchestrator constructs an Orchestrator.
func NewOrchestrator(opts OrchestratorOptions) *Orchestrator {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	targets := opts.Targets
	if targets.Total == 0 {
		targets = plan.DefaultTargets()
	}
	logger := opts.Logger
	if logger == nil {
		discard := infra.Logger(zerolog.New(io.Discard))
		logger = &discard
	}
	return &Orchestrator{
		manifests:  opts.Manifests,
		builder:    opts.Builder,
		evaluator:  opts.Evaluator,
		executor:   opts.Executor,
		targets:    targets,
		httpClient: httpClient,
		logger:     logger,
	}
}

// ProcessActor runs the full pipeline for one actor. With execute false it
// stops after computing the plan (dry run). Evaluation results are persisted
// to the manifest either way, so later plan computations can reuse them.
func (o *Orchestrator) ProcessActor(ctx context.Context, actor domain.Actor, execute bool) (Outcome, error) {
	out := Outcome{ActorID: actor.ID, Status: StatusPending}

	m, err := o.manifests.Load(actor.ID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			out.Status = StatusFailed
			return out, fmt.Errorf("load manifest: %w", err)
		}
		m = domain.NewManifest(actor.ID)
	}

	out.Status = StatusEvaluating
	if len(m.Images) > 0 {
		if err := o.evaluate(ctx, actor, &m, &out); err != nil {
			out.Status = StatusFailed
			return out, err
		}
	}

	p := plan.Compute(o.scores(m), o.targets)
	out.Plan = &p
	if p.IsBalanced {
		out.Status = StatusBalanced
		o.logger.Info().Str("actor", actor.ID).Int("images", p.TotalImages).Msg("balancer: already balanced")
		return out, nil
	}
	if !execute {
		out.Status = StatusNeedsAction
		return out, nil
	}

	if o.executor == nil {
		out.Status = StatusFailed
		return out, errors.New("balancer: no executor configured")
	}

	out.Status = StatusDeleting
	var baseImage []byte
	if p.GenerateTotal() > 0 && actor.BaseImage != "" {
		baseImage, err = os.ReadFile(actor.BaseImage)
		if err != nil {
			o.logger.Warn().Err(err).Str("actor", actor.ID).Msg("balancer: base image unreadable")
			baseImage = nil
		}
	}

	res, execErr := o.executor.Execute(ctx, actor, m, p, baseImage)
	out.Execution = &res
	// Persist whatever the executor managed, even on a partial failure.
	if saveErr := o.manifests.Save(actor.ID, res.Manifest); saveErr != nil {
		out.Status = StatusFailed
		return out, fmt.Errorf("save manifest: %w", saveErr)
	}
	if execErr != nil {
		out.Status = StatusFailed
		return out, fmt.Errorf("execute plan: %w", execErr)
	}
	out.Status = StatusDone
	o.logger.Info().
		Str("actor", actor.ID).
		Int("deleted", res.Deleted).
		Int("generated", res.Generated).
		Int("failed_deletions", res.FailedDeletions).
		Int("failed_generations", res.FailedGenerations).
		Msg("balancer: actor rebalanced")
	return out, nil
}

// evaluate builds the composite, runs the vision call, and writes the
// verdicts back onto the manifest entries. Mapping discipline: the composite
// builder reports which input ordinals made it into the grid, and verdict
// image numbers are 1-based positions within that grid.
func (o *Orchestrator) evaluate(ctx context.Context, actor domain.Actor, m *domain.Manifest, out *Outcome) error {
	if o.evaluator == nil {
		return fmt.Errorf("no evaluator configured: %w", domain.ErrEvaluation)
	}
	images := make([][]byte, len(m.Images))
	for i, entry := range m.Images {
		data, err := o.loadImageBytes(ctx, entry)
		if err != nil {
			o.logger.Warn().Err(err).Str("actor", actor.ID).Str("file", entry.Filename).Msg("balancer: image unreadable, excluded from evaluation")
			continue
		}
		images[i] = data
	}

	compositeJPEG, mapping, err := o.builder.Build(images)
	if err != nil {
		return fmt.Errorf("build composite: %w", err)
	}
	result, err := o.evaluator.Evaluate(ctx, compositeJPEG, len(mapping))
	if err != nil {
		return err
	}
	for _, v := range result.Verdicts {
		idx := mapping[v.ImageNumber-1]
		m.Images[idx].Category = v.Category
		m.Images[idx].QualityScore = v.QualityScore
	}
	out.Analysis = result.Analysis

	if err := o.manifests.Save(actor.ID, *m); err != nil {
		return fmt.Errorf("save evaluated manifest: %w", err)
	}
	return nil
}

// scores lists the manifest's evaluated images in insertion order.
func (o *Orchestrator) scores(m domain.Manifest) []plan.ImageScore {
	out := make([]plan.ImageScore, 0, len(m.Images))
	for i, entry := range m.Images {
		if !entry.Evaluated() {
			continue
		}
		out = append(out, plan.ImageScore{
			Ordinal:      i,
			Filename:     entry.Filename,
			Category:     entry.Category,
			QualityScore: entry.QualityScore,
		})
	}
	return out
}

func (o *Orchestrator) loadImageBytes(ctx context.Context, entry domain.ImageEntry) ([]byte, error) {
	if entry.LocalPath != "" {
		data, err := os.ReadFile(entry.LocalPath)
		if err == nil {
			return data, nil
		}
		if entry.S3URL == "" {
			return nil, err
		}
	}
	if entry.S3URL == "" {
		return nil, fmt.Errorf("image %s has no storage location", entry.Filename)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, entry.S3URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch %s: status %d", entry.S3URL, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
