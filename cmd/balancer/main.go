// Command balancer runs the dataset balancing pipeline over the actor
// catalog. It resumes interrupted runs from the progress file by default.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"actorset/internal/balancer"
	"actorset/internal/composite"
	"actorset/internal/domain"
	"actorset/internal/infra"
	"actorset/internal/manifest"
	"actorset/internal/plan"
	"actorset/internal/progress"
	"actorset/internal/providers/replicate"
	"actorset/internal/providers/vision"
	"actorset/internal/storage"
)

type runFlags struct {
	actors        []string
	all           bool
	execute       bool
	fresh         bool
	showProgress  bool
	resetProgress bool
}

func main() {
	flags := runFlags{}

	root := &cobra.Command{
		Use:          "balancer",
		Short:        "Balance per-actor training image sets against the target composition",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), flags)
		},
	}
	root.Flags().StringSliceVar(&flags.actors, "actor", nil, "actor IDs to process (repeatable)")
	root.Flags().BoolVar(&flags.all, "all", false, "process every actor in the catalog")
	root.Flags().BoolVar(&flags.execute, "execute", false, "apply the plan (delete and generate); default is a dry run")
	root.Flags().BoolVar(&flags.fresh, "fresh", false, "ignore previous progress and start over")
	root.Flags().BoolVar(&flags.showProgress, "show-progress", false, "print the progress file and exit")
	root.Flags().BoolVar(&flags.resetProgress, "reset-progress", false, "clear the progress file and exit")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, flags runFlags) error {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		return err
	}
	logger := infra.NewLogger(cfg.AppEnv)

	tracker, err := progress.Open(cfg.ProgressFile)
	if err != nil {
		return fmt.Errorf("open progress file: %w", err)
	}

	if flags.showProgress {
		printProgress(tracker.State())
		return nil
	}
	if flags.resetProgress {
		if err := tracker.Reset(); err != nil {
			return fmt.Errorf("reset progress: %w", err)
		}
		fmt.Println("progress cleared")
		return nil
	}

	if len(flags.actors) == 0 && !flags.all {
		return fmt.Errorf("nothing to do: pass --actor or --all")
	}

	catalog := manifest.NewCatalog(cfg.ActorsFile)
	actors, err := selectActors(catalog, flags)
	if err != nil {
		return err
	}

	skipped := 0
	if flags.fresh {
		if err := tracker.Reset(); err != nil {
			return fmt.Errorf("reset progress: %w", err)
		}
	} else {
		ids := make([]string, len(actors))
		for i, a := range actors {
			ids[i] = a.ID
		}
		remaining := tracker.Remaining(ids)
		skipped = len(actors) - len(remaining)
		if skipped > 0 {
			logger.Info().Int("skipped", skipped).Msg("balancer: resuming, already completed actors skipped")
		}
		actors = filterByID(actors, remaining)
	}
	if len(actors) == 0 {
		fmt.Println("all requested actors already completed; use --fresh to redo them")
		return nil
	}

	if err := cfg.RequireEvaluationCredentials(); err != nil {
		return err
	}
	if flags.execute {
		if err := cfg.RequireExecutionCredentials(); err != nil {
			return err
		}
	}

	orch, err := buildOrchestrator(ctx, cfg, logger, flags.execute)
	if err != nil {
		return err
	}

	succeeded, failed := 0, 0
	for _, actor := range actors {
		if err := ctx.Err(); err != nil {
			logger.Warn().Msg("balancer: interrupted, progress saved")
			break
		}
		if err := tracker.SetCurrent(actor.ID); err != nil {
			return fmt.Errorf("update progress: %w", err)
		}
		outcome, procErr := orch.ProcessActor(ctx, actor, flags.execute)
		if procErr != nil {
			failed++
			logger.Error().Err(procErr).Str("actor", actor.ID).Msg("balancer: actor failed")
			if err := tracker.MarkFailed(actor.ID, procErr); err != nil {
				return fmt.Errorf("update progress: %w", err)
			}
			continue
		}
		succeeded++
		logger.Info().Str("actor", actor.ID).Str("status", string(outcome.Status)).Msg("balancer: actor done")
		if outcome.Plan != nil && !flags.execute && !outcome.Plan.IsBalanced {
			fmt.Printf("%s: needs %d deletions, %d generations (dry run)\n", actor.ID, len(outcome.Plan.Delete), outcome.Plan.GenerateTotal())
		}
		if err := tracker.MarkCompleted(actor.ID); err != nil {
			return fmt.Errorf("update progress: %w", err)
		}
	}

	fmt.Println(summaryLine(succeeded, failed, skipped))
	// Per-actor failures are recorded in the progress file; they do not fail
	// the whole run.
	return nil
}

func summaryLine(succeeded, failed, skipped int) string {
	return fmt.Sprintf("done: %d succeeded, %d failed, %d skipped", succeeded, failed, skipped)
}

func selectActors(catalog *manifest.Catalog, flags runFlags) ([]domain.Actor, error) {
	if flags.all {
		actors, err := catalog.Load()
		if err != nil {
			return nil, fmt.Errorf("load actor catalog: %w", err)
		}
		return actors, nil
	}
	actors := make([]domain.Actor, 0, len(flags.actors))
	for _, id := range flags.actors {
		actor, err := catalog.Find(id)
		if err != nil {
			return nil, fmt.Errorf("actor %s: %w", id, err)
		}
		actors = append(actors, actor)
	}
	return actors, nil
}

func filterByID(actors []domain.Actor, ids []string) []domain.Actor {
	keep := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		keep[id] = struct{}{}
	}
	out := make([]domain.Actor, 0, len(ids))
	for _, a := range actors {
		if _, ok := keep[a.ID]; ok {
			out = append(out, a)
		}
	}
	return out
}

func buildOrchestrator(ctx context.Context, cfg *infra.Config, logger infra.Logger, execute bool) (*balancer.Orchestrator, error) {
	manifests, err := manifest.NewStore(cfg.ManifestsDir)
	if err != nil {
		return nil, err
	}
	targets, err := plan.TargetsFromComposition(cfg.TargetTotal, cfg.TargetComposition, cfg.TolerancePoints, cfg.TotalSlack)
	if err != nil {
		return nil, err
	}
	builder := composite.NewBuilder(composite.Options{
		ThumbSize:   cfg.CompositeThumbSize,
		Columns:     cfg.CompositeColumns,
		JPEGQuality: cfg.CompositeQuality,
		Logger:      &logger,
	})
	evaluator, err := vision.NewClient(vision.Options{
		APIKey:      cfg.OpenAIAPIKey,
		Model:       cfg.OpenAIModel,
		BaseURL:     cfg.OpenAIBaseURL,
		Logger:      &logger,
		MaxAttempts: cfg.VisionMaxAttempts,
	})
	if err != nil {
		return nil, err
	}

	var executor *balancer.Executor
	if execute {
		var store storage.ObjectStore
		if cfg.S3Bucket != "" {
			store, err = storage.NewS3Store(ctx, storage.S3Options{
				Bucket:        cfg.S3Bucket,
				Region:        cfg.S3Region,
				Endpoint:      cfg.S3Endpoint,
				PublicBaseURL: cfg.S3PublicBaseURL,
			})
		} else {
			store, err = storage.NewFileStore(cfg.ImagesDir)
		}
		if err != nil {
			return nil, err
		}
		generator, err := replicate.NewClient(replicate.Options{
			APIToken: cfg.ReplicateAPIToken,
			BaseURL:  cfg.ReplicateBaseURL,
			Model:    cfg.ReplicateModel,
			Logger:   &logger,
		})
		if err != nil {
			return nil, err
		}
		executor = balancer.NewExecutor(balancer.ExecutorOptions{
			Store:       store,
			Generator:   generator,
			ImagesDir:   cfg.ImagesDir,
			AspectRatio: cfg.AspectRatio,
			Rand:        rand.New(rand.NewSource(time.Now().UnixNano())),
			Logger:      &logger,
		})
	}

	return balancer.NewOrchestrator(balancer.OrchestratorOptions{
		Manifests: manifests,
		Builder:   builder,
		Evaluator: evaluator,
		Executor:  executor,
		Targets:   targets,
		Logger:    &logger,
	}), nil
}

func printProgress(st progress.State) {
	if st.StartedAt.IsZero() {
		fmt.Println("no recorded progress")
		return
	}
	fmt.Printf("started:   %s\n", st.StartedAt.Format(time.RFC3339))
	fmt.Printf("updated:   %s\n", st.LastUpdated.Format(time.RFC3339))
	fmt.Printf("completed: %d\n", len(st.CompletedActors))
	for _, id := range st.CompletedActors {
		fmt.Printf("  ok   %s\n", id)
	}
	fmt.Printf("failed:    %d\n", len(st.FailedActors))
	for _, f := range st.FailedActors {
		fmt.Printf("  fail %s: %s\n", f.ActorID, f.Error)
	}
	if st.CurrentActor != "" {
		fmt.Printf("in flight: %s\n", st.CurrentActor)
	}
}
