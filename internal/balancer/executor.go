// Package balancer turns an action plan into dataset changes: deleting excess
// images and generating replacements, keeping the manifest and local/S3
// storage consistent.
package balancer

import (
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"actorset/internal/domain"
	"actorset/internal/infra"
	"actorset/internal/plan"
	"actorset/internal/prompts"
	"actorset/internal/providers/replicate"
	"actorset/internal/storage"
)

// ImageGenerator is the slice of the generation provider the executor needs.
type ImageGenerator interface {
	Generate(ctx context.Context, req replicate.GenerateRequest) (*replicate.ImageAsset, error)
}

// ExecutorOptions configures an Executor.
type ExecutorOptions struct {
	Store     storage.ObjectStore
	Generator ImageGenerator
	// ImagesDir is the root for local copies; images land under
	// <ImagesDir>/<actorID>/<filename>.
	ImagesDir   string
	AspectRatio string
	// Rand drives prompt selection; pass a seeded source in tests.
	Rand   *rand.Rand
	Logger *infra.Logger
}

// Executor applies action plans. Deletions and generations are independent
// units of work: one failure never aborts the rest.
type Executor struct {
	store       storage.ObjectStore
	generator   ImageGenerator
	imagesDir   string
	aspectRatio string
	rng         *rand.Rand
	logger      *infra.Logger
	now         func() time.Time
}

// ExecutionResult reports what actually happened, which may be less than the
// plan asked for.
type ExecutionResult struct {
	Deleted           int             `json:"deleted"`
	FailedDeletions   int             `json:"failed_deletions"`
	Generated         int             `json:"generated"`
	FailedGenerations int             `json:"failed_generations"`
	Failures          []string        `json:"failures,omitempty"`
	Manifest          domain.Manifest `json:"-"`
}

// NewExecutor constructs an Executor with sane defaults.
func NewExecutor(opts ExecutorOptions) *Executor {
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	aspect := strings.TrimSpace(opts.AspectRatio)
	if aspect == "" {
		aspect = "1:1"
	}
	logger := opts.Logger
	if logger == nil {
		discard := infra.Logger(zerolog.New(io.Discard))
		logger = &discard
	}
	return &Executor{
		store:       opts.Store,
		generator:   opts.Generator,
		imagesDir:   opts.ImagesDir,
		aspectRatio: aspect,
		rng:         rng,
		logger:      logger,
		now:         time.Now,
	}
}

// Execute runs the deletion phase then the generation phase and returns the
// updated manifest. A missing base image when generations are requested is
// fatal for the generation phase only; deletions already applied stay applied.
func (e *Executor) Execute(ctx context.Context, actor domain.Actor, m domain.Manifest, p plan.ActionPlan, baseImage []byte) (ExecutionResult, error) {
	res := ExecutionResult{}
	e.deletePhase(ctx, actor, &m, p, &res)

	if p.GenerateTotal() > 0 {
		if len(baseImage) == 0 {
			res.Manifest = m
			return res, fmt.Errorf("actor %s needs %d generations: %w", actor.ID, p.GenerateTotal(), domain.ErrBaseImageMissing)
		}
		e.generatePhase(ctx, actor, &m, p, baseImage, &res)
	}
	res.Manifest = m
	return res, nil
}

func (e *Executor) deletePhase(ctx context.Context, actor domain.Actor, m *domain.Manifest, p plan.ActionPlan, res *ExecutionResult) {
	for _, d := range p.Delete {
		idx := m.FindImage(d.Filename)
		if idx < 0 {
			e.logger.Warn().Str("actor", actor.ID).Str("file", d.Filename).Msg("balancer: planned deletion not in manifest, skipping")
			continue
		}
		entry := m.Images[idx]
		failed := false

		if entry.LocalPath != "" {
			if err := os.Remove(entry.LocalPath); err != nil {
				if os.IsNotExist(err) {
					e.logger.Debug().Str("actor", actor.ID).Str("file", d.Filename).Msg("balancer: local file already gone")
				} else {
					failed = true
					res.Failures = append(res.Failures, fmt.Sprintf("delete local %s: %v", entry.LocalPath, err))
					e.logger.Error().Err(err).Str("actor", actor.ID).Str("file", d.Filename).Msg("balancer: local delete failed")
				}
			}
		}
		if entry.S3URL != "" && e.store != nil {
			if err := e.store.Delete(ctx, e.objectKey(actor.ID, entry.Filename)); err != nil {
				failed = true
				res.Failures = append(res.Failures, fmt.Sprintf("delete s3 %s: %v", entry.Filename, err))
				e.logger.Error().Err(err).Str("actor", actor.ID).Str("file", d.Filename).Msg("balancer: s3 delete failed")
			}
		}

		if failed {
			res.FailedDeletions++
			continue
		}
		m.RemoveImage(d.Filename)
		res.Deleted++
		e.logger.Info().Str("actor", actor.ID).Str("file", d.Filename).Str("reason", d.Reason).Msg("balancer: deleted image")
	}
}

func (e *Executor) generatePhase(ctx context.Context, actor domain.Actor, m *domain.Manifest, p plan.ActionPlan, baseImage []byte, res *ExecutionResult) {
	next := NextIndex(*m)
	for _, cat := range domain.Categories() {
		needed := p.Generate[cat]
		if needed == 0 {
			continue
		}
		for _, prompt := range prompts.Select(e.rng, cat, needed) {
			asset, err := e.generator.Generate(ctx, replicate.GenerateRequest{
				Prompt:        prompt,
				BaseImage:     baseImage,
				BaseImageMIME: "image/jpeg",
				AspectRatio:   e.aspectRatio,
			})
			if err != nil {
				res.FailedGenerations++
				res.Failures = append(res.Failures, fmt.Sprintf("generate %s: %v", cat, err))
				e.logger.Error().Err(err).Str("actor", actor.ID).Str("category", string(cat)).Msg("balancer: generation failed, continuing")
				continue
			}

			filename := fmt.Sprintf("%s_%04d%s", actor.ID, next, extensionForFormat(asset.Format))
			s3URL := ""
			if e.store != nil {
				url, putErr := e.store.Put(ctx, e.objectKey(actor.ID, filename), asset.Data, asset.Format)
				if putErr != nil {
					e.logger.Warn().Err(putErr).Str("actor", actor.ID).Str("file", filename).Msg("balancer: upload failed")
				} else {
					s3URL = url
				}
			}
			localPath := ""
			if e.imagesDir != "" {
				path := filepath.Join(e.imagesDir, actor.ID, filename)
				if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
					e.logger.Warn().Err(err).Str("actor", actor.ID).Msg("balancer: ensure local image dir failed")
				} else if err := os.WriteFile(path, asset.Data, 0o644); err != nil {
					e.logger.Warn().Err(err).Str("actor", actor.ID).Str("file", filename).Msg("balancer: local copy failed")
				} else {
					localPath = path
				}
			}
			if s3URL == "" && localPath == "" {
				res.FailedGenerations++
				res.Failures = append(res.Failures, fmt.Sprintf("store %s: no location persisted", filename))
				continue
			}

			now := e.now().UTC()
			m.Images = append(m.Images, domain.ImageEntry{
				Filename:     filename,
				LocalPath:    localPath,
				S3URL:        s3URL,
				MD5Hash:      fmt.Sprintf("%x", md5.Sum(asset.Data)),
				SizeMB:       float64(len(asset.Data)) / (1024 * 1024),
				ModifiedDate: now,
				Category:     cat,
			})
			m.Generations = append(m.Generations, domain.GenerationRecord{
				ID:        uuid.NewString(),
				Timestamp: now,
				Category:  cat,
				Prompt:    prompt,
				Filenames: []string{filename},
			})
			res.Generated++
			next++
			e.logger.Info().Str("actor", actor.ID).Str("file", filename).Str("category", string(cat)).Msg("balancer: generated image")
		}
	}
}

func (e *Executor) objectKey(actorID, filename string) string {
	return fmt.Sprintf("actors/%s/images/%s", actorID, filename)
}

var numericSuffix = regexp.MustCompile(`(\d+)$`)

// NextIndex returns one past the maximum numeric filename suffix in the
// manifest, so new files never collide with existing names.
func NextIndex(m domain.Manifest) int {
	max := 0
	for _, img := range m.Images {
		stem := strings.TrimSuffix(img.Filename, filepath.Ext(img.Filename))
		match := numericSuffix.FindString(stem)
		if match == "" {
			continue
		}
		if n, err := strconv.Atoi(match); err == nil && n > max {
			max = n
		}
	}
	return max + 1
}

func extensionForFormat(format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}

