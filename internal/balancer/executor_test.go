package balancer

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"actorset/internal/domain"
	"actorset/internal/plan"
	"actorset/internal/providers/replicate"
)

type memStore struct {
	objects map[string][]byte
	deletes []string
	putErr  error
	delErr  error
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}}
}

func (s *memStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if s.putErr != nil {
		return "", s.putErr
	}
	s.objects[key] = append([]byte(nil), data...)
	return "https://bucket.test/" + key, nil
}

func (s *memStore) Delete(ctx context.Context, key string) error {
	if s.delErr != nil {
		return s.delErr
	}
	s.deletes = append(s.deletes, key)
	delete(s.objects, key)
	return nil
}

type stubGenerator struct {
	calls    int
	failOn   map[int]bool
	lastReqs []replicate.GenerateRequest
}

func (g *stubGenerator) Generate(ctx context.Context, req replicate.GenerateRequest) (*replicate.ImageAsset, error) {
	g.calls++
	g.lastReqs = append(g.lastReqs, req)
	if g.failOn[g.calls] {
		return nil, errors.New("provider exploded")
	}
	return &replicate.ImageAsset{
		Data:   []byte(fmt.Sprintf("image-%d", g.calls)),
		Format: "image/jpeg",
	}, nil
}

func testExecutor(t *testing.T, store *memStore, gen *stubGenerator) *Executor {
	t.Helper()
	return NewExecutor(ExecutorOptions{
		Store:     store,
		Generator: gen,
		ImagesDir: t.TempDir(),
		Rand:      rand.New(rand.NewSource(1)),
	})
}

func TestNextIndexSkipsExistingSuffixes(t *testing.T) {
	m := domain.NewManifest("a1")
	for _, name := range []string{"a1_0003.jpg", "a1_0007.png", "a1_0012.jpg", "notes.txt"} {
		m.Images = append(m.Images, domain.ImageEntry{Filename: name, LocalPath: "/x/" + name})
	}
	if got := NextIndex(m); got != 13 {
		t.Fatalf("NextIndex = %d, want 13", got)
	}
}

func TestNextIndexEmptyManifestStartsAtOne(t *testing.T) {
	if got := NextIndex(domain.NewManifest("a1")); got != 1 {
		t.Fatalf("NextIndex = %d, want 1", got)
	}
}

func TestExecuteGeneratesSequentialFilenames(t *testing.T) {
	store := newMemStore()
	gen := &stubGenerator{}
	exec := testExecutor(t, store, gen)

	m := domain.NewManifest("a1")
	m.Images = append(m.Images,
		domain.ImageEntry{Filename: "a1_0003.jpg", LocalPath: "/x/a1_0003.jpg", Category: domain.CategoryPhotorealistic, QualityScore: 8},
	)
	p := plan.ActionPlan{
		Generate: map[domain.Category]int{domain.CategoryMonochrome: 3},
	}
	res, err := exec.Execute(context.Background(), domain.Actor{ID: "a1"}, m, p, []byte("base"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Generated != 3 {
		t.Fatalf("generated = %d, want 3", res.Generated)
	}
	wantNames := []string{"a1_0004.jpg", "a1_0005.jpg", "a1_0006.jpg"}
	for i, want := range wantNames {
		got := res.Manifest.Images[1+i].Filename
		if got != want {
			t.Fatalf("image %d filename = %q, want %q", i, got, want)
		}
	}
	for _, want := range wantNames {
		if _, ok := store.objects["actors/a1/images/"+want]; !ok {
			t.Fatalf("object %s not uploaded", want)
		}
	}
}

func TestExecutePartialGenerationFailure(t *testing.T) {
	store := newMemStore()
	gen := &stubGenerator{failOn: map[int]bool{2: true}}
	exec := testExecutor(t, store, gen)

	p := plan.ActionPlan{
		Generate: map[domain.Category]int{domain.CategoryColor: 3},
	}
	res, err := exec.Execute(context.Background(), domain.Actor{ID: "a2"}, domain.NewManifest("a2"), p, []byte("base"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Generated != 2 || res.FailedGenerations != 1 {
		t.Fatalf("generated/failed = %d/%d, want 2/1", res.Generated, res.FailedGenerations)
	}
	if len(res.Manifest.Images) != 2 {
		t.Fatalf("manifest images = %d, want 2 (only successes recorded)", len(res.Manifest.Images))
	}
	// Successful files keep a dense numbering with no gap for the failure.
	if res.Manifest.Images[0].Filename != "a2_0001.jpg" || res.Manifest.Images[1].Filename != "a2_0002.jpg" {
		t.Fatalf("filenames = %q, %q", res.Manifest.Images[0].Filename, res.Manifest.Images[1].Filename)
	}
	if len(res.Failures) != 1 {
		t.Fatalf("failures = %v, want one entry", res.Failures)
	}
}

func TestExecuteDeletionTreatsMissingFileAsDeleted(t *testing.T) {
	store := newMemStore()
	exec := testExecutor(t, store, &stubGenerator{})

	m := domain.NewManifest("a3")
	m.Images = append(m.Images, domain.ImageEntry{
		Filename:  "a3_0001.jpg",
		LocalPath: filepath.Join(t.TempDir(), "definitely-missing.jpg"),
		S3URL:     "https://bucket.test/actors/a3/images/a3_0001.jpg",
	})
	p := plan.ActionPlan{
		Delete: []plan.Deletion{{Filename: "a3_0001.jpg", Category: domain.CategoryPhotorealistic}},
	}
	res, err := exec.Execute(context.Background(), domain.Actor{ID: "a3"}, m, p, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Deleted != 1 || res.FailedDeletions != 0 {
		t.Fatalf("deleted/failed = %d/%d, want 1/0", res.Deleted, res.FailedDeletions)
	}
	if len(res.Manifest.Images) != 0 {
		t.Fatalf("manifest still has %d images", len(res.Manifest.Images))
	}
	if len(store.deletes) != 1 || store.deletes[0] != "actors/a3/images/a3_0001.jpg" {
		t.Fatalf("s3 deletes = %v", store.deletes)
	}
}

func TestExecuteDeletionFailureDoesNotAbortRest(t *testing.T) {
	store := newMemStore()
	store.delErr = errors.New("s3 down")
	exec := testExecutor(t, store, &stubGenerator{})

	dir := t.TempDir()
	localOnly := filepath.Join(dir, "a4_0002.jpg")
	if err := os.WriteFile(localOnly, []byte("img"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	m := domain.NewManifest("a4")
	m.Images = append(m.Images,
		domain.ImageEntry{Filename: "a4_0001.jpg", S3URL: "https://bucket.test/actors/a4/images/a4_0001.jpg"},
		domain.ImageEntry{Filename: "a4_0002.jpg", LocalPath: localOnly},
	)
	p := plan.ActionPlan{
		Delete: []plan.Deletion{
			{Filename: "a4_0001.jpg", Category: domain.CategoryPhotorealistic},
			{Filename: "a4_0002.jpg", Category: domain.CategoryPhotorealistic},
		},
	}
	res, err := exec.Execute(context.Background(), domain.Actor{ID: "a4"}, m, p, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Deleted != 1 || res.FailedDeletions != 1 {
		t.Fatalf("deleted/failed = %d/%d, want 1/1", res.Deleted, res.FailedDeletions)
	}
	// The failed entry stays in the manifest; the succeeded one is gone.
	if res.Manifest.FindImage("a4_0001.jpg") < 0 {
		t.Fatal("failed deletion should keep its manifest entry")
	}
	if res.Manifest.FindImage("a4_0002.jpg") >= 0 {
		t.Fatal("successful deletion should remove its manifest entry")
	}
	if _, statErr := os.Stat(localOnly); !os.IsNotExist(statErr) {
		t.Fatal("local file should be removed")
	}
}

func TestExecuteMissingBaseImageFailsGenerationOnly(t *testing.T) {
	store := newMemStore()
	exec := testExecutor(t, store, &stubGenerator{})

	dir := t.TempDir()
	local := filepath.Join(dir, "a5_0001.jpg")
	if err := os.WriteFile(local, []byte("img"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	m := domain.NewManifest("a5")
	m.Images = append(m.Images, domain.ImageEntry{Filename: "a5_0001.jpg", LocalPath: local})

	p := plan.ActionPlan{
		Delete:   []plan.Deletion{{Filename: "a5_0001.jpg", Category: domain.CategoryPhotorealistic}},
		Generate: map[domain.Category]int{domain.CategoryPhotorealistic: 2},
	}
	res, err := exec.Execute(context.Background(), domain.Actor{ID: "a5"}, m, p, nil)
	if !errors.Is(err, domain.ErrBaseImageMissing) {
		t.Fatalf("err = %v, want domain.ErrBaseImageMissing", err)
	}
	// Deletions are applied and not rolled back.
	if res.Deleted != 1 {
		t.Fatalf("deleted = %d, want 1", res.Deleted)
	}
	if res.Generated != 0 {
		t.Fatalf("generated = %d, want 0", res.Generated)
	}
}

func TestExecutePromptsDrawnWithoutReplacement(t *testing.T) {
	store := newMemStore()
	gen := &stubGenerator{}
	exec := testExecutor(t, store, gen)

	p := plan.ActionPlan{
		Generate: map[domain.Category]int{domain.CategoryColor: 9},
	}
	_, err := exec.Execute(context.Background(), domain.Actor{ID: "a6"}, domain.NewManifest("a6"), p, []byte("base"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	seen := map[string]bool{}
	for _, req := range gen.lastReqs {
		if seen[req.Prompt] {
			t.Fatalf("prompt reused: %q", req.Prompt)
		}
		seen[req.Prompt] = true
	}
	if len(seen) != 9 {
		t.Fatalf("unique prompts = %d, want 9", len(seen))
	}
}

func TestExecuteRecordsGenerationAudit(t *testing.T) {
	store := newMemStore()
	exec := testExecutor(t, store, &stubGenerator{})

	p := plan.ActionPlan{Generate: map[domain.Category]int{domain.CategoryMonochrome: 1}}
	res, err := exec.Execute(context.Background(), domain.Actor{ID: "a7"}, domain.NewManifest("a7"), p, []byte("base"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(res.Manifest.Generations) != 1 {
		t.Fatalf("generations = %d, want 1", len(res.Manifest.Generations))
	}
	rec := res.Manifest.Generations[0]
	if rec.Category != domain.CategoryMonochrome || rec.Prompt == "" || len(rec.Filenames) != 1 {
		t.Fatalf("unexpected record: %#v", rec)
	}
	if rec.Filenames[0] != res.Manifest.Images[0].Filename {
		t.Fatalf("record filename %q != manifest filename %q", rec.Filenames[0], res.Manifest.Images[0].Filename)
	}
}
