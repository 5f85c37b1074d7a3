// Package plan computes the deletions and generations needed to move an
// actor's image set to the target category distribution. Everything here is
// pure: no I/O, no hidden state.
package plan

import (
	"fmt"
	"math"
	"sort"

	"actorset/internal/domain"
)

// Targets is the desired composition of a training set.
type Targets struct {
	// Total is the desired image count.
	Total int
	// Percent maps each category to its share in percentage points.
	Percent map[domain.Category]float64
	// TolerancePoints is how far a category's share may drift, in points.
	TolerancePoints float64
	// TotalSlack is how far the total count may drift from Total before the
	// set counts as unbalanced, in images.
	TotalSlack int
}

// DefaultTargets returns the standard 65/20/15 split over 20 images with a
// 10-point tolerance.
func DefaultTargets() Targets {
	return Targets{
		Total: 20,
		Percent: map[domain.Category]float64{
			domain.CategoryPhotorealistic: 65,
			domain.CategoryMonochrome:     20,
			domain.CategoryColor:          15,
		},
		TolerancePoints: 10,
		TotalSlack:      1,
	}
}

// TargetsFromComposition builds Targets from a string-keyed composition map,
// as loaded from environment configuration. Unknown category names are
// rejected; categories absent from the map keep their default share.
func TargetsFromComposition(total int, composition map[string]float64, tolerancePoints float64, totalSlack int) (Targets, error) {
	t := DefaultTargets()
	t.Total = total
	t.TolerancePoints = tolerancePoints
	t.TotalSlack = totalSlack
	for name, pct := range composition {
		cat, ok := domain.ParseCategory(name)
		if !ok {
			return Targets{}, fmt.Errorf("composition: unknown category %q", name)
		}
		t.Percent[cat] = pct
	}
	return t, nil
}

// TargetCount returns the per-category image count implied by the targets.
func (t Targets) TargetCount(cat domain.Category) int {
	return int(math.Round(float64(t.Total) * t.Percent[cat] / 100))
}

// ImageScore is one evaluated image as the calculator sees it. Ordinal is the
// image's position in the manifest and breaks quality-score ties.
type ImageScore struct {
	Ordinal      int
	Filename     string
	Category     domain.Category
	QualityScore int
}

// CategoryStat describes one category's current standing against its target.
type CategoryStat struct {
	Count         int     `json:"count"`
	Percent       float64 `json:"percent"`
	TargetCount   int     `json:"target_count"`
	TargetPercent float64 `json:"target_percent"`
}

// Deletion names one image selected for removal and why.
type Deletion struct {
	Filename     string          `json:"filename"`
	Ordinal      int             `json:"ordinal"`
	Category     domain.Category `json:"category"`
	QualityScore int             `json:"quality_score"`
	Reason       string          `json:"reason"`
}

// ActionPlan is the computed set of deletions and generation counts.
type ActionPlan struct {
	TotalImages int                              `json:"total_images"`
	Current     map[domain.Category]CategoryStat `json:"current"`
	IsBalanced  bool                             `json:"is_balanced"`
	Delete      []Deletion                       `json:"delete,omitempty"`
	Generate    map[domain.Category]int          `json:"generate,omitempty"`
}

// Compute builds an ActionPlan from the evaluated images. Balanced means every
// category's percentage is within TolerancePoints of its target AND the total
// count is within TotalSlack of the target total; a balanced plan carries
// empty delete and generate lists. An empty image set is never balanced.
// Deletion picks the lowest-quality images first within each over-represented
// category, ties broken by lowest ordinal, so the plan is deterministic for
// any permutation of the input.
func Compute(images []ImageScore, t Targets) ActionPlan {
	total := len(images)
	byCategory := make(map[domain.Category][]ImageScore, 3)
	for _, img := range images {
		byCategory[img.Category] = append(byCategory[img.Category], img)
	}

	current := make(map[domain.Category]CategoryStat, 3)
	balanced := total > 0 && abs(total-t.Total) <= t.TotalSlack
	for _, cat := range domain.Categories() {
		count := len(byCategory[cat])
		pct := 0.0
		if total > 0 {
			pct = float64(count) / float64(total) * 100
		}
		current[cat] = CategoryStat{
			Count:         count,
			Percent:       pct,
			TargetCount:   t.TargetCount(cat),
			TargetPercent: t.Percent[cat],
		}
		if math.Abs(pct-t.Percent[cat]) > t.TolerancePoints {
			balanced = false
		}
	}

	p := ActionPlan{TotalImages: total, Current: current, IsBalanced: balanced}
	if balanced {
		return p
	}

	for _, cat := range domain.Categories() {
		stat := current[cat]
		switch {
		case stat.Count > stat.TargetCount:
			excess := stat.Count - stat.TargetCount
			members := append([]ImageScore(nil), byCategory[cat]...)
			sort.Slice(members, func(i, j int) bool {
				if members[i].QualityScore != members[j].QualityScore {
					return members[i].QualityScore < members[j].QualityScore
				}
				return members[i].Ordinal < members[j].Ordinal
			})
			for _, img := range members[:excess] {
				p.Delete = append(p.Delete, Deletion{
					Filename:     img.Filename,
					Ordinal:      img.Ordinal,
					Category:     cat,
					QualityScore: img.QualityScore,
					Reason: fmt.Sprintf("lowest quality (score %d) in over-represented category %s",
						img.QualityScore, cat),
				})
			}
		case stat.Count < stat.TargetCount:
			if p.Generate == nil {
				p.Generate = make(map[domain.Category]int, 3)
			}
			p.Generate[cat] = stat.TargetCount - stat.Count
		}
	}
	return p
}

// GenerateTotal sums the requested generations across categories.
func (p ActionPlan) GenerateTotal() int {
	total := 0
	for _, n := range p.Generate {
		total += n
	}
	return total
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
