package domain

import "time"

// ImageEntry records one known training image and where it lives. At least one
// of LocalPath and S3URL must be populated; Category and QualityScore are only
// set after an evaluation pass.
type ImageEntry struct {
	Filename     string    `json:"filename"`
	LocalPath    string    `json:"local_path,omitempty"`
	S3URL        string    `json:"s3_url,omitempty"`
	MD5Hash      string    `json:"md5_hash"`
	SizeMB       float64   `json:"size_mb"`
	ModifiedDate time.Time `json:"modified_date"`
	Category     Category  `json:"category,omitempty"`
	QualityScore int       `json:"quality_score,omitempty"`
	Good         *bool     `json:"good,omitempty"`
}

// Stored reports whether the entry has at least one storage location.
func (e ImageEntry) Stored() bool {
	return e.LocalPath != "" || e.S3URL != ""
}

// Evaluated reports whether the entry has been through an evaluation pass.
func (e ImageEntry) Evaluated() bool {
	return e.Category != "" && e.QualityScore > 0
}

// GenerationRecord is the audit trail of one generation call: which prompt
// produced which files for which category.
type GenerationRecord struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Category  Category  `json:"category"`
	Prompt    string    `json:"prompt"`
	Filenames []string  `json:"filenames"`
}

// Manifest is the per-actor JSON record of known images and generations.
// Image order is insertion order and doubles as the enumeration order shared
// by the composite builder and the vision evaluator.
type Manifest struct {
	ActorID     string             `json:"actor_id"`
	Images      []ImageEntry       `json:"images"`
	Generations []GenerationRecord `json:"generations,omitempty"`
}

// NewManifest returns an empty manifest for the given actor.
func NewManifest(actorID string) Manifest {
	return Manifest{ActorID: actorID}
}

// CategoryCounts tallies evaluated images per category.
func (m Manifest) CategoryCounts() map[Category]int {
	counts := make(map[Category]int, 3)
	for _, img := range m.Images {
		if img.Category != "" {
			counts[img.Category]++
		}
	}
	return counts
}

// FindImage returns the index of the entry with the given filename, or -1.
func (m Manifest) FindImage(filename string) int {
	for i, img := range m.Images {
		if img.Filename == filename {
			return i
		}
	}
	return -1
}

// RemoveImage drops the entry with the given filename, preserving order.
func (m *Manifest) RemoveImage(filename string) bool {
	idx := m.FindImage(filename)
	if idx < 0 {
		return false
	}
	m.Images = append(m.Images[:idx], m.Images[idx+1:]...)
	return true
}
