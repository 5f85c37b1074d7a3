// Package prompts holds the fixed prompt bank used when generating
// replacement training images, partitioned by style category.
package prompts

import (
	"math/rand"

	"actorset/internal/domain"
)

var bank = map[domain.Category][]string{
	domain.CategoryPhotorealistic: {
		"professional headshot, soft studio lighting, neutral gray background, sharp focus on the face",
		"candid street portrait, golden hour sunlight, shallow depth of field, natural skin texture",
		"three-quarter portrait by a window, diffused daylight, relaxed expression",
		"outdoor portrait in a park, overcast light, looking slightly off camera",
		"close-up portrait, ring light catchlights, clean white background",
		"editorial portrait against a textured concrete wall, dramatic side lighting",
		"environmental portrait in a coffee shop, warm ambient light, natural smile",
		"full-body photo on a city sidewalk, midday light, casual stance",
		"portrait at dusk with bokeh city lights behind, crisp facial detail",
		"studio portrait with a single softbox, dark backdrop, subtle rim light",
		"seated portrait on wooden stairs, soft morning light, hands visible",
		"beach portrait, late afternoon sun, wind-blown hair, natural colors",
		"indoor portrait under warm tungsten lamps, cozy setting, gentle shadows",
		"profile portrait against a plain pastel wall, even daylight",
		"walking photo on a tree-lined avenue, autumn colors, photojournalistic framing",
	},
	domain.CategoryMonochrome: {
		"black and white ink illustration, bold linework, high contrast, manga style",
		"charcoal sketch portrait, rough shading, visible strokes, off-white paper",
		"monochrome pencil drawing, fine cross-hatching, detailed facial features",
		"sumi-e brush painting, minimal strokes, expressive face",
		"black and white comic panel style, halftone shading, dynamic angle",
		"graphite study of the face, soft gradients, academic drawing style",
		"high-contrast noir illustration, heavy shadows, dramatic lighting",
		"etching-style portrait, dense parallel hatching, vintage print look",
		"monochrome marker sketch, loose confident lines, urban sketchbook style",
		"black and white woodcut print style, carved texture, strong silhouettes",
		"ink wash portrait, layered gray tones, wet brush texture",
	},
	domain.CategoryColor: {
		"vibrant anime illustration, cel shading, clean outlines, detailed eyes",
		"watercolor portrait, soft color bleeds, loose edges, paper texture",
		"digital painting, painterly brushwork, warm color palette, stylized features",
		"comic book illustration, bold colors, dynamic inked outlines",
		"flat vector art portrait, geometric shapes, limited bright palette",
		"gouache-style painting, matte colors, storybook illustration feel",
		"semi-realistic 3D render, soft global illumination, stylized proportions",
		"pop-art portrait, saturated complementary colors, screen-print texture",
		"pastel chalk illustration, soft blended hues, dreamy atmosphere",
	},
}

// ForCategory returns a copy of the category's prompt list.
func ForCategory(cat domain.Category) []string {
	return append([]string(nil), bank[cat]...)
}

// Size returns the bank size for a category.
func Size(cat domain.Category) int {
	return len(bank[cat])
}

// Select draws n prompts from the category's bank at random without
// replacement. When n exceeds the bank size the whole bank is returned in a
// random order. The caller supplies the source so batch runs stay seedable in
// tests.
func Select(rng *rand.Rand, cat domain.Category, n int) []string {
	pool := ForCategory(cat)
	rng.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})
	if n > len(pool) {
		n = len(pool)
	}
	if n < 0 {
		n = 0
	}
	return pool[:n]
}
