// Package catalog holds the static model and style tables and the small
// request-shaping rules that depend on them.
package catalog

import (
	"strings"
)

// MaxOutputs is the most images a single generation may request.
const MaxOutputs = 4

// DefaultAspectRatio is used when a request names no recognised size.
const DefaultAspectRatio = "1:1"

// Model is one generation model exposed through /v1/models.
type Model struct {
	ID      string `json:"id" yaml:"id" toml:"id"`
	Premium bool   `json:"premium,omitempty" yaml:"premium" toml:"premium"`
	NSFW    bool   `json:"is_nsfw,omitempty" yaml:"nsfw" toml:"nsfw"`
}

// Style is a named prompt suffix preset.
type Style struct {
	ID     string `json:"id" yaml:"id" toml:"id"`
	Name   string `json:"name" yaml:"name" toml:"name"`
	Suffix string `json:"description" yaml:"suffix" toml:"suffix"`
	NSFW   bool   `json:"is_nsfw,omitempty" yaml:"nsfw" toml:"nsfw"`
}

// Catalog is an immutable set of models and styles. Build one with Default or
// LoadFile and share it freely.
type Catalog struct {
	defaultModel string
	models       []Model
	styles       []Style
	modelIndex   map[string]Model
	styleIndex   map[string]Style
}

// New builds a catalog. An empty defaultModel falls back to the first model.
func New(defaultModel string, models []Model, styles []Style) *Catalog {
	c := &Catalog{
		models:     append([]Model(nil), models...),
		styles:     make([]Style, 0, len(styles)),
		modelIndex: make(map[string]Model, len(models)),
		styleIndex: make(map[string]Style, len(styles)),
	}
	for _, m := range c.models {
		c.modelIndex[m.ID] = m
	}
	for _, s := range styles {
		if s.Name == "" {
			s.Name = strings.Replace(s.ID, "-", " ", 1)
		}
		c.styles = append(c.styles, s)
		c.styleIndex[s.ID] = s
	}
	c.defaultModel = defaultModel
	if c.defaultModel == "" && len(c.models) > 0 {
		c.defaultModel = c.models[0].ID
	}
	return c
}

// Default returns the built-in catalog.
func Default() *Catalog {
	return New("flux-schnell",
		[]Model{
			{ID: "flux-schnell"},
			{ID: "flux-1.1-pro", Premium: true},
			{ID: "flux-kontext-pro"},
		},
		[]Style{
			{ID: "realistic", Suffix: "photorealistic, high detail, 8K, professional photography"},
			{ID: "anime", Suffix: "anime style, manga art, vibrant colors, Japanese animation"},
			{ID: "cyberpunk", Suffix: "cyberpunk aesthetic, neon lights, futuristic, dystopian"},
			{ID: "oil-painting", Suffix: "oil painting style, classical art, textured brushstrokes"},
			{ID: "watercolor", Suffix: "watercolor painting, soft colors, artistic, flowing"},
			{ID: "3d-render", Suffix: "3D render, Octane render, Unreal Engine, high quality CGI"},
			{ID: "sketch", Suffix: "pencil sketch, hand-drawn, black and white, artistic"},
			{ID: "fantasy", Suffix: "fantasy art, magical, epic, detailed illustration"},
			{ID: "minimalist", Suffix: "minimalist design, simple, clean, modern aesthetic"},
			{ID: "nsfw", Suffix: "artistic nudity, mature content, sensual, adult themes", NSFW: true},
		},
	)
}

// DefaultModel is the model used when a request names none.
func (c *Catalog) DefaultModel() string { return c.defaultModel }

// Models returns the models in declaration order.
func (c *Catalog) Models() []Model { return append([]Model(nil), c.models...) }

// Styles returns the styles in declaration order.
func (c *Catalog) Styles() []Style { return append([]Style(nil), c.styles...) }

// Model looks up a model by id.
func (c *Catalog) Model(id string) (Model, bool) {
	m, ok := c.modelIndex[id]
	return m, ok
}

// Style looks up a style by id.
func (c *Catalog) Style(id string) (Style, bool) {
	s, ok := c.styleIndex[id]
	return s, ok
}

// EnhancePrompt appends the suffix of a known style. Unknown or empty styles
// leave the prompt untouched.
func (c *Catalog) EnhancePrompt(prompt, style string) string {
	if s, ok := c.Style(style); ok && style != "" {
		return prompt + ", " + s.Suffix
	}
	return prompt
}

// CreditCost is the number of upstream credits a generation consumes:
// one per image, two per image on premium models.
func (c *Catalog) CreditCost(model string, outputs int) int {
	if m, ok := c.Model(model); ok && m.Premium {
		return 2 * outputs
	}
	return outputs
}

// ClampOutputs bounds a requested image count to [1, MaxOutputs].
func ClampOutputs(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxOutputs {
		return MaxOutputs
	}
	return n
}

// AspectRatioForSize maps an OpenAI image size to an upstream aspect ratio.
func AspectRatioForSize(size string) string {
	switch size {
	case "1024x1792":
		return "9:16"
	case "1792x1024":
		return "16:9"
	default:
		return DefaultAspectRatio
	}
}

// NormalizeAspectRatio accepts either an aspect token ("16:9") or an OpenAI
// size ("1792x1024") and returns an aspect token.
func NormalizeAspectRatio(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return DefaultAspectRatio
	}
	if strings.Contains(v, ":") {
		return v
	}
	return AspectRatioForSize(v)
}
