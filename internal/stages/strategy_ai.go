package stages

import (
	"context"
	"fmt"
	"strings"

	"github.com/pressbound/bindery/internal/providers"
)

// segmentationSchema is the JSON schema for AI-assisted boundary
// detection output.
var segmentationSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"boundaries": map[string]any{
			"type":        "array",
			"description": "Module start points in ascending page order",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"page": map[string]any{
						"type":        "integer",
						"description": "Page number where the module starts (1-indexed)",
					},
					"title": map[string]any{
						"type":        "string",
						"description": "Module title, empty string if none is apparent",
					},
				},
				"required":             []string{"page", "title"},
				"additionalProperties": false,
			},
		},
	},
	"required":             []string{"boundaries"},
	"additionalProperties": false,
}

const segmentationSystemPrompt = `You are a book structure analyst. You will be given per-page previews of a book's text and must identify where its natural modules (chapters, parts, lessons) begin.

Rules:
- Return boundaries in ascending page order.
- A boundary's page is where the module's first content appears.
- Prefer fewer, larger modules over many tiny ones.
- If the book has no detectable structure, return an empty list.`

// aiStrategy asks a text-generation provider to find module
// boundaries. Not applicable (yields nothing) when no provider is
// configured. Provider failures propagate so the orchestrator can
// apply its retry policy.
type aiStrategy struct {
	gen   providers.TextGenerator
	model string
}

func (aiStrategy) Name() string { return MethodAIAssisted }

func (s aiStrategy) DetectBoundaries(ctx context.Context, pages []Page) ([]Boundary, error) {
	if s.gen == nil || len(pages) == 0 {
		return nil, nil
	}

	var result struct {
		Boundaries []Boundary `json:"boundaries"`
	}
	req := &providers.TextRequest{
		System: segmentationSystemPrompt,
		Prompt: buildSegmentationPrompt(pages),
		Model:  s.model,
	}
	if err := generateStructured(ctx, s.gen, req, segmentationSchema, &result); err != nil {
		return nil, err
	}

	lastPage := pages[len(pages)-1].Number
	var boundaries []Boundary
	for _, b := range result.Boundaries {
		if b.Page < 1 || b.Page > lastPage {
			continue
		}
		boundaries = append(boundaries, b)
	}
	return dedupeBoundaries(boundaries), nil
}

// previewChars bounds how much of each page goes into the prompt.
const previewChars = 200

func buildSegmentationPrompt(pages []Page) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("The book has %d pages. Per-page previews:\n", len(pages)))
	for _, page := range pages {
		preview := strings.TrimSpace(page.Text)
		preview = strings.ReplaceAll(preview, "\n", " ")
		if len(preview) > previewChars {
			preview = preview[:previewChars] + "..."
		}
		sb.WriteString(fmt.Sprintf("\n[page %d] %s", page.Number, preview))
	}
	sb.WriteString("\n\nIdentify the module boundaries.")
	return sb.String()
}
