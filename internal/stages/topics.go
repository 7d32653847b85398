package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pressbound/bindery/internal/artifacts"
	"github.com/pressbound/bindery/internal/providers"
)

// maxModulePromptChars bounds how much module text goes into one
// analysis prompt.
const maxModulePromptChars = 24000

var topicsSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"topics": map[string]any{
			"type":        "array",
			"description": "Main themes of the module, most important first",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name": map[string]any{
						"type":        "string",
						"description": "Short topic name (2-6 words)",
					},
					"summary": map[string]any{
						"type":        "string",
						"description": "One or two sentences describing the topic",
					},
					"keywords": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "Key terms associated with the topic",
					},
				},
				"required":             []string{"name", "summary", "keywords"},
				"additionalProperties": false,
			},
		},
	},
	"required":             []string{"topics"},
	"additionalProperties": false,
}

const topicsSystemPrompt = `You are a content analyst. You will be given one module of a book and must identify its main topics.

Rules:
- 3 to 8 topics per module, most important first.
- Topic names are short noun phrases, not sentences.
- Summaries describe what the module says about the topic, not generic definitions.
- Keywords are terms a reader would search for.`

// TopicAnalysisService identifies the main topics of each module.
type TopicAnalysisService struct {
	store  artifacts.Store
	gen    providers.TextGenerator
	model  string
	logger *slog.Logger
}

// NewTopicAnalysis creates the topic analysis stage service.
func NewTopicAnalysis(store artifacts.Store, gen providers.TextGenerator, model string, logger *slog.Logger) *TopicAnalysisService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TopicAnalysisService{store: store, gen: gen, model: model, logger: logger}
}

// Name returns the stage identifier.
func (s *TopicAnalysisService) Name() string { return StageTopicAnalysis }

// Run analyzes every module and writes the topics artifact.
func (s *TopicAnalysisService) Run(ctx context.Context, bookID string) (*Outcome, error) {
	if s.gen == nil {
		return nil, &providers.AuthError{Provider: "none", Message: "no text generator configured"}
	}
	doc, err := loadDocument(ctx, s.store, bookID)
	if err != nil {
		return nil, err
	}
	list, err := loadModules(ctx, s.store, bookID)
	if err != nil {
		return nil, err
	}

	report := TopicReport{BookID: bookID}
	for _, module := range list.Modules {
		text := moduleText(doc, module, maxModulePromptChars)
		if strings.TrimSpace(text) == "" {
			report.Modules = append(report.Modules, ModuleTopics{ModuleIndex: module.Index})
			continue
		}

		var result struct {
			Topics []Topic `json:"topics"`
		}
		req := &providers.TextRequest{
			System: topicsSystemPrompt,
			Prompt: buildModulePrompt(module, text, "Identify the main topics of this module."),
			Model:  s.model,
		}
		if err := generateStructured(ctx, s.gen, req, topicsSchema, &result); err != nil {
			return nil, fmt.Errorf("module %d: %w", module.Index, err)
		}

		report.Modules = append(report.Modules, ModuleTopics{
			ModuleIndex: module.Index,
			Topics:      result.Topics,
		})
	}

	payload, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize topics: %w", err)
	}
	key := artifacts.NewKey(bookID, StageTopicAnalysis, ArtifactTopics)
	if err := s.store.Write(ctx, key, payload); err != nil {
		return nil, fmt.Errorf("failed to write topics artifact: %w", err)
	}

	s.logger.Info("topic analysis complete",
		"book_id", bookID,
		"modules", len(report.Modules),
		"provider", s.gen.Name())

	return &Outcome{Method: s.gen.Name(), ArtifactRef: key.String()}, nil
}

func buildModulePrompt(m Module, text, task string) string {
	title := m.Title
	if title == "" {
		title = fmt.Sprintf("Module %d", m.Index)
	}
	return fmt.Sprintf(`<module index=%q title=%q pages="%d-%d">
%s
</module>

%s`, fmt.Sprint(m.Index), title, m.StartPage, m.EndPage, text, task)
}
