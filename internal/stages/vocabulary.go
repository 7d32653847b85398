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

var vocabularySchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"items": map[string]any{
			"type":        "array",
			"description": "Vocabulary worth teaching from this module",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"term": map[string]any{
						"type":        "string",
						"description": "The word or phrase, in its dictionary form",
					},
					"definition": map[string]any{
						"type":        "string",
						"description": "Plain-language definition as used in this module",
					},
					"example": map[string]any{
						"type":        "string",
						"description": "A short sentence from or inspired by the module. Empty string if none fits.",
					},
				},
				"required":             []string{"term", "definition", "example"},
				"additionalProperties": false,
			},
		},
	},
	"required":             []string{"items"},
	"additionalProperties": false,
}

const vocabularySystemPrompt = `You are a vocabulary curator for readers. You will be given one module of a book and must extract the terms a reader is most likely to need defined.

Rules:
- 5 to 20 items per module; skip trivial everyday words.
- Define terms as the module uses them, not their most common sense.
- Dictionary form for terms: singular nouns, infinitive verbs.
- Definitions are one sentence, plain language.`

// VocabularyService extracts teachable vocabulary from each module.
type VocabularyService struct {
	store  artifacts.Store
	gen    providers.TextGenerator
	model  string
	logger *slog.Logger
}

// NewVocabulary creates the vocabulary extraction stage service.
func NewVocabulary(store artifacts.Store, gen providers.TextGenerator, model string, logger *slog.Logger) *VocabularyService {
	if logger == nil {
		logger = slog.Default()
	}
	return &VocabularyService{store: store, gen: gen, model: model, logger: logger}
}

// Name returns the stage identifier.
func (s *VocabularyService) Name() string { return StageVocabulary }

// Run extracts vocabulary from every module and writes the vocabulary
// artifact.
func (s *VocabularyService) Run(ctx context.Context, bookID string) (*Outcome, error) {
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

	vocab := VocabularyList{BookID: bookID}
	for _, module := range list.Modules {
		text := moduleText(doc, module, maxModulePromptChars)
		if strings.TrimSpace(text) == "" {
			continue
		}

		var result struct {
			Items []VocabularyItem `json:"items"`
		}
		req := &providers.TextRequest{
			System: vocabularySystemPrompt,
			Prompt: buildModulePrompt(module, text, "Extract the vocabulary a reader should learn from this module."),
			Model:  s.model,
		}
		if err := generateStructured(ctx, s.gen, req, vocabularySchema, &result); err != nil {
			return nil, fmt.Errorf("module %d: %w", module.Index, err)
		}

		for _, item := range result.Items {
			item.ModuleIndex = module.Index
			vocab.Items = append(vocab.Items, item)
		}
	}

	payload, err := json.Marshal(vocab)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize vocabulary: %w", err)
	}
	key := artifacts.NewKey(bookID, StageVocabulary, ArtifactVocabulary)
	if err := s.store.Write(ctx, key, payload); err != nil {
		return nil, fmt.Errorf("failed to write vocabulary artifact: %w", err)
	}

	s.logger.Info("vocabulary extraction complete",
		"book_id", bookID,
		"items", len(vocab.Items),
		"provider", s.gen.Name())

	return &Outcome{Method: s.gen.Name(), ArtifactRef: key.String()}, nil
}
