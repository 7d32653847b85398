package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/pressbound/bindery/internal/artifacts"
	"github.com/pressbound/bindery/internal/providers"
)

// AudioGenerationService turns each module's vocabulary into a spoken
// study track via a speech-synthesis provider.
type AudioGenerationService struct {
	store  artifacts.Store
	speech providers.SpeechSynthesizer
	voice  string
	format string
	logger *slog.Logger
}

// NewAudioGeneration creates the audio generation stage service.
// Format defaults to mp3.
func NewAudioGeneration(store artifacts.Store, speech providers.SpeechSynthesizer, voice, format string, logger *slog.Logger) *AudioGenerationService {
	if logger == nil {
		logger = slog.Default()
	}
	if format == "" {
		format = "mp3"
	}
	return &AudioGenerationService{store: store, speech: speech, voice: voice, format: format, logger: logger}
}

// Name returns the stage identifier.
func (s *AudioGenerationService) Name() string { return StageAudioGeneration }

// Run reads the vocabulary artifact, synthesizes one audio file per
// module, and writes a manifest. Fails with ErrNoVocabularyFound when
// the vocabulary artifact has no items.
func (s *AudioGenerationService) Run(ctx context.Context, bookID string) (*Outcome, error) {
	if s.speech == nil {
		return nil, &providers.AuthError{Provider: "none", Message: "no speech synthesizer configured"}
	}
	payload, err := s.store.Read(ctx, artifacts.NewKey(bookID, StageVocabulary, ArtifactVocabulary))
	if err != nil {
		return nil, fmt.Errorf("failed to read vocabulary artifact: %w", err)
	}
	var vocab VocabularyList
	if err := json.Unmarshal(payload, &vocab); err != nil {
		return nil, fmt.Errorf("failed to decode vocabulary artifact: %w", err)
	}
	if len(vocab.Items) == 0 {
		return nil, fmt.Errorf("%w: book %s", ErrNoVocabularyFound, bookID)
	}

	byModule := make(map[int][]VocabularyItem)
	for _, item := range vocab.Items {
		byModule[item.ModuleIndex] = append(byModule[item.ModuleIndex], item)
	}
	moduleIndexes := make([]int, 0, len(byModule))
	for idx := range byModule {
		moduleIndexes = append(moduleIndexes, idx)
	}
	sort.Ints(moduleIndexes)

	manifest := AudioManifest{BookID: bookID}
	for _, idx := range moduleIndexes {
		items := byModule[idx]
		result, err := s.speech.Synthesize(ctx, &providers.SpeechRequest{
			Text:   buildVocabularyScript(items),
			Voice:  s.voice,
			Format: s.format,
		})
		if err != nil {
			return nil, fmt.Errorf("module %d: %w", idx, err)
		}

		name := fmt.Sprintf("module_%03d.%s", idx, result.Format)
		key := artifacts.NewKey(bookID, StageAudioGeneration, name)
		if err := s.store.Write(ctx, key, result.Audio); err != nil {
			return nil, fmt.Errorf("failed to write audio artifact: %w", err)
		}

		manifest.Files = append(manifest.Files, AudioFile{
			ModuleIndex: idx,
			Name:        name,
			Format:      result.Format,
			ItemCount:   len(items),
		})
	}

	manifestPayload, err := json.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize audio manifest: %w", err)
	}
	key := artifacts.NewKey(bookID, StageAudioGeneration, ArtifactAudioManifest)
	if err := s.store.Write(ctx, key, manifestPayload); err != nil {
		return nil, fmt.Errorf("failed to write audio manifest: %w", err)
	}

	s.logger.Info("audio generation complete",
		"book_id", bookID,
		"files", len(manifest.Files),
		"provider", s.speech.Name())

	return &Outcome{Method: s.speech.Name(), ArtifactRef: key.String()}, nil
}

// buildVocabularyScript renders vocabulary items as a narration
// script: term, pause, definition, optional example.
func buildVocabularyScript(items []VocabularyItem) string {
	var sb strings.Builder
	for _, item := range items {
		sb.WriteString(item.Term)
		sb.WriteString(". ")
		sb.WriteString(strings.TrimRight(item.Definition, "."))
		sb.WriteString(". ")
		if item.Example != "" {
			sb.WriteString("For example: ")
			sb.WriteString(strings.TrimRight(item.Example, "."))
			sb.WriteString(". ")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
