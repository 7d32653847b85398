// Package stages implements the pipeline stage services: extraction,
// segmentation, topic analysis, vocabulary extraction, and audio
// generation. Each stage consumes the prior stage's artifact, calls a
// provider where needed, and writes its own artifact. Stages never
// retry internally; retry policy lives in the orchestrator.
package stages

import "context"

// Stage names in pipeline order.
const (
	StageExtraction      = "extraction"
	StageSegmentation    = "segmentation"
	StageTopicAnalysis   = "topic_analysis"
	StageVocabulary      = "vocabulary"
	StageAudioGeneration = "audio_generation"
)

// Artifact names written by each stage.
const (
	ArtifactText          = "text"
	ArtifactModules       = "modules"
	ArtifactTopics        = "topics"
	ArtifactVocabulary    = "vocabulary"
	ArtifactAudioManifest = "manifest"
)

// Outcome describes a successful stage execution: which method or
// provider path produced the result, and where the output lives.
type Outcome struct {
	Method      string
	ArtifactRef string
}

// Stage is one ordered step of the pipeline.
type Stage interface {
	// Name returns the stage identifier (e.g., "extraction").
	Name() string

	// Run executes the stage for one book. Preconditions are validated
	// here; provider failures propagate with their taxonomy intact.
	Run(ctx context.Context, bookID string) (*Outcome, error)
}
