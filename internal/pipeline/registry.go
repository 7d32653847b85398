// Package pipeline drives jobs through their ordered stage sequence:
// dequeue, execute stages with retry, persist results, emit progress.
package pipeline

import (
	"fmt"

	"github.com/pressbound/bindery/internal/stages"
)

// DefaultStageSets maps each job type to its ordered stage names.
// Not every job type runs all five stages.
var DefaultStageSets = map[string][]string{
	"full_pipeline": {
		stages.StageExtraction,
		stages.StageSegmentation,
		stages.StageTopicAnalysis,
		stages.StageVocabulary,
		stages.StageAudioGeneration,
	},
	"text_only": {
		stages.StageExtraction,
		stages.StageSegmentation,
		stages.StageTopicAnalysis,
		stages.StageVocabulary,
	},
	"audio_only": {
		stages.StageAudioGeneration,
	},
}

// Registry resolves a job type into its ordered stage sequence.
type Registry struct {
	stages    map[string]stages.Stage
	stageSets map[string][]string
}

// NewRegistry builds a registry from stage implementations and a
// job-type → stage-name mapping. Every referenced stage must be
// registered. Pass nil stageSets to use DefaultStageSets.
func NewRegistry(stageList []stages.Stage, stageSets map[string][]string) (*Registry, error) {
	if stageSets == nil {
		stageSets = DefaultStageSets
	}

	byName := make(map[string]stages.Stage, len(stageList))
	for _, st := range stageList {
		if _, dup := byName[st.Name()]; dup {
			return nil, fmt.Errorf("duplicate stage: %s", st.Name())
		}
		byName[st.Name()] = st
	}

	for jobType, names := range stageSets {
		if len(names) == 0 {
			return nil, fmt.Errorf("job type %s has no stages", jobType)
		}
		for _, name := range names {
			if _, ok := byName[name]; !ok {
				return nil, fmt.Errorf("job type %s references unknown stage %s", jobType, name)
			}
		}
	}

	return &Registry{stages: byName, stageSets: stageSets}, nil
}

// StagesFor returns the ordered stage sequence for a job type.
func (r *Registry) StagesFor(jobType string) ([]stages.Stage, error) {
	names, ok := r.stageSets[jobType]
	if !ok {
		return nil, fmt.Errorf("unknown job type: %q", jobType)
	}
	ordered := make([]stages.Stage, len(names))
	for i, name := range names {
		ordered[i] = r.stages[name]
	}
	return ordered, nil
}

// JobTypes returns the job types the registry knows.
func (r *Registry) JobTypes() []string {
	types := make([]string, 0, len(r.stageSets))
	for jobType := range r.stageSets {
		types = append(types, jobType)
	}
	return types
}
