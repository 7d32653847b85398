package stages

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pressbound/bindery/internal/home"
)

// manualModule is one entry of a user-authored modules.yaml.
type manualModule struct {
	Title     string `yaml:"title"`
	StartPage int    `yaml:"start_page"`
}

// manualStrategy reads a user-authored module definition file from the
// book's directory. A missing file means "not applicable"; a file that
// exists but cannot be used is a permanent error, since retrying will
// not fix the user's input.
type manualStrategy struct {
	home *home.Dir
	book string
}

func (manualStrategy) Name() string { return MethodManual }

func (s manualStrategy) DetectBoundaries(_ context.Context, pages []Page) ([]Boundary, error) {
	path := s.home.ModuleDefinitionPath(s.book)
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read module definition: %w", err)
	}

	var modules []manualModule
	if err := yaml.Unmarshal(raw, &modules); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidModuleDefinition, err)
	}
	if len(modules) == 0 {
		return nil, fmt.Errorf("%w: file is empty", ErrInvalidModuleDefinition)
	}

	lastPage := 0
	if len(pages) > 0 {
		lastPage = pages[len(pages)-1].Number
	}

	var boundaries []Boundary
	prev := 0
	for i, m := range modules {
		if m.StartPage < 1 || m.StartPage > lastPage {
			return nil, fmt.Errorf("%w: entry %d start_page %d out of range 1..%d",
				ErrInvalidModuleDefinition, i+1, m.StartPage, lastPage)
		}
		if m.StartPage <= prev {
			return nil, fmt.Errorf("%w: entry %d start_page %d not ascending",
				ErrInvalidModuleDefinition, i+1, m.StartPage)
		}
		prev = m.StartPage
		boundaries = append(boundaries, Boundary{Page: m.StartPage, Title: m.Title})
	}
	return boundaries, nil
}
