package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/pressbound/bindery/internal/artifacts"
	"github.com/pressbound/bindery/internal/home"
	"github.com/pressbound/bindery/internal/providers"
)

// SegmentationConfig tunes the strategy chain.
type SegmentationConfig struct {
	// Generator enables the AI-assisted strategy when set.
	Generator providers.TextGenerator
	// Model overrides the generator's default model.
	Model string
	// FixedPageSize enables the fixed_pages strategy when positive.
	FixedPageSize int
}

// SegmentationService splits extracted text into modules by trying
// each strategy in StrategyOrder until one yields boundaries.
type SegmentationService struct {
	store      artifacts.Store
	strategies []SegmentationStrategy
	logger     *slog.Logger
}

// NewSegmentation creates the segmentation stage service with the
// default strategy chain.
func NewSegmentation(homeDir *home.Dir, store artifacts.Store, cfg SegmentationConfig, logger *slog.Logger) *SegmentationService {
	if logger == nil {
		logger = slog.Default()
	}
	byName := map[string]func(bookID string) SegmentationStrategy{
		MethodHeaders:      func(string) SegmentationStrategy { return headersStrategy{} },
		MethodTOC:          func(string) SegmentationStrategy { return tocStrategy{} },
		MethodAIAssisted:   func(string) SegmentationStrategy { return aiStrategy{gen: cfg.Generator, model: cfg.Model} },
		MethodFixedPages:   func(string) SegmentationStrategy { return fixedPagesStrategy{pageSize: cfg.FixedPageSize} },
		MethodSingleModule: func(string) SegmentationStrategy { return singleModuleStrategy{} },
	}

	svc := &SegmentationService{store: store, logger: logger}
	for _, name := range StrategyOrder {
		if name == MethodManual {
			// Manual needs the book ID; bound per-run.
			svc.strategies = append(svc.strategies, manualStrategy{home: homeDir})
			continue
		}
		svc.strategies = append(svc.strategies, byName[name](""))
	}
	return svc
}

// Name returns the stage identifier.
func (s *SegmentationService) Name() string { return StageSegmentation }

// Run loads the extraction artifact, detects module boundaries, and
// writes the modules artifact. Fails with ErrNoTextFound when
// extraction produced no usable text.
func (s *SegmentationService) Run(ctx context.Context, bookID string) (*Outcome, error) {
	doc, err := loadDocument(ctx, s.store, bookID)
	if err != nil {
		return nil, err
	}
	if !documentHasText(doc) {
		return nil, fmt.Errorf("%w: book %s", ErrNoTextFound, bookID)
	}

	var (
		boundaries []Boundary
		method     string
	)
	for _, strategy := range s.strategies {
		bound := strategy
		if m, ok := bound.(manualStrategy); ok {
			m.book = bookID
			bound = m
		}

		detected, err := bound.DetectBoundaries(ctx, doc.Pages)
		if err != nil {
			return nil, fmt.Errorf("%s strategy: %w", bound.Name(), err)
		}
		if len(detected) == 0 {
			s.logger.Debug("segmentation strategy not applicable",
				"book_id", bookID, "strategy", bound.Name())
			continue
		}
		boundaries = detected
		method = bound.Name()
		break
	}
	if method == "" {
		// single_module only yields nothing for an empty book, which the
		// text precondition already rejected.
		return nil, fmt.Errorf("%w: no strategy produced boundaries", ErrNoTextFound)
	}

	modules := modulesFromBoundaries(boundaries, doc.Pages)
	payload, err := json.Marshal(ModuleList{BookID: bookID, Method: method, Modules: modules})
	if err != nil {
		return nil, fmt.Errorf("failed to serialize modules: %w", err)
	}

	key := artifacts.NewKey(bookID, StageSegmentation, ArtifactModules)
	if err := s.store.Write(ctx, key, payload); err != nil {
		return nil, fmt.Errorf("failed to write modules artifact: %w", err)
	}

	s.logger.Info("segmentation complete",
		"book_id", bookID,
		"method", method,
		"modules", len(modules))

	return &Outcome{Method: method, ArtifactRef: key.String()}, nil
}

// modulesFromBoundaries converts ordered boundaries into inclusive
// page ranges. Front matter before the first boundary joins the first
// module.
func modulesFromBoundaries(boundaries []Boundary, pages []Page) []Module {
	if len(boundaries) == 0 || len(pages) == 0 {
		return nil
	}
	lastPage := pages[len(pages)-1].Number

	modules := make([]Module, 0, len(boundaries))
	for i, b := range boundaries {
		start := b.Page
		if i == 0 {
			start = pages[0].Number
		}
		end := lastPage
		if i+1 < len(boundaries) {
			end = boundaries[i+1].Page - 1
		}
		if end < start {
			continue
		}
		modules = append(modules, Module{
			Index:     len(modules) + 1,
			Title:     b.Title,
			StartPage: start,
			EndPage:   end,
		})
	}
	return modules
}

// loadDocument reads and decodes the extraction artifact.
func loadDocument(ctx context.Context, store artifacts.Store, bookID string) (*Document, error) {
	payload, err := store.Read(ctx, artifacts.NewKey(bookID, StageExtraction, ArtifactText))
	if err != nil {
		return nil, fmt.Errorf("failed to read text artifact: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode text artifact: %w", err)
	}
	return &doc, nil
}

func documentHasText(doc *Document) bool {
	for _, page := range doc.Pages {
		if page.Text != "" {
			return true
		}
	}
	return false
}

// loadModules reads and decodes the segmentation artifact.
func loadModules(ctx context.Context, store artifacts.Store, bookID string) (*ModuleList, error) {
	payload, err := store.Read(ctx, artifacts.NewKey(bookID, StageSegmentation, ArtifactModules))
	if err != nil {
		return nil, fmt.Errorf("failed to read modules artifact: %w", err)
	}
	var list ModuleList
	if err := json.Unmarshal(payload, &list); err != nil {
		return nil, fmt.Errorf("failed to decode modules artifact: %w", err)
	}
	return &list, nil
}

// moduleText concatenates the text of a module's pages, bounded to
// maxChars to keep prompts within provider limits.
func moduleText(doc *Document, m Module, maxChars int) string {
	var sb []byte
	for _, page := range doc.Pages {
		if page.Number < m.StartPage || page.Number > m.EndPage {
			continue
		}
		if len(sb) > 0 {
			sb = append(sb, '\n')
		}
		sb = append(sb, page.Text...)
		if len(sb) >= maxChars {
			sb = sb[:maxChars]
			break
		}
	}
	return string(sb)
}
