package stages

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/pressbound/bindery/internal/artifacts"
	"github.com/pressbound/bindery/internal/home"
)

func newStageTestStore(t *testing.T) artifacts.Store {
	t.Helper()
	store, err := artifacts.OpenBadgerStore("", nil)
	if err != nil {
		t.Fatalf("failed to open artifact store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestHome(t *testing.T) *home.Dir {
	t.Helper()
	dir, err := home.New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create home dir: %v", err)
	}
	return dir
}

func writeDocument(t *testing.T, store artifacts.Store, bookID string, pages []Page) {
	t.Helper()
	payload, err := json.Marshal(Document{BookID: bookID, PageCount: len(pages), Pages: pages})
	if err != nil {
		t.Fatalf("failed to marshal document: %v", err)
	}
	key := artifacts.NewKey(bookID, StageExtraction, ArtifactText)
	if err := store.Write(context.Background(), key, payload); err != nil {
		t.Fatalf("failed to write document: %v", err)
	}
}

func TestStrategyOrder(t *testing.T) {
	want := []string{
		MethodHeaders,
		MethodTOC,
		MethodAIAssisted,
		MethodManual,
		MethodFixedPages,
		MethodSingleModule,
	}
	if len(StrategyOrder) != len(want) {
		t.Fatalf("expected %d strategies, got %d", len(want), len(StrategyOrder))
	}
	for i, name := range want {
		if StrategyOrder[i] != name {
			t.Errorf("position %d: expected %s, got %s", i, name, StrategyOrder[i])
		}
	}
	if StrategyOrder[len(StrategyOrder)-1] != MethodSingleModule {
		t.Error("single_module must be the terminal fallback")
	}
}

func TestHeadersStrategy(t *testing.T) {
	pages := []Page{
		{Number: 1, Text: "Front matter with no heading."},
		{Number: 2, Text: "Chapter 1: The Beginning\n\nIt was a dark night."},
		{Number: 5, Text: "CHAPTER 2\n\nThe plot thickens."},
		{Number: 9, Text: "Part II: The End\n\nAll was resolved."},
	}

	boundaries, err := headersStrategy{}.DetectBoundaries(context.Background(), pages)
	if err != nil {
		t.Fatalf("DetectBoundaries failed: %v", err)
	}
	if len(boundaries) != 3 {
		t.Fatalf("expected 3 boundaries, got %d: %v", len(boundaries), boundaries)
	}
	if boundaries[0].Page != 2 || boundaries[0].Title != "The Beginning" {
		t.Errorf("unexpected first boundary: %+v", boundaries[0])
	}
	if boundaries[1].Page != 5 {
		t.Errorf("unexpected second boundary: %+v", boundaries[1])
	}
}

func TestTOCStrategy(t *testing.T) {
	pages := []Page{
		{Number: 1, Text: "A Book Title"},
		{Number: 2, Text: "Contents\n\nThe Beginning ........ 4\nThe Middle ........ 12\nThe End ........ 25"},
		{Number: 4, Text: "body"}, {Number: 12, Text: "body"}, {Number: 25, Text: "body"},
		{Number: 30, Text: "body"},
	}

	boundaries, err := tocStrategy{}.DetectBoundaries(context.Background(), pages)
	if err != nil {
		t.Fatalf("DetectBoundaries failed: %v", err)
	}
	if len(boundaries) != 3 {
		t.Fatalf("expected 3 boundaries, got %d: %v", len(boundaries), boundaries)
	}
	if boundaries[0].Page != 4 || boundaries[0].Title != "The Beginning" {
		t.Errorf("unexpected first boundary: %+v", boundaries[0])
	}
}

func TestFixedPagesStrategyDisabledByDefault(t *testing.T) {
	pages := []Page{{Number: 1, Text: "a"}, {Number: 2, Text: "b"}}

	boundaries, err := fixedPagesStrategy{}.DetectBoundaries(context.Background(), pages)
	if err != nil {
		t.Fatalf("DetectBoundaries failed: %v", err)
	}
	if len(boundaries) != 0 {
		t.Errorf("unconfigured fixed_pages should yield nothing, got %v", boundaries)
	}

	boundaries, err = fixedPagesStrategy{pageSize: 1}.DetectBoundaries(context.Background(), pages)
	if err != nil {
		t.Fatalf("DetectBoundaries failed: %v", err)
	}
	if len(boundaries) != 2 {
		t.Errorf("expected 2 boundaries at page size 1, got %v", boundaries)
	}
}

func TestSegmentationFallsBackToSingleModule(t *testing.T) {
	store := newStageTestStore(t)
	homeDir := newTestHome(t)
	bookID := "plain-book"

	// No headers, no ToC, no AI provider, no modules.yaml, no fixed
	// page size: every earlier strategy yields zero boundaries.
	writeDocument(t, store, bookID, []Page{
		{Number: 1, Text: "Just prose from start"},
		{Number: 2, Text: "to finish, nothing structural."},
	})

	svc := NewSegmentation(homeDir, store, SegmentationConfig{}, nil)
	outcome, err := svc.Run(context.Background(), bookID)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if outcome.Method != MethodSingleModule {
		t.Errorf("expected method %s, got %s", MethodSingleModule, outcome.Method)
	}

	list, err := loadModules(context.Background(), store, bookID)
	if err != nil {
		t.Fatalf("loadModules failed: %v", err)
	}
	if len(list.Modules) != 1 {
		t.Fatalf("expected 1 module, got %d", len(list.Modules))
	}
	if list.Modules[0].StartPage != 1 || list.Modules[0].EndPage != 2 {
		t.Errorf("unexpected module range: %+v", list.Modules[0])
	}
}

func TestSegmentationUsesHeaders(t *testing.T) {
	store := newStageTestStore(t)
	homeDir := newTestHome(t)
	bookID := "structured-book"

	writeDocument(t, store, bookID, []Page{
		{Number: 1, Text: "Title page"},
		{Number: 2, Text: "Chapter 1: Alpha\nbody"},
		{Number: 4, Text: "Chapter 2: Beta\nbody"},
		{Number: 6, Text: "closing"},
	})

	svc := NewSegmentation(homeDir, store, SegmentationConfig{}, nil)
	outcome, err := svc.Run(context.Background(), bookID)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if outcome.Method != MethodHeaders {
		t.Errorf("expected method %s, got %s", MethodHeaders, outcome.Method)
	}

	list, err := loadModules(context.Background(), store, bookID)
	if err != nil {
		t.Fatalf("loadModules failed: %v", err)
	}
	if len(list.Modules) != 2 {
		t.Fatalf("expected 2 modules, got %d", len(list.Modules))
	}
	// Front matter joins the first module.
	if list.Modules[0].StartPage != 1 || list.Modules[0].EndPage != 3 {
		t.Errorf("unexpected first module range: %+v", list.Modules[0])
	}
	if list.Modules[1].StartPage != 4 || list.Modules[1].EndPage != 6 {
		t.Errorf("unexpected second module range: %+v", list.Modules[1])
	}
}

func TestSegmentationNoText(t *testing.T) {
	store := newStageTestStore(t)
	homeDir := newTestHome(t)
	bookID := "empty-book"

	writeDocument(t, store, bookID, []Page{{Number: 1, Text: ""}})

	svc := NewSegmentation(homeDir, store, SegmentationConfig{}, nil)
	_, err := svc.Run(context.Background(), bookID)
	if !errors.Is(err, ErrNoTextFound) {
		t.Errorf("expected ErrNoTextFound, got %v", err)
	}
}

func TestManualStrategyMissingFile(t *testing.T) {
	homeDir := newTestHome(t)
	s := manualStrategy{home: homeDir, book: "b1"}

	boundaries, err := s.DetectBoundaries(context.Background(), []Page{{Number: 1, Text: "x"}})
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if len(boundaries) != 0 {
		t.Errorf("missing file should yield nothing, got %v", boundaries)
	}
}

func TestManualStrategyInvalidFile(t *testing.T) {
	homeDir := newTestHome(t)
	bookID := "b1"
	if err := homeDir.EnsureOriginalsDir(bookID); err != nil {
		t.Fatalf("EnsureOriginalsDir failed: %v", err)
	}

	path := homeDir.ModuleDefinitionPath(bookID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}

	pages := []Page{{Number: 1, Text: "x"}, {Number: 2, Text: "y"}, {Number: 3, Text: "z"}}
	s := manualStrategy{home: homeDir, book: bookID}

	tests := []struct {
		name    string
		content string
	}{
		{"not yaml", "{{{"},
		{"empty list", "[]"},
		{"page out of range", "- title: A\n  start_page: 99\n"},
		{"not ascending", "- title: A\n  start_page: 2\n- title: B\n  start_page: 1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatalf("write failed: %v", err)
			}
			_, err := s.DetectBoundaries(context.Background(), pages)
			if !errors.Is(err, ErrInvalidModuleDefinition) {
				t.Errorf("expected ErrInvalidModuleDefinition, got %v", err)
			}
		})
	}
}

func TestManualStrategyValidFile(t *testing.T) {
	homeDir := newTestHome(t)
	bookID := "b1"
	if err := homeDir.EnsureOriginalsDir(bookID); err != nil {
		t.Fatalf("EnsureOriginalsDir failed: %v", err)
	}

	path := homeDir.ModuleDefinitionPath(bookID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	content := "- title: Opening\n  start_page: 1\n- title: Closing\n  start_page: 3\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	pages := []Page{{Number: 1, Text: "x"}, {Number: 2, Text: "y"}, {Number: 3, Text: "z"}}
	boundaries, err := manualStrategy{home: homeDir, book: bookID}.DetectBoundaries(context.Background(), pages)
	if err != nil {
		t.Fatalf("DetectBoundaries failed: %v", err)
	}
	if len(boundaries) != 2 {
		t.Fatalf("expected 2 boundaries, got %d", len(boundaries))
	}
	if boundaries[1].Page != 3 || boundaries[1].Title != "Closing" {
		t.Errorf("unexpected boundary: %+v", boundaries[1])
	}
}

func TestModulesFromBoundaries(t *testing.T) {
	pages := []Page{{Number: 1}, {Number: 2}, {Number: 3}, {Number: 4}, {Number: 5}}
	boundaries := []Boundary{{Page: 2, Title: "A"}, {Page: 4, Title: "B"}}

	modules := modulesFromBoundaries(boundaries, pages)
	if len(modules) != 2 {
		t.Fatalf("expected 2 modules, got %d", len(modules))
	}
	if modules[0].StartPage != 1 || modules[0].EndPage != 3 {
		t.Errorf("unexpected first module: %+v", modules[0])
	}
	if modules[1].StartPage != 4 || modules[1].EndPage != 5 {
		t.Errorf("unexpected second module: %+v", modules[1])
	}
	if modules[0].Index != 1 || modules[1].Index != 2 {
		t.Error("module indexes should be 1-based and sequential")
	}
}
