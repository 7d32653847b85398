package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/pressbound/bindery/internal/artifacts"
	"github.com/pressbound/bindery/internal/home"
)

// Extraction methods recorded on the stage result.
const (
	MethodNativeText = "native_text"
	MethodPDFContent = "pdf_content"
	MethodMixed      = "mixed"
)

// ExtractionService reads a book's source files from the originals
// directory and produces the page-text artifact every later stage
// consumes. PDF sources go through pdfcpu content extraction; plain
// text sources are paginated on form feeds.
type ExtractionService struct {
	home   *home.Dir
	store  artifacts.Store
	logger *slog.Logger
}

// NewExtraction creates the extraction stage service.
func NewExtraction(homeDir *home.Dir, store artifacts.Store, logger *slog.Logger) *ExtractionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExtractionService{home: homeDir, store: store, logger: logger}
}

// Name returns the stage identifier.
func (s *ExtractionService) Name() string { return StageExtraction }

// Run extracts page text from every source file of the book, in
// cumulative page order, and writes the text artifact.
func (s *ExtractionService) Run(ctx context.Context, bookID string) (*Outcome, error) {
	originalsDir := s.home.OriginalsDir(bookID)

	entries, err := os.ReadDir(originalsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read originals directory: %w", err)
	}

	var pdfPaths, textPaths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := strings.ToLower(entry.Name())
		switch {
		case strings.HasSuffix(name, ".pdf"):
			pdfPaths = append(pdfPaths, filepath.Join(originalsDir, entry.Name()))
		case strings.HasSuffix(name, ".txt"):
			textPaths = append(textPaths, filepath.Join(originalsDir, entry.Name()))
		}
	}
	if len(pdfPaths) == 0 && len(textPaths) == 0 {
		return nil, fmt.Errorf("%w: no source files in %s", ErrNoTextFound, originalsDir)
	}

	pdfPaths = sortByNumericSuffix(pdfPaths, ".pdf")
	textPaths = sortByNumericSuffix(textPaths, ".txt")

	var pages []Page
	for _, path := range pdfPaths {
		pdfPages, err := s.extractPDFPages(path, len(pages))
		if err != nil {
			return nil, err
		}
		pages = append(pages, pdfPages...)
	}
	for _, path := range textPaths {
		textPages, err := extractTextPages(path, len(pages))
		if err != nil {
			return nil, err
		}
		pages = append(pages, textPages...)
	}

	method := MethodPDFContent
	switch {
	case len(pdfPaths) == 0:
		method = MethodNativeText
	case len(textPaths) > 0:
		method = MethodMixed
	}

	doc := Document{BookID: bookID, PageCount: len(pages), Pages: pages}
	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize document: %w", err)
	}

	key := artifacts.NewKey(bookID, StageExtraction, ArtifactText)
	if err := s.store.Write(ctx, key, payload); err != nil {
		return nil, fmt.Errorf("failed to write text artifact: %w", err)
	}

	s.logger.Info("extraction complete",
		"book_id", bookID,
		"pages", len(pages),
		"method", method)

	return &Outcome{Method: method, ArtifactRef: key.String()}, nil
}

// extractPDFPages pulls per-page text out of one PDF. Page numbers
// continue from pageOffset so multi-part books number cumulatively.
func (s *ExtractionService) extractPDFPages(path string, pageOffset int) ([]Page, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF %s: %w", path, err)
	}
	pageCount, err := api.PageCount(f, nil)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to get page count for %s: %w", path, err)
	}

	tmpDir, err := os.MkdirTemp("", "bindery-extract-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create extraction dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	if err := api.ExtractContentFile(path, tmpDir, nil, nil); err != nil {
		return nil, fmt.Errorf("failed to extract content from %s: %w", path, err)
	}

	texts, err := readExtractedContent(tmpDir, pageCount)
	if err != nil {
		return nil, err
	}

	pages := make([]Page, pageCount)
	for i := 0; i < pageCount; i++ {
		pages[i] = Page{Number: pageOffset + i + 1, Text: texts[i]}
	}
	return pages, nil
}

// readExtractedContent reads pdfcpu's per-page content dumps and
// decodes text-showing operators. Pages without a dump stay empty.
func readExtractedContent(dir string, pageCount int) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read extraction dir: %w", err)
	}

	pageRe := regexp.MustCompile(`(\d+)\.txt$`)
	texts := make([]string, pageCount)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := pageRe.FindStringSubmatch(entry.Name())
		if len(m) < 2 {
			continue
		}
		pageNum, err := strconv.Atoi(m[1])
		if err != nil || pageNum < 1 || pageNum > pageCount {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read content dump %s: %w", entry.Name(), err)
		}
		texts[pageNum-1] = decodeContentText(raw)
	}
	return texts, nil
}

// extractTextPages reads a plain text source. Form feeds separate
// pages; a file without form feeds is a single page.
func extractTextPages(path string, pageOffset int) ([]Page, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read text source %s: %w", path, err)
	}

	var pages []Page
	for i, chunk := range strings.Split(string(raw), "\f") {
		pages = append(pages, Page{
			Number: pageOffset + i + 1,
			Text:   strings.TrimRight(chunk, "\n"),
		})
	}
	return pages, nil
}

// sortByNumericSuffix orders paths by a trailing -N suffix so
// "book-2" sorts before "book-10". Files without a numeric suffix come
// first, alphabetically.
func sortByNumericSuffix(paths []string, ext string) []string {
	sorted := make([]string, len(paths))
	copy(sorted, paths)

	re := regexp.MustCompile(`-(\d+)` + regexp.QuoteMeta(ext) + `$`)

	sort.Slice(sorted, func(i, j int) bool {
		mi := re.FindStringSubmatch(strings.ToLower(sorted[i]))
		mj := re.FindStringSubmatch(strings.ToLower(sorted[j]))

		if len(mi) > 1 && len(mj) > 1 {
			ni, _ := strconv.Atoi(mi[1])
			nj, _ := strconv.Atoi(mj[1])
			return ni < nj
		}
		if len(mi) > 1 {
			return false
		}
		if len(mj) > 1 {
			return true
		}
		return sorted[i] < sorted[j]
	})

	return sorted
}
