package stages

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Segmentation methods, one per strategy.
const (
	MethodHeaders      = "headers"
	MethodTOC          = "toc"
	MethodAIAssisted   = "ai_assisted"
	MethodManual       = "manual"
	MethodFixedPages   = "fixed_pages"
	MethodSingleModule = "single_module"
)

// StrategyOrder is the precedence in which segmentation strategies are
// tried. A strategy that yields zero boundaries falls through to the
// next; single_module always yields a boundary, so the chain cannot
// come up empty.
var StrategyOrder = []string{
	MethodHeaders,
	MethodTOC,
	MethodAIAssisted,
	MethodManual,
	MethodFixedPages,
	MethodSingleModule,
}

// SegmentationStrategy detects module boundaries in extracted pages.
// Returning zero boundaries means "not applicable, try the next one";
// errors abort the stage.
type SegmentationStrategy interface {
	Name() string
	DetectBoundaries(ctx context.Context, pages []Page) ([]Boundary, error)
}

// headerRe matches structural headings at the start of a line:
// "CHAPTER 3", "Part II", "Unit 7: Fractions", "LESSON 12".
var headerRe = regexp.MustCompile(`(?i)^\s*(chapter|part|unit|lesson|section|book)\s+([0-9]+|[ivxlcdm]+)\b[.:\s]*(.*)$`)

// headersStrategy finds modules by scanning the top of each page for a
// structural heading line.
type headersStrategy struct{}

func (headersStrategy) Name() string { return MethodHeaders }

func (headersStrategy) DetectBoundaries(_ context.Context, pages []Page) ([]Boundary, error) {
	var boundaries []Boundary
	for _, page := range pages {
		lines := strings.Split(page.Text, "\n")
		if len(lines) > 6 {
			lines = lines[:6]
		}
		for _, line := range lines {
			m := headerRe.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			title := strings.TrimSpace(m[3])
			if title == "" {
				title = strings.TrimSpace(strings.Join(m[1:3], " "))
			}
			boundaries = append(boundaries, Boundary{Page: page.Number, Title: title})
			break
		}
	}
	return boundaries, nil
}

// tocLineRe matches a contents line with a trailing page number:
// "The War Years .......... 153" or "3. Fractions   27".
var tocLineRe = regexp.MustCompile(`^\s*(.+?)[.\s]{3,}(\d{1,4})\s*$`)

// tocStrategy locates a table-of-contents page near the front of the
// book and converts its printed page numbers into boundaries.
type tocStrategy struct{}

func (tocStrategy) Name() string { return MethodTOC }

func (tocStrategy) DetectBoundaries(_ context.Context, pages []Page) ([]Boundary, error) {
	if len(pages) == 0 {
		return nil, nil
	}

	// The ToC lives in the front matter; scan the first fifth of the
	// book, at least five pages.
	scanLimit := len(pages) / 5
	if scanLimit < 5 {
		scanLimit = 5
	}
	if scanLimit > len(pages) {
		scanLimit = len(pages)
	}

	lastPage := pages[len(pages)-1].Number
	var boundaries []Boundary
	for _, page := range pages[:scanLimit] {
		if !looksLikeTOCPage(page.Text) {
			continue
		}
		for _, line := range strings.Split(page.Text, "\n") {
			m := tocLineRe.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			pageNum, err := strconv.Atoi(m[2])
			if err != nil || pageNum < 1 || pageNum > lastPage {
				continue
			}
			title := strings.Trim(strings.TrimSpace(m[1]), ".")
			boundaries = append(boundaries, Boundary{Page: pageNum, Title: title})
		}
		if len(boundaries) > 0 {
			break
		}
	}

	// A single entry is not a segmentation; require at least two.
	if len(boundaries) < 2 {
		return nil, nil
	}
	return dedupeBoundaries(boundaries), nil
}

func looksLikeTOCPage(text string) bool {
	for i, line := range strings.Split(text, "\n") {
		if i > 4 {
			break
		}
		normalized := strings.ToLower(strings.TrimSpace(line))
		if normalized == "contents" || normalized == "table of contents" {
			return true
		}
	}
	return false
}

// fixedPagesStrategy chunks the book every pageSize pages. Disabled
// (yields nothing) until a page size is configured.
type fixedPagesStrategy struct {
	pageSize int
}

func (fixedPagesStrategy) Name() string { return MethodFixedPages }

func (s fixedPagesStrategy) DetectBoundaries(_ context.Context, pages []Page) ([]Boundary, error) {
	if s.pageSize <= 0 || len(pages) == 0 {
		return nil, nil
	}
	var boundaries []Boundary
	for i := 0; i < len(pages); i += s.pageSize {
		boundaries = append(boundaries, Boundary{
			Page:  pages[i].Number,
			Title: fmt.Sprintf("Module %d", len(boundaries)+1),
		})
	}
	return boundaries, nil
}

// singleModuleStrategy treats the whole book as one module. Terminal
// fallback of the chain.
type singleModuleStrategy struct{}

func (singleModuleStrategy) Name() string { return MethodSingleModule }

func (singleModuleStrategy) DetectBoundaries(_ context.Context, pages []Page) ([]Boundary, error) {
	if len(pages) == 0 {
		return nil, nil
	}
	return []Boundary{{Page: pages[0].Number}}, nil
}

// dedupeBoundaries sorts boundaries by page and drops duplicates,
// keeping the first title seen for a page.
func dedupeBoundaries(boundaries []Boundary) []Boundary {
	seen := make(map[int]bool, len(boundaries))
	var out []Boundary
	for _, b := range boundaries {
		if seen[b.Page] {
			continue
		}
		seen[b.Page] = true
		out = append(out, b)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Page < out[j-1].Page; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
