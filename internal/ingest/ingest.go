// Package ingest registers books from source files and queues them for
// processing.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pressbound/bindery/internal/home"
	"github.com/pressbound/bindery/internal/jobs"
)

// MetadataFileName is the per-book metadata file in the originals
// directory.
const MetadataFileName = "book.json"

// Request contains the parameters for ingesting a book.
type Request struct {
	SourcePaths []string     // PDF or text file paths (will be sorted by numeric suffix)
	Title       string       // Book title (optional, derived from filename if empty)
	Author      string       // Book author (optional)
	JobType     string       // Job type to enqueue (default full_pipeline)
	Logger      *slog.Logger // Optional logger for progress updates
}

// Result contains the result of a successful ingest operation.
type Result struct {
	BookID    string
	JobID     string
	Title     string
	Author    string
	FileCount int
}

// Metadata is what gets written to book.json alongside the originals.
type Metadata struct {
	BookID     string    `json:"book_id"`
	Title      string    `json:"title"`
	Author     string    `json:"author,omitempty"`
	Sources    []string  `json:"sources"`
	IngestedAt time.Time `json:"ingested_at"`
}

// Ingest copies source files into the book's originals directory and
// enqueues a processing job. The originals are kept verbatim; text
// extraction happens inside the pipeline so a failed job can always be
// retried from the raw sources.
func Ingest(ctx context.Context, homeDir *home.Dir, queue *jobs.Queue, req Request) (*Result, error) {
	log := req.Logger
	if log == nil {
		log = slog.Default()
	}

	if len(req.SourcePaths) == 0 {
		return nil, fmt.Errorf("no source paths provided")
	}

	// Validate all source paths exist and carry a supported extension.
	for _, p := range req.SourcePaths {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("source not found: %s", p)
		}
		switch strings.ToLower(filepath.Ext(p)) {
		case ".pdf", ".txt":
		default:
			return nil, fmt.Errorf("unsupported source type: %s", p)
		}
	}

	// Sort sources by numeric suffix (e.g., book-1.pdf, book-2.pdf)
	sortedPaths := sortSourcesByNumber(req.SourcePaths)
	log.Info("starting ingest", "sources", len(sortedPaths), "title", req.Title)

	// Derive title from first filename if not provided
	title := req.Title
	if title == "" {
		title = deriveTitle(sortedPaths[0])
	}

	jobType := req.JobType
	if jobType == "" {
		jobType = "full_pipeline"
	}

	bookID := uuid.New().String()

	if err := homeDir.EnsureOriginalsDir(bookID); err != nil {
		return nil, fmt.Errorf("failed to create originals directory: %w", err)
	}
	outDir := homeDir.OriginalsDir(bookID)

	sources := make([]string, 0, len(sortedPaths))
	for i, src := range sortedPaths {
		log.Debug("copying source", "file", filepath.Base(src), "part", i+1, "of", len(sortedPaths))
		dst := filepath.Join(outDir, filepath.Base(src))
		if err := copyFile(src, dst); err != nil {
			os.RemoveAll(outDir)
			return nil, fmt.Errorf("failed to copy %s: %w", src, err)
		}
		sources = append(sources, filepath.Base(src))
	}

	meta := Metadata{
		BookID:     bookID,
		Title:      title,
		Author:     req.Author,
		Sources:    sources,
		IngestedAt: time.Now().UTC(),
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		os.RemoveAll(outDir)
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(outDir, MetadataFileName), data, 0o644); err != nil {
		os.RemoveAll(outDir)
		return nil, fmt.Errorf("failed to write metadata: %w", err)
	}

	job, err := queue.EnqueueDefault(ctx, bookID, jobType)
	if err != nil {
		os.RemoveAll(outDir)
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	log.Info("ingest complete", "book_id", bookID, "job_id", job.ID, "files", len(sources))

	return &Result{
		BookID:    bookID,
		JobID:     job.ID,
		Title:     title,
		Author:    req.Author,
		FileCount: len(sources),
	}, nil
}

// ReadMetadata loads a book's metadata from its originals directory.
func ReadMetadata(homeDir *home.Dir, bookID string) (*Metadata, error) {
	data, err := os.ReadFile(filepath.Join(homeDir.OriginalsDir(bookID), MetadataFileName))
	if err != nil {
		return nil, err
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	return &meta, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}

// sortSourcesByNumber sorts source paths by their numeric suffix.
// e.g., ["book-2.pdf", "book-1.pdf", "book-10.pdf"] -> ["book-1.pdf", "book-2.pdf", "book-10.pdf"]
func sortSourcesByNumber(paths []string) []string {
	sorted := make([]string, len(paths))
	copy(sorted, paths)

	re := regexp.MustCompile(`-(\d+)\.[a-z]+$`)

	sort.Slice(sorted, func(i, j int) bool {
		mi := re.FindStringSubmatch(strings.ToLower(sorted[i]))
		mj := re.FindStringSubmatch(strings.ToLower(sorted[j]))

		// If both have numbers, sort numerically
		if len(mi) > 1 && len(mj) > 1 {
			ni, _ := strconv.Atoi(mi[1])
			nj, _ := strconv.Atoi(mj[1])
			return ni < nj
		}

		// Files without numbers come first
		if len(mi) > 1 {
			return false
		}
		if len(mj) > 1 {
			return true
		}

		// Both without numbers: alphabetical
		return sorted[i] < sorted[j]
	})

	return sorted
}

// deriveTitle extracts a title from a source filename.
// e.g., "crusade-europe.pdf" -> "crusade-europe"
// e.g., "my-book-1.pdf" -> "my-book"
func deriveTitle(path string) string {
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))

	// Remove numeric suffix like "-1", "-2", etc.
	re := regexp.MustCompile(`-\d+$`)
	name = re.ReplaceAllString(name, "")

	return name
}
