package service

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dyike/CortexReport/internal/models"
	"github.com/dyike/CortexReport/internal/utils"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

var (
	ErrInvalidReportPath = errors.New("invalid report path")
	ErrReportNotFound    = errors.New("report not found")
	// ErrUnknownCursor means the cursor names no archived report, for example
	// because the report was removed between pages.
	ErrUnknownCursor = errors.New("unknown cursor")
)

// ArchivedReport is a saved markdown report.
type ArchivedReport struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Content string `json:"content,omitempty"`
}

// ArchivePage is one page of List results. NextCursor is empty on the last page.
type ArchivePage struct {
	Items      []ArchivedReport `json:"items"`
	NextCursor string           `json:"next_cursor"`
	HasMore    bool             `json:"has_more"`
}

// Archive stores rendered reports as markdown files under a results directory.
type Archive struct {
	dir string
}

func NewArchive(dir string) (*Archive, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("results_dir is not configured")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve results dir: %w", err)
	}
	return &Archive{dir: abs}, nil
}

func (a *Archive) Dir() string { return a.dir }

// Save writes r to <dir>/<symbols>/<finished-at>_<id>.md and returns the path.
func (a *Archive) Save(r *models.Report) (string, error) {
	sub := utils.SafeFileName(strings.Join(models.UniqueSymbols(r.Symbols), "_"))
	name := fmt.Sprintf("%s_%s.md", r.FinishedAt.UTC().Format("20060102T150405Z"), utils.SafeFileName(r.ID))
	return utils.WriteMarkdown(filepath.Join(a.dir, sub), name, r.Markdown())
}

// List returns saved reports sorted by path, starting after cursor.
func (a *Archive) List(cursor string, limit int) (*ArchivePage, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	var items []ArchivedReport
	err := filepath.WalkDir(a.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(d.Name()), ".md") {
			return nil
		}
		rel, err := filepath.Rel(a.dir, path)
		if err != nil {
			return err
		}
		items = append(items, ArchivedReport{Name: d.Name(), Path: filepath.ToSlash(rel)})
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &ArchivePage{Items: []ArchivedReport{}}, nil
		}
		return nil, fmt.Errorf("walk results dir: %w", err)
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].Path < items[j].Path
	})

	start := 0
	if cursor != "" {
		i := sort.Search(len(items), func(i int) bool { return items[i].Path >= cursor })
		if i == len(items) || items[i].Path != cursor {
			return nil, fmt.Errorf("%w: %s", ErrUnknownCursor, cursor)
		}
		start = i + 1
	}
	end := start + limit
	if end > len(items) {
		end = len(items)
	}

	page := &ArchivePage{Items: append([]ArchivedReport{}, items[start:end]...)}
	if end < len(items) {
		page.NextCursor = items[end-1].Path
		page.HasMore = true
	}
	return page, nil
}

// Read loads one saved report by its path relative to the archive. Paths that
// leave the archive, directly or through a symlink, are rejected.
func (a *Archive) Read(rel string) (*ArchivedReport, error) {
	rel = strings.TrimSpace(rel)
	if rel == "" {
		return nil, fmt.Errorf("%w: path is required", ErrInvalidReportPath)
	}
	target := filepath.Join(a.dir, filepath.FromSlash(rel))
	back, err := filepath.Rel(a.dir, target)
	if err != nil || !within(back) {
		return nil, fmt.Errorf("%w: %s is outside results_dir", ErrInvalidReportPath, rel)
	}
	if !strings.EqualFold(filepath.Ext(target), ".md") {
		return nil, fmt.Errorf("%w: %s is not a markdown file", ErrInvalidReportPath, rel)
	}

	resolved, err := filepath.EvalSymlinks(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrReportNotFound, rel)
		}
		return nil, fmt.Errorf("resolve report %s: %w", rel, err)
	}
	root, err := filepath.EvalSymlinks(a.dir)
	if err != nil {
		return nil, fmt.Errorf("resolve results dir: %w", err)
	}
	if inside, err := filepath.Rel(root, resolved); err != nil || !within(inside) {
		return nil, fmt.Errorf("%w: %s resolves outside results_dir", ErrInvalidReportPath, rel)
	}

	content, err := os.ReadFile(resolved)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrReportNotFound, rel)
		}
		return nil, fmt.Errorf("read report %s: %w", rel, err)
	}
	return &ArchivedReport{
		Name:    filepath.Base(target),
		Path:    filepath.ToSlash(back),
		Content: string(content),
	}, nil
}

func within(rel string) bool {
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
