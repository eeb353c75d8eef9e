/*
source.go - Where scraped months come from

PURPOSE:
  The scraper itself lives outside this repo. It drops what it scraped as
  YAML or JSON files; a Source turns those into transient months.

FILE FORMAT:
  months:
    - month: october
      year: 2023
      url: https://www.humblebundle.com/membership/october-2023
      items:
        - Game A
        - Game B

  JSON with the same shape is accepted (it is valid YAML).
*/
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/rex8112/HumbleScrapperBot/bundle"
)

// Source produces freshly scraped, transient months.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]*bundle.Month, error)
}

// Document is the on-disk import format.
type Document struct {
	Months []MonthDoc `yaml:"months" json:"months"`
}

// MonthDoc is one scraped month.
type MonthDoc struct {
	Month string   `yaml:"month" json:"month"`
	Year  int      `yaml:"year" json:"year"`
	URL   string   `yaml:"url" json:"url"`
	Items []string `yaml:"items" json:"items"`
}

// Build converts the document into a transient month. Duplicate item
// names collapse the same way AddItem does: the last spelling wins.
func (d MonthDoc) Build() (*bundle.Month, error) {
	m, err := bundle.NewMonth(d.Month, d.Year, d.URL)
	if err != nil {
		return nil, err
	}
	for _, name := range d.Items {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		m.NewItem(name)
	}
	return m, nil
}

// Parse decodes an import document.
func Parse(data []byte) ([]*bundle.Month, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding months: %w", err)
	}
	months := make([]*bundle.Month, 0, len(doc.Months))
	for i, md := range doc.Months {
		m, err := md.Build()
		if err != nil {
			return nil, fmt.Errorf("month %d (%s): %w", i, md.URL, err)
		}
		months = append(months, m)
	}
	return months, nil
}

// =============================================================================
// FILE SOURCE
// =============================================================================

// importExts are the file extensions FileSource reads from directories.
var importExts = map[string]bool{".yaml": true, ".yml": true, ".json": true}

// FileSource reads months from files. Each path is a file or a directory;
// directories are scanned (not recursively) for .yaml, .yml and .json files.
type FileSource struct {
	Paths []string
}

func NewFileSource(paths ...string) *FileSource {
	return &FileSource{Paths: paths}
}

func (fs *FileSource) Name() string {
	return "files:" + strings.Join(fs.Paths, ",")
}

// Fetch reads every file in path order, directory entries sorted by name.
// A later file repeating a URL overrides the earlier one.
func (fs *FileSource) Fetch(ctx context.Context) ([]*bundle.Month, error) {
	files, err := fs.files()
	if err != nil {
		return nil, err
	}

	var months []*bundle.Month
	index := make(map[string]int)
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", f, err)
		}
		parsed, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f, err)
		}
		for _, m := range parsed {
			if i, ok := index[m.Key()]; ok {
				months[i] = m
				continue
			}
			index[m.Key()] = len(months)
			months = append(months, m)
		}
	}
	return months, nil
}

func (fs *FileSource) files() ([]string, error) {
	var files []string
	for _, p := range fs.Paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("import path: %w", err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, fmt.Errorf("reading dir %s: %w", p, err)
		}
		var names []string
		for _, e := range entries {
			if e.IsDir() || !importExts[strings.ToLower(filepath.Ext(e.Name()))] {
				continue
			}
			names = append(names, e.Name())
		}
		sort.Strings(names)
		for _, n := range names {
			files = append(files, filepath.Join(p, n))
		}
	}
	return files, nil
}

// StaticSource serves a fixed list of months. POST /api/months wraps the
// posted month in one and hands it to Scheduler.RunSource, so manual
// submissions show up in the run history next to scheduled imports.
type StaticSource struct {
	Label  string
	Months []*bundle.Month
}

func (s StaticSource) Name() string { return s.Label }

func (s StaticSource) Fetch(ctx context.Context) ([]*bundle.Month, error) {
	return s.Months, ctx.Err()
}
