// Package docs maintains the game-engine documentation index searched by the
// coder's search_docs tool.
package docs

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

// Config configures the documentation index.
type Config struct {
	// Path is the directory for persistent storage. Empty keeps the index in memory.
	Path       string
	Compress   bool
	Collection string
	ChunkSize  int
	Overlap    int
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Collection == "" {
		c.Collection = "engine_docs"
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.Overlap == 0 {
		c.Overlap = DefaultChunkOverlap
	}
}

// Hit is one search result.
type Hit struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Category   string  `json:"category"`
	Source     string  `json:"source"`
	Content    string  `json:"content"`
	Similarity float32 `json:"similarity"`
}

// IngestStats summarizes an ingest.
type IngestStats struct {
	Files  int `json:"files"`
	Chunks int `json:"chunks"`
}

// Index is a chromem-go collection of documentation chunks.
type Index struct {
	db     *chromem.DB
	embed  chromem.EmbeddingFunc
	cfg    Config
	logger *zap.Logger
}

// Open opens (or creates) the index described by cfg.
func Open(cfg Config, embed chromem.EmbeddingFunc, logger *zap.Logger) (*Index, error) {
	if embed == nil {
		return nil, fmt.Errorf("embedding function is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()

	var db *chromem.DB
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", cfg.Path, err)
		}
		var err error
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("opening docs index: %w", err)
		}
	}

	return &Index{db: db, embed: embed, cfg: cfg, logger: logger}, nil
}

func (x *Index) collection() (*chromem.Collection, error) {
	return x.db.GetOrCreateCollection(x.cfg.Collection, nil, x.embed)
}

// Count returns the number of indexed chunks.
func (x *Index) Count() int {
	coll := x.db.GetCollection(x.cfg.Collection, x.embed)
	if coll == nil {
		return 0
	}
	return coll.Count()
}

// IngestDir replaces the collection with every .md/.mdx page under dir.
func (x *Index) IngestDir(ctx context.Context, dir string) (IngestStats, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".md", ".mdx":
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return IngestStats{}, fmt.Errorf("walking %s: %w", dir, err)
	}
	if len(paths) == 0 {
		return IngestStats{}, fmt.Errorf("no .md or .mdx files found in %s", dir)
	}
	sort.Strings(paths)

	var docs []chromem.Document
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			return IngestStats{}, fmt.Errorf("reading %s: %w", path, err)
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = path
		}
		docs = append(docs, pageDocuments(string(raw), rel, x.cfg.ChunkSize, x.cfg.Overlap)...)
	}

	if len(docs) == 0 {
		return IngestStats{}, fmt.Errorf("no content found in %s", dir)
	}

	// Rebuild from scratch so repeated ingests do not duplicate chunks.
	if err := x.db.DeleteCollection(x.cfg.Collection); err != nil {
		return IngestStats{}, fmt.Errorf("resetting collection: %w", err)
	}
	coll, err := x.collection()
	if err != nil {
		return IngestStats{}, fmt.Errorf("creating collection: %w", err)
	}
	if err := coll.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return IngestStats{}, fmt.Errorf("adding documents: %w", err)
	}

	stats := IngestStats{Files: len(paths), Chunks: len(docs)}
	x.logger.Info("docs ingested",
		zap.String("dir", dir),
		zap.String("collection", x.cfg.Collection),
		zap.Int("files", stats.Files),
		zap.Int("chunks", stats.Chunks),
	)
	return stats, nil
}

func pageDocuments(raw, rel string, size, overlap int) []chromem.Document {
	title := ExtractTitle(raw)
	category := filepath.Base(filepath.Dir(rel))
	if category == "." {
		category = ""
	}
	stem := strings.TrimSuffix(filepath.ToSlash(rel), filepath.Ext(rel))

	chunks := Chunk(Clean(raw), size, overlap)
	out := make([]chromem.Document, 0, len(chunks))
	for i, chunk := range chunks {
		out = append(out, chromem.Document{
			ID:      fmt.Sprintf("%s_%d", stem, i),
			Content: chunk,
			Metadata: map[string]string{
				"title":       title,
				"category":    category,
				"source":      filepath.ToSlash(rel),
				"chunk_index": strconv.Itoa(i),
			},
		})
	}
	return out
}

// Search returns up to k chunks most similar to query.
func (x *Index) Search(ctx context.Context, query string, k int) ([]Hit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query is empty")
	}
	coll := x.db.GetCollection(x.cfg.Collection, x.embed)
	if coll == nil || coll.Count() == 0 {
		return nil, nil
	}
	if k <= 0 {
		k = 5
	}
	if n := coll.Count(); k > n {
		k = n
	}

	results, err := coll.Query(ctx, query, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying docs: %w", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, Hit{
			ID:         r.ID,
			Title:      r.Metadata["title"],
			Category:   r.Metadata["category"],
			Source:     r.Metadata["source"],
			Content:    r.Content,
			Similarity: r.Similarity,
		})
	}
	return hits, nil
}

// FormatHits renders hits as tool output.
func FormatHits(hits []Hit) string {
	parts := make([]string, 0, len(hits))
	for _, h := range hits {
		parts = append(parts, fmt.Sprintf("[%s] (%s)\n%s", h.Title, h.Source, h.Content))
	}
	return strings.Join(parts, "\n---\n")
}
