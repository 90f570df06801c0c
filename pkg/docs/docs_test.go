package docs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const spritePage = `---
title: "Sprites"
description: Loading images
---
import Info from "../components/Info.astro"

# Sprites

Use loadSprite("bean", "sprites/bean.png") to register an image.

Call add([sprite("bean"), pos(80, 40)]) to draw it.
`

const physicsPage = `---
title: Physics
---

# Physics

Use body() and area() components for gravity and collisions.

setGravity(1600) makes objects fall.
`

func TestExtractTitleAndClean(t *testing.T) {
	assert.Equal(t, "Sprites", ExtractTitle(spritePage))
	assert.Equal(t, "Unknown", ExtractTitle("# no frontmatter"))

	clean := Clean(spritePage)
	assert.True(t, strings.HasPrefix(clean, "# Sprites"))
	assert.NotContains(t, clean, "import Info")
	assert.NotContains(t, clean, "description:")
}

func TestChunkOverlap(t *testing.T) {
	paras := []string{
		strings.Repeat("a", 600),
		strings.Repeat("b", 600),
		strings.Repeat("c", 600),
	}
	chunks := Chunk(strings.Join(paras, "\n\n"), 1000, 100)
	require.Len(t, chunks, 3)
	assert.Equal(t, paras[0], chunks[0])
	assert.True(t, strings.HasPrefix(chunks[1], strings.Repeat("a", 100)+"\n\n"+"b"))
	assert.True(t, strings.HasSuffix(chunks[2], paras[2]))

	assert.Equal(t, []string{"short"}, Chunk("short", 0, 0))
	assert.Empty(t, Chunk("   ", 100, 10))
}

func TestHashEmbeddingIsNormalizedAndDeterministic(t *testing.T) {
	embed := HashEmbedding(64)
	ctx := context.Background()

	v1, err := embed(ctx, "jump over the wall")
	require.NoError(t, err)
	v2, err := embed(ctx, "jump over the wall")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)

	var norm float64
	for _, v := range v1 {
		norm += float64(v * v)
	}
	assert.InDelta(t, 1.0, norm, 1e-4)

	empty, err := embed(ctx, "")
	require.NoError(t, err)
	assert.Len(t, empty, 64)
}

func TestNewEmbeddingFunc(t *testing.T) {
	_, err := NewEmbeddingFunc(EmbedderConfig{Provider: "openai"})
	assert.Error(t, err)
	_, err = NewEmbeddingFunc(EmbedderConfig{Provider: "bogus"})
	assert.Error(t, err)
	fn, err := NewEmbeddingFunc(EmbedderConfig{})
	require.NoError(t, err)
	assert.NotNil(t, fn)
}

func writePages(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "guides"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "guides", "sprites.mdx"), []byte(spritePage), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "guides", "physics.md"), []byte(physicsPage), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))
	return dir
}

func TestIndexIngestAndSearch(t *testing.T) {
	dir := writePages(t)
	idx, err := Open(Config{}, HashEmbedding(256), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, idx.Count())

	ctx := context.Background()
	hits, err := idx.Search(ctx, "sprite", 3)
	require.NoError(t, err)
	assert.Empty(t, hits)

	stats, err := idx.IngestDir(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Files)
	assert.Equal(t, 2, stats.Chunks)
	assert.Equal(t, 2, idx.Count())

	// Re-ingesting replaces rather than duplicates.
	_, err = idx.IngestDir(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 2, idx.Count())

	// k larger than the collection is clamped.
	hits, err = idx.Search(ctx, "gravity collisions body area", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "Physics", hits[0].Title)
	assert.Equal(t, "guides", hits[0].Category)
	assert.Equal(t, "guides/physics.md", hits[0].Source)

	_, err = idx.Search(ctx, "  ", 1)
	assert.Error(t, err)

	out := FormatHits(hits)
	assert.Contains(t, out, "[Physics] (guides/physics.md)")
	assert.Contains(t, out, "\n---\n")
}

func TestIngestDirWithoutPages(t *testing.T) {
	idx, err := Open(Config{}, HashEmbedding(32), nil)
	require.NoError(t, err)
	_, err = idx.IngestDir(context.Background(), t.TempDir())
	assert.Error(t, err)
}

func TestPersistentIndex(t *testing.T) {
	dir := writePages(t)
	store := filepath.Join(t.TempDir(), "index")

	idx, err := Open(Config{Path: store}, HashEmbedding(128), nil)
	require.NoError(t, err)
	_, err = idx.IngestDir(context.Background(), dir)
	require.NoError(t, err)

	reopened, err := Open(Config{Path: store}, HashEmbedding(128), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, reopened.Count())
}
