package stage

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGameType(t *testing.T) {
	tests := []struct {
		name   string
		design string
		want   string
	}{
		{"explicit line", "GAME_TYPE: maze\n# Fraction Maze", "maze"},
		{"bold markdown", "**GAME_TYPE:** Shoot-em-up\n", "shootemup"},
		{"lowercase key", "game_type: fighter", "fighter"},
		{"unknown declared falls back to mention", "GAME_TYPE: puzzle\nA platformer with a maze level", "platformer"},
		{"earliest mention wins", "Like a maze, but also a beatemup", "maze"},
		{"nothing known", "A quiz about planets", DefaultGameType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseGameType(tt.design))
		})
	}
}

func TestStripCodeFences(t *testing.T) {
	assert.Equal(t, "<html></html>", StripCodeFences("```html\n<html></html>\n```"))
	assert.Equal(t, "<html></html>", StripCodeFences("```\n<html></html>\n```"))
	assert.Equal(t, "<html></html>", StripCodeFences("  <html></html>  "))
}

func TestSplitCode(t *testing.T) {
	t.Run("fenced", func(t *testing.T) {
		code, notes := SplitCode("Here is the game.\n```html\n<!DOCTYPE html>\n<html></html>\n```\nEnjoy.")
		assert.Equal(t, "<!DOCTYPE html>\n<html></html>", code)
		assert.Equal(t, "Here is the game.\n\nEnjoy.", notes)
	})
	t.Run("bare document", func(t *testing.T) {
		code, notes := SplitCode("Notes first\n<!DOCTYPE html><html><body></body></html>\ntrailing")
		assert.Equal(t, "<!DOCTYPE html><html><body></body></html>", code)
		assert.Equal(t, "Notes first\n\ntrailing", notes)
	})
	t.Run("html block after another fenced block", func(t *testing.T) {
		text := "Helper first:\n```js\nconst k = kaplay();\n```\nNow the game:\n```html\n<!DOCTYPE html>\n<html></html>\n```\nDone."
		code, notes := SplitCode(text)
		assert.Equal(t, "<!DOCTYPE html>\n<html></html>", code)
		assert.Contains(t, notes, "const k = kaplay();")
		assert.Contains(t, notes, "Done.")
	})
	t.Run("untagged block after another fenced block", func(t *testing.T) {
		code, _ := SplitCode("```css\nbody{}\n```\n\n```\n<html><body></body></html>\n```")
		assert.Equal(t, "<html><body></body></html>", code)
	})
	t.Run("no document", func(t *testing.T) {
		code, notes := SplitCode("I could not write the game.")
		assert.Empty(t, code)
		assert.Equal(t, "I could not write the game.", notes)
	})
}

func TestLoadTemplate(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "maze.html"), []byte("<html>maze</html>"), 0o644))

	got, err := LoadTemplate(dir, "maze")
	require.NoError(t, err)
	assert.Equal(t, "<html>maze</html>", got)

	got, err = LoadTemplate(dir, "fighter")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = LoadTemplate("", "maze")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestInlineAssets(t *testing.T) {
	dir := t.TempDir()
	png := []byte{0x89, 'P', 'N', 'G'}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hero.png"), png, 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sfx"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sfx", "jump.wav"), []byte("RIFF"), 0o644))

	code := `loadSprite("hero", "assets/hero.png"); loadSound("jump", "./assets/sfx/jump.wav"); loadSprite("x", "assets/missing.png"); loadSprite("hero2", "assets/hero.png")`
	out, inlined, err := InlineAssets(code, dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"hero.png", "sfx/jump.wav"}, inlined)
	assert.Equal(t, 2, strings.Count(out, "data:image/png;base64,"+base64.StdEncoding.EncodeToString(png)))
	assert.Contains(t, out, `"data:audio/wav;base64,`)
	assert.Contains(t, out, "assets/missing.png")
	assert.NotContains(t, out, "./data:")
}

func TestInlineAssetsLeavesAbsoluteURLs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x.png"), []byte{0x89, 'P', 'N', 'G'}, 0o644))

	code := `<img src="https://cdn.example.com/pack/assets/x.png"><div style="background:url(assets/x.png)"></div><img src=assets/x.png>`
	out, inlined, err := InlineAssets(code, dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"x.png"}, inlined)
	assert.Contains(t, out, `src="https://cdn.example.com/pack/assets/x.png"`)
	assert.Contains(t, out, "url(data:image/png;base64,")
	assert.Contains(t, out, "src=data:image/png;base64,")
	assert.Equal(t, 2, strings.Count(out, "data:image/png"))
}

func TestInlineAssetsWithoutDir(t *testing.T) {
	out, inlined, err := InlineAssets(`"assets/hero.png"`, "")
	require.NoError(t, err)
	assert.Nil(t, inlined)
	assert.Equal(t, `"assets/hero.png"`, out)
}

func TestAssetMIME(t *testing.T) {
	assert.Equal(t, "image/svg+xml", assetMIME("a.SVG"))
	assert.Equal(t, "audio/ogg", assetMIME("a.ogg"))
	assert.Equal(t, "application/octet-stream", assetMIME("a.unknownext"))
}
