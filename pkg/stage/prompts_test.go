package stage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPromptsRender(t *testing.T) {
	p := MustDefaultPrompts()

	out, err := p.Render("planner_system", promptData{Engine: "Kaplay.js", GameTypes: GameTypes})
	require.NoError(t, err)
	assert.Contains(t, out, "beatemup, fighter, maze, platformer, shootemup")
	assert.Contains(t, out, "GAME_TYPE:")

	out, err = p.Render("planner_user", promptData{LessonPlan: `{"title":"Fractions"}`})
	require.NoError(t, err)
	assert.Contains(t, out, "None, first iteration")

	out, err = p.Render("evaluator_system", promptData{Engine: "Kaplay.js"})
	require.NoError(t, err)
	assert.Contains(t, out, "DECISION: PASS")

	out, err = p.Render("player_system", promptData{Engine: "Kaplay.js"})
	require.NoError(t, err)
	assert.Contains(t, out, "VERDICT: SHIP")
	assert.Contains(t, out, "ERRORS:")
}

func TestEveryStageHasPrompts(t *testing.T) {
	p := MustDefaultPrompts()
	for _, name := range []string{"planner", "evaluator", "implementation", "coder", "asset", "player"} {
		_, _, err := p.pair(name, promptData{})
		assert.NoError(t, err, name)
	}
}

func TestLoadPromptsOverride(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "evaluator_system.tmpl"), []byte("Judge {{.Engine}} games."), 0o644))

	p, err := LoadPrompts(dir)
	require.NoError(t, err)

	out, err := p.Render("evaluator_system", promptData{Engine: "Phaser"})
	require.NoError(t, err)
	assert.Equal(t, "Judge Phaser games.", out)

	out, err = p.Render("player_system", promptData{Engine: "Phaser"})
	require.NoError(t, err)
	assert.Contains(t, out, "VERDICT")
}

func TestLoadPromptsRejectsBadTemplate(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "coder_user.tmpl"), []byte("{{.Broken"), 0o644))

	_, err := LoadPrompts(dir)
	assert.Error(t, err)
}

func TestRenderUnknownPrompt(t *testing.T) {
	_, err := MustDefaultPrompts().Render("nope", nil)
	assert.Error(t, err)
}
