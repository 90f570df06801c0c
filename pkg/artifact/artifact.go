// Package artifact packages the output of a finished run: the playable
// HTML game and its design document.
package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zen-systems/gameforge/pkg/state"
)

// Game is the deliverable of a run.
type Game struct {
	RunID           string    `json:"run_id"`
	Title           string    `json:"title"`
	Slug            string    `json:"slug"`
	HTML            string    `json:"game_html"`
	DesignDoc       string    `json:"design_doc"`
	GameType        string    `json:"game_type,omitempty"`
	Status          string    `json:"status"`
	ShipApproved    bool      `json:"ship_approved"`
	Errors          []string  `json:"errors"`
	DesignIteration int       `json:"design_iteration"`
	CodeIteration   int       `json:"code_iteration"`
	CreatedAt       time.Time `json:"created_at"`
	Hash            string    `json:"hash"`
}

// Paths are the files written by Save.
type Paths struct {
	Game   string
	Design string
}

// FromState builds the deliverable from a terminal run state.
func FromState(s state.State) *Game {
	title := s.Input.Title()
	g := &Game{
		RunID:           s.RunID,
		Title:           title,
		Slug:            Slug(title),
		HTML:            s.GameCode,
		DesignDoc:       s.DesignDoc,
		GameType:        s.GameType,
		Status:          string(s.Status),
		ShipApproved:    s.ShipApproved,
		Errors:          append([]string{}, s.Errors...),
		DesignIteration: s.DesignIteration,
		CodeIteration:   s.CodeIteration,
		CreatedAt:       time.Now().UTC(),
	}
	g.Hash = g.computeHash()
	return g
}

// HasCode reports whether the run produced a game.
func (g *Game) HasCode() bool {
	return g != nil && strings.TrimSpace(g.HTML) != ""
}

// Failed reports whether the run ended failed.
func (g *Game) Failed() bool {
	return g == nil || g.Status == string(state.StatusFailed)
}

// Save writes <slug>_game.html and <slug>_design.md into dir.
func (g *Game) Save(dir string) (Paths, error) {
	if !g.HasCode() {
		return Paths{}, fmt.Errorf("no game code to save")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Paths{}, fmt.Errorf("create output dir: %w", err)
	}
	paths := Paths{
		Game:   filepath.Join(dir, g.Slug+"_game.html"),
		Design: filepath.Join(dir, g.Slug+"_design.md"),
	}
	if err := os.WriteFile(paths.Game, []byte(g.HTML), 0644); err != nil {
		return Paths{}, fmt.Errorf("write game: %w", err)
	}
	if err := os.WriteFile(paths.Design, []byte(g.DesignDoc), 0644); err != nil {
		return Paths{}, fmt.Errorf("write design doc: %w", err)
	}
	return paths, nil
}

// Slug turns a title into a file name stem: lower case, spaces and dashes
// become underscores, anything else outside [a-z0-9_] is dropped.
func Slug(title string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(title)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			sb.WriteRune(r)
		case r == ' ' || r == '-':
			sb.WriteRune('_')
		}
	}
	if slug := strings.Trim(sb.String(), "_"); slug != "" {
		return slug
	}
	return "untitled"
}

func (g *Game) computeHash() string {
	h := sha256.New()
	h.Write([]byte(g.HTML))
	h.Write([]byte(g.DesignDoc))
	return hex.EncodeToString(h.Sum(nil))[:16]
}
