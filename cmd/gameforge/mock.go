package main

import "github.com/zen-systems/gameforge/pkg/adapter"

// cannedGame passes the static checks so an offline run ships.
const cannedGame = "```html\n" + `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <title>Mock Game</title>
  <script src="https://unpkg.com/kaplay@3001/dist/kaplay.js"></script>
</head>
<body>
<script>
  // Collect the correct answers to win.
  kaplay({ width: 640, height: 480, background: [20, 20, 40] });
  add([text("Mock Game"), pos(24, 24)]);
</script>
</body>
</html>` + "\n```"

// newCannedAdapter answers each stage with a fixed reply chosen by its
// system prompt, so "generate --mock" runs end to end without API keys.
func newCannedAdapter() *adapter.MockAdapter {
	return adapter.NewMockAdapterWithResponses(map[string]string{
		"You are an educational game designer":              "GAME_TYPE: platformer\n# Mock Game\n\nJump between platforms and collect the correct answers.",
		"You review educational game designs":               "All criteria score 4 or higher.\nDECISION: PASS",
		"Turn a game design into a concrete implementation": "1. Create the kaplay context\n2. Add the player and platforms\n3. Add answer pickups and scoring",
		"You write complete, self-contained browser games":  cannedGame,
		"You add visual and audio assets":                   cannedGame,
		"You playtest educational browser games":            "The game loads and is winnable.\nERRORS: none\nVERDICT: SHIP",
	}, "")
}
