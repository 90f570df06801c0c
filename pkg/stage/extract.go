package stage

import (
	"encoding/base64"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// GameTypes are the base templates a design can start from.
var GameTypes = []string{"beatemup", "fighter", "maze", "platformer", "shootemup"}

// DefaultGameType is used when a design names no known type.
const DefaultGameType = "platformer"

var (
	gameTypeLine = regexp.MustCompile(`(?i)GAME_TYPE:\s*\**\s*([A-Za-z_-]+)`)
	fenceOpen    = regexp.MustCompile("^```[A-Za-z]*[ \t]*\r?\n")
	fenceClose   = regexp.MustCompile("\r?\n?```[ \t]*$")
	assetRef     = regexp.MustCompile("(^|[\"'`(=\\s])((?:\\./)?assets/([A-Za-z0-9_\\-/]+(?:\\.[A-Za-z0-9_\\-]+)*\\.[A-Za-z0-9]+))")
)

// ParseGameType picks the game type declared by a design document. An
// explicit GAME_TYPE line wins; otherwise the earliest known type mentioned
// anywhere; otherwise DefaultGameType.
func ParseGameType(design string) string {
	if m := gameTypeLine.FindStringSubmatch(design); m != nil {
		if t := normalizeGameType(m[1]); t != "" {
			return t
		}
	}

	lower := strings.ToLower(design)
	best, bestAt := "", -1
	for _, t := range GameTypes {
		if at := strings.Index(lower, t); at >= 0 && (bestAt < 0 || at < bestAt) {
			best, bestAt = t, at
		}
	}
	if best != "" {
		return best
	}
	return DefaultGameType
}

func normalizeGameType(raw string) string {
	t := strings.ToLower(strings.NewReplacer("-", "", "_", "", " ", "").Replace(raw))
	for _, known := range GameTypes {
		if t == known {
			return known
		}
	}
	return ""
}

// StripCodeFences removes a single surrounding markdown code fence.
func StripCodeFences(text string) string {
	out := strings.TrimSpace(text)
	if !strings.HasPrefix(out, "```") {
		return out
	}
	out = fenceOpen.ReplaceAllString(out, "")
	out = fenceClose.ReplaceAllString(out, "")
	return strings.TrimSpace(out)
}

// LoadTemplate reads <dir>/<gameType>.html. A missing directory or file
// yields an empty template and no error.
func LoadTemplate(dir, gameType string) (string, error) {
	if dir == "" {
		return "", nil
	}
	data, err := os.ReadFile(filepath.Join(dir, gameType+".html"))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading template %s: %w", gameType, err)
	}
	return string(data), nil
}

var assetTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
}

func assetMIME(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if t, ok := assetTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

// InlineAssets replaces assets/<file> references that exist under dir with
// base64 data URIs. A reference must start a quoted string, a url(...) or an
// attribute value; paths inside absolute URLs are left alone. It returns the rewritten code and the names it inlined,
// in order of first appearance. References to missing files are left alone.
func InlineAssets(code, dir string) (string, []string, error) {
	if dir == "" {
		return code, nil, nil
	}

	var inlined []string
	uris := map[string]string{}
	for _, m := range assetRef.FindAllStringSubmatch(code, -1) {
		name := m[3]
		if _, seen := uris[name]; seen {
			continue
		}
		clean := filepath.Clean(name)
		if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
			uris[name] = ""
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, clean))
		if os.IsNotExist(err) {
			uris[name] = ""
			continue
		}
		if err != nil {
			return code, nil, fmt.Errorf("reading asset %s: %w", name, err)
		}
		uris[name] = "data:" + assetMIME(name) + ";base64," + base64.StdEncoding.EncodeToString(data)
		inlined = append(inlined, name)
	}

	out := assetRef.ReplaceAllStringFunc(code, func(ref string) string {
		m := assetRef.FindStringSubmatch(ref)
		if uri := uris[m[3]]; uri != "" {
			return m[1] + uri
		}
		return ref
	})
	return out, inlined, nil
}

var fenceLine = regexp.MustCompile("(?m)^[ \t]*```([A-Za-z0-9_+-]*)[ \t]*\r?$")

type fencedBlock struct {
	lang       string
	body       string
	start, end int
}

// fencedBlocks pairs fence lines in order, so the closing fence of one block
// is never read as the opening fence of the next.
func fencedBlocks(text string) []fencedBlock {
	marks := fenceLine.FindAllStringSubmatchIndex(text, -1)
	var blocks []fencedBlock
	for i := 0; i+1 < len(marks); i += 2 {
		open, closing := marks[i], marks[i+1]
		blocks = append(blocks, fencedBlock{
			lang:  strings.ToLower(text[open[2]:open[3]]),
			body:  text[open[1]:closing[0]],
			start: open[0],
			end:   closing[1],
		})
	}
	return blocks
}

// SplitCode separates an HTML document from the prose around it. A block
// fenced as html is preferred, then the first untagged fenced block;
// otherwise the span from the doctype (or <html>) to the last </html> is
// taken. Text that contains no document is returned as notes with empty
// code.
func SplitCode(text string) (code, notes string) {
	blocks := fencedBlocks(text)
	for _, lang := range []string{"html", ""} {
		for _, b := range blocks {
			if b.lang != lang {
				continue
			}
			if code = strings.TrimSpace(b.body); code != "" {
				return code, joinNotes(text[:b.start], text[b.end:])
			}
		}
	}

	lower := strings.ToLower(text)
	start := strings.Index(lower, "<!doctype")
	if start < 0 {
		start = strings.Index(lower, "<html")
	}
	if start < 0 {
		return "", strings.TrimSpace(text)
	}
	end := len(text)
	if at := strings.LastIndex(lower, "</html>"); at > start {
		end = at + len("</html>")
	}
	code = strings.TrimSpace(text[start:end])
	return code, joinNotes(text[:start], text[end:])
}

func joinNotes(before, after string) string {
	before, after = strings.TrimSpace(before), strings.TrimSpace(after)
	if before == "" || after == "" {
		return before + after
	}
	return before + "\n\n" + after
}
