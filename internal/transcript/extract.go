// Package transcript recovers structured content from multi-turn chat
// histories: the fenced code an agent wrote, or the agent's raw text.
//
// Both extractors are pure functions of the history and the agent name.
package transcript

import (
	"regexp"
	"strings"

	"github.com/squadworks/squad/pkg/models"
)

// fencePattern matches a fenced region with an optional python/pyspark tag.
// The tag is consumed but never returned.
var fencePattern = regexp.MustCompile("(?s)```(?:python|pyspark)?\\s*\\n?(.*?)```")

const (
	codeSeparator = "\n\n"
	textSeparator = "\n"
)

// ExtractCode stitches every non-empty message authored by name with a blank
// line between them and returns the bodies of all fenced blocks found in the
// result. Prose outside fences is dropped. When no fenced block exists the
// stitched text is returned unchanged. No matching messages yields "".
func ExtractCode(history models.ChatHistory, name string) string {
	parts := authored(history, name)
	if len(parts) == 0 {
		return ""
	}

	stitched := strings.Join(parts, codeSeparator)
	blocks := FencedBlocks(stitched)
	if len(blocks) == 0 {
		return stitched
	}
	return strings.Join(blocks, codeSeparator)
}

// ExtractText joins the non-empty messages authored by name with a single
// newline. Fences are left untouched.
func ExtractText(history models.ChatHistory, name string) string {
	return strings.Join(authored(history, name), textSeparator)
}

// FencedBlocks returns the trimmed bodies of every fenced region in text,
// in order of appearance.
func FencedBlocks(text string) []string {
	matches := fencePattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	blocks := make([]string, 0, len(matches))
	for _, m := range matches {
		blocks = append(blocks, strings.TrimSpace(m[1]))
	}
	return blocks
}

// authored returns the trimmed content of name's non-empty messages.
func authored(history models.ChatHistory, name string) []string {
	var parts []string
	for _, msg := range history {
		if msg.Name != name {
			continue
		}
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		parts = append(parts, content)
	}
	return parts
}
