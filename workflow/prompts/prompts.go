// Package prompts holds the system prompts as embedded markdown files. Each
// file carries a free-form preamble (purpose, authoring notes) separated from
// the instruction text by a delimiter line; only the text below the delimiter
// is handed to the model.
package prompts

import (
	"fmt"
	"strings"

	"embed"
)

//go:embed *.md
var files embed.FS

// Delimiter separates the preamble of a prompt file from its content.
const Delimiter = "########## Prompt Content ##########"

// Content returns the prompt text of the named file, stripped of its
// preamble. Name is given without the .md extension.
func Content(name string) (string, error) {
	data, err := files.ReadFile(name + ".md")
	if err != nil {
		return "", fmt.Errorf("prompt %s: %w", name, err)
	}

	text := string(data)
	if idx := strings.Index(text, Delimiter); idx >= 0 {
		text = text[idx+len(Delimiter):]
	}
	return strings.TrimSpace(text), nil
}
