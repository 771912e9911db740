// Package content holds the static text shared by the web pages and the CLI.
package content

import _ "embed"

//go:embed about.md
var About []byte

const (
	Title       = "Named Entity Recognition (NER) Web App"
	AboutTitle  = "About This Project"
	Author      = "Hareetima Sonkar"
	EmptyPrompt = "Please enter some text for NER."
)

// Suggestions are the preset one-click inputs on the NER App page.
var Suggestions = []string{
	"Elon Musk is the CEO of Tesla.",
	"Barack Obama was the 44th President of the United States.",
	"Google was founded in California.",
	"The Eiffel Tower is located in Paris, France.",
	"Apple Inc. announced a new iPhone in September.",
}
