// Package util provides small, stateless helpers shared across the application.
// it has no dependencies on other internal packages.
package util

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

// adjectives and nouns form the readable part of a run slug. uniqueness comes from
// the hex suffix, not from the size of the word lists.
var adjectives = []string{
	"amber", "azure", "bold", "calm", "cedar", "clear", "crisp", "dawn",
	"dusk", "emerald", "fair", "firm", "frost", "gold", "grand", "green",
	"iron", "jade", "keen", "lunar", "maple", "noble", "north", "oak",
	"onyx", "pine", "prime", "quick", "quiet", "rapid", "ridge", "ruby",
	"sage", "silver", "slate", "solar", "steel", "stone", "swift", "teal",
	"tidal", "vast", "warm", "wild",
}

var nouns = []string{
	"arc", "bay", "beam", "bloom", "brook", "cliff", "cloud", "coast",
	"crest", "delta", "dune", "echo", "fern", "field", "ford", "forge",
	"fox", "gale", "glen", "grove", "hawk", "isle", "lake", "leaf",
	"lynx", "mesa", "mill", "moss", "path", "peak", "pond", "port",
	"reef", "ridge", "river", "root", "shore", "spire", "spring", "stream",
	"tide", "trail", "vale", "wave", "wing", "wood",
}

// GenerateSlug returns a file-name-safe slug "<label>-adjective-noun-xxxx", eg
// "17-0-amber-ridge-3f9a". the label is lowercased and everything that is not a letter
// or digit becomes a dash. an empty label is left out.
// the 16 bit suffix makes collisions negligible for the run counts of a single host,
// the slug column is still UNIQUE so a collision fails loudly.
func GenerateSlug(label string) string {
	adjective := adjectives[rand.IntN(len(adjectives))]
	noun := nouns[rand.IntN(len(nouns))]
	suffix := fmt.Sprintf("%04x", rand.Uint32()&0xFFFF)

	words := fmt.Sprintf("%s-%s-%s", adjective, noun, suffix)
	if sanitized := sanitizeLabel(label); sanitized != "" {
		return sanitized + "-" + words
	}
	return words
}

func sanitizeLabel(label string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '-'
		}
	}, label)
	return strings.Trim(mapped, "-")
}
