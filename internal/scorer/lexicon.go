// Package scorer assigns each review a 0..1 quality score from its length,
// domain vocabulary, social proof and spam signals.
package scorer

import (
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Lexicon holds the vocabulary the scorer matches against review text.
type Lexicon struct {
	Keywords    []string `yaml:"keywords"`
	SpamMarkers []string `yaml:"spam_markers"`
}

// DefaultLexicon returns the restaurant vocabulary.
func DefaultLexicon() Lexicon {
	return Lexicon{
		Keywords: []string{
			"food", "service", "staff", "taste", "flavor", "fresh",
			"price", "value", "portion", "menu", "atmosphere", "ambiance",
			"wait", "order", "delivery", "clean", "quality", "delicious",
			"crust", "sauce", "server", "owner", "takeout", "dine in",
		},
		SpamMarkers: []string{
			"http://", "https://", "www.", "click here", "promo code",
			"discount code", "use my code", "follow me", "check out my",
			"dm me", "free gift", "giveaway",
		},
	}
}

// LoadLexicon reads a YAML lexicon from path. An empty path returns
// DefaultLexicon. Lists missing from the file keep their defaults.
func LoadLexicon(path string) (Lexicon, error) {
	lex := DefaultLexicon()
	if path == "" {
		return lex, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Lexicon{}, eris.Wrapf(err, "scorer: read lexicon %s", path)
	}

	var file Lexicon
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Lexicon{}, eris.Wrapf(err, "scorer: parse lexicon %s", path)
	}
	if len(file.Keywords) > 0 {
		lex.Keywords = file.Keywords
	}
	if len(file.SpamMarkers) > 0 {
		lex.SpamMarkers = file.SpamMarkers
	}

	if err := ValidateLexicon(lex); err != nil {
		return Lexicon{}, err
	}
	return lex, nil
}

// ValidateLexicon checks that the lexicon has usable entries.
func ValidateLexicon(l Lexicon) error {
	var errs []string

	if len(l.Keywords) == 0 {
		errs = append(errs, "keywords must not be empty")
	}
	for i, k := range l.Keywords {
		if strings.TrimSpace(k) == "" {
			errs = append(errs, fmt.Sprintf("keywords[%d] is blank", i))
		}
	}
	for i, m := range l.SpamMarkers {
		if strings.TrimSpace(m) == "" {
			errs = append(errs, fmt.Sprintf("spam_markers[%d] is blank", i))
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("scorer: lexicon validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
