package runtime

import (
	"sort"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/bash"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
)

// langToGrammar maps grammar names to tree-sitter Language objects.
// Lazily initialized on first call via sync.Once.
var (
	langToGrammar map[string]*sitter.Language
	grammarsOnce  sync.Once
)

func initGrammars() {
	grammarsOnce.Do(func() {
		langToGrammar = map[string]*sitter.Language{
			"bash":       bash.GetLanguage(),
			"javascript": javascript.GetLanguage(),
			"python":     python.GetLanguage(),
		}
	})
}

// ParserForLanguage returns the tree-sitter Language for a grammar name.
// Returns (nil, false) if the grammar is not bundled.
func ParserForLanguage(lang string) (*sitter.Language, bool) {
	initGrammars()
	l, ok := langToGrammar[lang]
	return l, ok
}

// Languages returns the bundled grammar names, sorted.
func Languages() []string {
	initGrammars()
	names := make([]string, 0, len(langToGrammar))
	for name := range langToGrammar {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
