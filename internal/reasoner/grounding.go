package reasoner

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// GroundingIndex retrieves documentation snippets relevant to an error code
// or migration stage by keyword overlap. It exists to ground oracle prompts
// in internal runbooks rather than model priors.
type GroundingIndex struct {
	snippets []groundingSnippet
}

type groundingSnippet struct {
	source string
	text   string
	tokens map[string]struct{}
}

// LoadGroundingIndex reads every .md and .txt file under dir, splitting each
// into paragraph snippets. A missing directory yields an empty index.
func LoadGroundingIndex(dir string) (*GroundingIndex, error) {
	idx := &GroundingIndex{}
	if dir == "" {
		return idx, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return idx, nil
		}
		return nil, err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".md" && ext != ".txt" {
			continue
		}
		f, err := os.Open(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		idx.addParagraphs(entry.Name(), f)
		f.Close()
	}
	return idx, nil
}

func (g *GroundingIndex) addParagraphs(source string, f *os.File) {
	scanner := bufio.NewScanner(f)
	var current strings.Builder
	flush := func() {
		text := strings.TrimSpace(current.String())
		current.Reset()
		if text == "" {
			return
		}
		g.snippets = append(g.snippets, groundingSnippet{
			source: source,
			text:   text,
			tokens: tokenize(text),
		})
	}
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		current.WriteString(line)
		current.WriteString(" ")
	}
	flush()
}

// Retrieve returns up to limit snippets ranked by keyword overlap with the
// query terms. Empty when nothing overlaps.
func (g *GroundingIndex) Retrieve(query string, limit int) []string {
	if limit <= 0 {
		limit = 3
	}
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return nil
	}

	type scored struct {
		idx   int
		score int
	}
	var matches []scored
	for i, s := range g.snippets {
		score := 0
		for tok := range queryTokens {
			if _, ok := s.tokens[tok]; ok {
				score++
			}
		}
		if score > 0 {
			matches = append(matches, scored{idx: i, score: score})
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].idx < matches[j].idx
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}

	out := make([]string, 0, len(matches))
	for _, m := range matches {
		s := g.snippets[m.idx]
		out = append(out, s.source+": "+s.text)
	}
	return out
}

func tokenize(text string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, word := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		if len(word) < 3 {
			continue
		}
		tokens[word] = struct{}{}
	}
	return tokens
}
