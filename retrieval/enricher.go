package retrieval

import (
	"context"
	"regexp"
	"strings"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mamaope/legalrag/vectorstore"
)

// headingPattern matches structural legal headings such as "Article 80" or
// "Section 4(2)".
var headingPattern = regexp.MustCompile(`(?i)^(Article|Section|Clause|Chapter|Part)\s+\w+`)

// Enricher infers a human-readable locator label for each selected chunk by
// scanning neighboring chunks from the same page and source for a heading.
// It issues one extra index query per chunk, so it is an optional pipeline
// stage.
type Enricher struct {
	index  vectorstore.Index
	window int
	logger *zap.Logger
}

// NewEnricher creates a context enricher. window bounds the neighbor query
// to 2*window+1 chunks.
func NewEnricher(index vectorstore.Index, window int, logger *zap.Logger) *Enricher {
	if window <= 0 {
		window = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enricher{
		index:  index,
		window: window,
		logger: logger.With(zap.String("component", "enricher")),
	}
}

// Enrich resolves a section label for every hit. Neighbor lookups run
// concurrently with bounded parallelism; a failed or empty lookup degrades
// to the page-number label rather than failing the retrieval.
func (e *Enricher) Enrich(ctx context.Context, hits []vectorstore.SearchHit) []Chunk {
	chunks := make([]Chunk, len(hits))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for i, hit := range hits {
		g.Go(func() error {
			chunks[i] = e.enrichOne(gctx, hit)
			return nil
		})
	}
	_ = g.Wait()

	return chunks
}

func (e *Enricher) enrichOne(ctx context.Context, hit vectorstore.SearchHit) Chunk {
	chunk := Chunk{
		Label:    pageLabel(hit.PageLabel),
		Content:  strings.TrimSpace(hit.Content),
		Locator:  hit.PageLabel,
		SourceID: hit.SourceID,
	}

	filter := vectorstore.PageFilter(hit.PageLabel, hit.SourceID)
	neighbors, err := e.index.QueryByFilter(ctx, filter, e.window*2+1)
	if err != nil {
		e.logger.Warn("neighbor lookup failed, keeping page label",
			zap.String("source", hit.SourceID),
			zap.String("page", hit.PageLabel),
			zap.Error(err))
		return chunk
	}

	if heading := findBestHeading(neighbors); heading != "" {
		chunk.Label = heading
	}
	return chunk
}

// pageLabel is the fallback locator label.
func pageLabel(page string) string {
	if page == "" {
		page = "?"
	}
	return "Page " + page
}

// findBestHeading scans neighbor text line by line for the most likely
// section or article title. First match in document order wins.
func findBestHeading(neighbors []vectorstore.SearchHit) string {
	for _, n := range neighbors {
		for _, line := range strings.Split(strings.TrimSpace(n.Content), "\n") {
			if isShoutedHeading(line) {
				return titleCase(line)
			}
			if headingPattern.MatchString(line) {
				return strings.TrimSpace(line)
			}
		}
	}
	return ""
}

// isShoutedHeading reports whether line is a short, fully upper-case line
// (at most 12 words, at least one letter).
func isShoutedHeading(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" || len(strings.Fields(line)) > 12 {
		return false
	}

	hasLetter := false
	for _, r := range line {
		if unicode.IsLetter(r) {
			hasLetter = true
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return hasLetter
}

// titleCase converts an all-caps heading to title case for readability.
func titleCase(s string) string {
	words := strings.Fields(strings.TrimSpace(s))
	for i, w := range words {
		runes := []rune(strings.ToLower(w))
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
