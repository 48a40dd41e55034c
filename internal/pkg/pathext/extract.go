// Package pathext extracts verb-argument dependency paths from
// pre-parsed sentences.
package pathext

import (
	"strings"
	"sync"

	"github.com/bcongdon/dirt/internal/pkg/deptree"
	log "github.com/sirupsen/logrus"
)

// Sep separates the verb, relation and filler of a path string.
const Sep = " -> "

// maxSampleLen bounds the length of input lines quoted in diagnostics.
const maxSampleLen = 200

// Extractor turns parsed sentence lines into path strings of the form
// "verb -> relation -> filler". An Extractor holds no per-line state and
// is safe for concurrent use.
type Extractor struct {
	stem           Stemmer
	pronounFillers bool

	malformedOnce sync.Once
	noPathsOnce   sync.Once
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithStemmer sets the stemmer applied to verbs and fillers.
func WithStemmer(s Stemmer) Option {
	return func(e *Extractor) {
		e.stem = s
	}
}

// WithPronounFillers lets pronoun-tagged dependents fill a slot.
func WithPronounFillers(enabled bool) Option {
	return func(e *Extractor) {
		e.pronounFillers = enabled
	}
}

// NewExtractor returns an Extractor using the default stemmer and no
// pronoun fillers, modified by options.
func NewExtractor(options ...Option) *Extractor {
	e := &Extractor{stem: Stem}
	for _, f := range options {
		f(e)
	}
	return e
}

// Extract parses line and returns the paths found in it. The result is
// freshly computed on every call, so re-running a line yields the same
// paths.
func (e *Extractor) Extract(line string) []string {
	nodes, skipped := deptree.ParseLine(line)
	if skipped > 0 {
		e.malformedOnce.Do(func() {
			log.Debugf("Skipped %d malformed token(s) in line (further occurrences not logged): %s", skipped, sample(line))
		})
	}

	paths := e.ExtractForest(deptree.NewForest(nodes))
	if len(paths) == 0 {
		e.noPathsOnce.Do(func() {
			log.Debugf("First line with no extracted paths: %s", sample(line))
		})
	}
	return paths
}

// ExtractForest returns the paths of an already resolved forest.
func (e *Extractor) ExtractForest(f *deptree.Forest) []string {
	var paths []string
	for i, verb := range f.Nodes {
		if !isHeadVerb(verb) {
			continue
		}

		for _, c := range f.Children(i) {
			child := f.Nodes[c]
			if e.isFiller(child) {
				paths = append(paths, e.format(verb, child.Label, child))
				continue
			}
			if !isPreposition(child) {
				continue
			}
			for _, pc := range f.Children(c) {
				if filler := f.Nodes[pc]; e.isFiller(filler) {
					paths = append(paths, e.format(verb, child.Word, filler))
				}
			}
		}
	}
	return paths
}

func (e *Extractor) format(verb deptree.Node, relation string, filler deptree.Node) string {
	return FormatPath(e.stem(verb.Word), relation, e.stem(filler.Word))
}

// FormatPath joins the parts of a path string.
func FormatPath(verb, relation, filler string) string {
	return verb + Sep + relation + Sep + filler
}

// Split breaks a path string into its bare path ("verb -> relation"), its
// relation and its filler. ok is false if path does not have three parts.
func Split(path string) (bare, relation, filler string, ok bool) {
	parts := strings.SplitN(path, Sep, 3)
	if len(parts) != 3 {
		return "", "", "", false
	}

	verb := strings.TrimSpace(parts[0])
	relation = strings.TrimSpace(parts[1])
	filler = strings.TrimSpace(parts[2])
	if verb == "" || relation == "" || filler == "" {
		return "", "", "", false
	}
	return verb + Sep + relation, relation, filler, true
}

func sample(line string) string {
	if len(line) > maxSampleLen {
		return line[:maxSampleLen] + "..."
	}
	return line
}
