// Package deptree models one dependency-parsed sentence as an arena of
// nodes indexed by position, with parent/child links resolved per line.
package deptree

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// RootLabel is the dependency label of a sentence root.
const RootLabel = "ROOT"

// Node is one token of a parsed sentence.
type Node struct {
	Word  string
	Tag   string
	Label string
	Head  int // head index as written in the input; its base is resolved per line
	Pos   int // 0-based position among the line's accepted tokens
}

// IsRoot reports whether n is marked as the sentence root. A root has no
// parent under either head-index base.
func (n Node) IsRoot() bool {
	return n.Head == 0 && n.Label == RootLabel
}

func (n Node) String() string {
	return fmt.Sprintf("%s/%s/%s/%d", n.Word, n.Tag, n.Label, n.Head)
}

var numericSegment = regexp.MustCompile(`^(\d+|[\d,]+\.?\d*)$`)

// ParseLine parses one line of the syntactic n-gram format. Top-level
// segments are separated by tabs; purely numeric segments (counts) are
// dropped, and the rest are split into whitespace-separated tokens of the
// form word/tag/label[/head]. It returns the accepted nodes and the
// number of tokens that were skipped as malformed.
func ParseLine(line string) (nodes []Node, skipped int) {
	for _, segment := range strings.Split(line, "\t") {
		segment = strings.TrimSpace(segment)
		if segment == "" || numericSegment.MatchString(segment) {
			continue
		}

		for _, token := range strings.Fields(segment) {
			node, ok := parseToken(token)
			if !ok {
				skipped++
				continue
			}
			node.Pos = len(nodes)
			nodes = append(nodes, node)
		}
	}
	return nodes, skipped
}

// parseToken splits a token on '/'. With four or more fields the last
// one is the head index and any extra leading fields belong to the word,
// so "and/or/CC/cc/3" parses as the word "and/or". Any integer head is
// accepted; one that addresses no node is left unresolved by the Forest.
func parseToken(token string) (Node, bool) {
	parts := strings.Split(token, "/")
	switch {
	case len(parts) < 3:
		return Node{}, false
	case len(parts) == 3:
		if parts[0] == "" {
			return Node{}, false
		}
		return Node{Word: parts[0], Tag: parts[1], Label: parts[2]}, true
	}

	n := len(parts)
	head := 0
	if raw := strings.TrimSpace(parts[n-1]); raw != "" {
		h, err := strconv.Atoi(raw)
		if err != nil {
			return Node{}, false
		}
		head = h
	}

	word := strings.Join(parts[:n-3], "/")
	if word == "" {
		return Node{}, false
	}
	return Node{
		Word:  word,
		Tag:   parts[n-3],
		Label: parts[n-2],
		Head:  head,
	}, true
}
