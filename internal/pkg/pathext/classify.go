package pathext

import (
	"strings"

	"github.com/bcongdon/dirt/internal/pkg/deptree"
)

var auxiliaries = map[string]bool{
	"is":   true,
	"are":  true,
	"was":  true,
	"were": true,
	"be":   true,
	"been": true,
	"am":   true,
}

var pronounTags = map[string]bool{
	"PRP":  true,
	"PRP$": true,
	"WP":   true,
}

func isVerb(n deptree.Node) bool {
	return strings.HasPrefix(n.Tag, "VB")
}

func isPreposition(n deptree.Node) bool {
	return n.Tag == "IN" || n.Tag == "TO"
}

// isAuxiliary reports whether n is a copula or auxiliary verb form.
func isAuxiliary(n deptree.Node) bool {
	return isVerb(n) && auxiliaries[strings.ToLower(n.Word)]
}

// isHeadVerb reports whether paths are extracted below n. Auxiliaries
// qualify only at the root of the sentence or of a clausal complement.
func isHeadVerb(n deptree.Node) bool {
	if !isVerb(n) {
		return false
	}
	return !isAuxiliary(n) || n.Label == deptree.RootLabel || n.Label == "ccomp"
}

func (e *Extractor) isFiller(n deptree.Node) bool {
	if strings.HasPrefix(n.Tag, "NN") || n.Tag == "DT" {
		return true
	}
	return e.pronounFillers && pronounTags[n.Tag]
}
