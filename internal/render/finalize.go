package render

import (
	"regexp"
	"strings"
)

// ProtectDecl defines the protection wrapper as a no-op macro
const ProtectDecl = `\newcommand{\ldiffentity}[1]{#1}`

var (
	beginDocRegex = regexp.MustCompile(`(?m)^[^%\n]*?\\begin\s*\{document\}`)
	endDocRegex   = regexp.MustCompile(`(?m)^[^%\n]*?\\end\s*\{document\}`)
)

// Nocite returns the \nocite command listing keys in order
func Nocite(keys []string) string {
	return `\nocite{` + strings.Join(keys, ",") + `}`
}

// Finalize inserts a \nocite line for keys before every uncommented
// \end{document} line so the bibliography keeps all original entries. If
// protect is set, the \ldiffentity definition is inserted before every
// uncommented \begin{document} line.
func Finalize(doc string, keys []string, protect bool) string {
	nocite := Nocite(keys) + "\n"
	doc = endDocRegex.ReplaceAllStringFunc(doc, func(m string) string {
		return nocite + m
	})
	if protect {
		doc = beginDocRegex.ReplaceAllStringFunc(doc, func(m string) string {
			return ProtectDecl + "\n" + m
		})
	}
	return doc
}
