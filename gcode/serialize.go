package gcode

import "strings"

// Serialize renders seq back to gcode text, one token per line. It is
// the inverse of Parse modulo whitespace normalisation: token String()
// methods own the exact formatting of their own line.
func Serialize(seq *List) []byte {
	var b strings.Builder
	for tok := seq.Head(); tok != nil; tok = tok.Next() {
		b.WriteString(tok.String())
		b.WriteByte('\n')
	}
	return []byte(b.String())
}
