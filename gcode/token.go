package gcode

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// GCode is a `G...`/`M...` instruction line: a mnemonic, a set of
// letter-keyed parameters (stored as raw strings; consumers interpret
// them numerically), and an optional trailing comment.
type GCode struct {
	node
	Mnemonic string
	Params   map[string]string
	Comment  string
}

// NewGCode builds a GCode token. params may be nil.
func NewGCode(mnemonic string, params map[string]string, comment string) *GCode {
	if params == nil {
		params = map[string]string{}
	}
	return &GCode{Mnemonic: mnemonic, Params: params, Comment: comment}
}

// Has reports whether parameter letter is present.
func (g *GCode) Has(letter string) bool {
	_, ok := g.Params[letter]
	return ok
}

// Float returns parameter letter parsed as a float64, and whether it
// was present and parseable.
func (g *GCode) Float(letter string) (float64, bool) {
	v, ok := g.Params[letter]
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// SetFloat sets parameter letter to the given value, formatted in the
// shortest decimal form that parses back to the same float64; no fixed
// number of decimal places is applied.
func (g *GCode) SetFloat(letter string, val float64) {
	g.Params[letter] = strconv.FormatFloat(val, 'f', -1, 64)
}

// SetInt sets parameter letter to an integer value.
func (g *GCode) SetInt(letter string, val int) {
	g.Params[letter] = strconv.Itoa(val)
}

func (g *GCode) String() string {
	var b strings.Builder
	b.WriteString(g.Mnemonic)

	keys := make([]string, 0, len(g.Params))
	for k := range g.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteByte(' ')
		b.WriteString(k)
		b.WriteString(g.Params[k])
	}
	if g.Comment != "" {
		b.WriteString(" ; ")
		b.WriteString(g.Comment)
	}
	return b.String()
}

// ToolChange is a `T<n>` line. PrevTool/NextTool use -1 to mean
// "no tool".
type ToolChange struct {
	node
	PrevTool int
	NextTool int
}

// NewToolChange builds a ToolChange token.
func NewToolChange(prevTool, nextTool int) *ToolChange {
	return &ToolChange{PrevTool: prevTool, NextTool: nextTool}
}

func (t *ToolChange) String() string {
	return fmt.Sprintf("T%d ; T%d -> T%d", t.NextTool, t.PrevTool, t.NextTool)
}

// Params is a structured `;;label:v1,v2,...` marker comment. Values are
// stored pre-typed (int or float64) per the label's declared arity.
type Params struct {
	node
	Label  string
	Values []interface{}
}

// NewParams builds a Params token.
func NewParams(label string, values []interface{}) *Params {
	return &Params{Label: label, Values: values}
}

// Int returns Values[i] as an int. Panics on an out-of-range index or
// type mismatch: both indicate a bug in the caller, not bad input (the
// parser already enforced arity and type against the label's schema).
func (p *Params) Int(i int) int {
	return p.Values[i].(int)
}

// Float returns Values[i] as a float64, accepting an int value too
// (ints widen to float for free).
func (p *Params) Float(i int) float64 {
	switch v := p.Values[i].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		panic(fmt.Sprintf("gcode: Params.Float: unexpected type %T", v))
	}
}

func (p *Params) String() string {
	parts := make([]string, len(p.Values))
	for i, v := range p.Values {
		switch val := v.(type) {
		case float64:
			parts[i] = strconv.FormatFloat(val, 'f', -1, 64)
		case int:
			parts[i] = strconv.Itoa(val)
		default:
			parts[i] = fmt.Sprintf("%v", val)
		}
	}
	return ";; " + p.Label + ":" + strings.Join(parts, ",")
}

// Comment is a free-text `;` line.
type Comment struct {
	node
	Text string
}

// NewComment builds a Comment token.
func NewComment(text string) *Comment {
	return &Comment{Text: text}
}

func (c *Comment) String() string {
	return "; " + c.Text
}
