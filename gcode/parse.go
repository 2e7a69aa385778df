package gcode

import (
	"strconv"
	"strings"
)

// paramKind is the declared type of one positional value in a Params
// marker's schema.
type paramKind int

const (
	kindInt paramKind = iota
	kindFloat
)

// validParamsFormat lists the recognised ";;"-prefixed marker labels
// and their parameter arity/types.
var validParamsFormat = map[string][]paramKind{
	"TC_TEMP_INITIALIZE":  {},
	"TC_TEMP_SHUTDOWN":    {},
	"BEFORE_LAYER_CHANGE": {kindInt, kindFloat},
	"AFTER_LAYER_CHANGE":  {kindInt, kindFloat},
	"TOOL_BLOCK_START":    {kindInt},
	"TOOL_BLOCK_END":      {kindInt},
}

// Parse tokenises a full gcode program into a fresh sequence. It performs
// no semantic checks beyond the marker label/arity table above; forbidden
// gcodes, fan rescaling and the default-tool injection are the
// validator's job (Validate).
func Parse(data []byte) (*List, error) {
	seq := NewList()

	content := strings.ReplaceAll(string(data), "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	lines := strings.Split(content, "\n")

	prevTool := -1

	for i, raw := range lines {
		lineNo := i + 1
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		switch {
		case strings.HasPrefix(line, ";;"):
			tok, err := parseParams(line, lineNo)
			if err != nil {
				return nil, err
			}
			seq.Append(tok)

		case strings.HasPrefix(line, ";"):
			seq.Append(NewComment(strings.TrimSpace(strings.TrimPrefix(line, ";"))))

		case len(line) > 0 && (line[0] == 'G' || line[0] == 'M'):
			seq.Append(parseGCodeLine(line))

		case len(line) > 0 && line[0] == 'T':
			if tok, ok := parseToolChangeLine(line, &prevTool); ok {
				seq.Append(tok)
			}
			// else: silently ignored (not a recognised line shape)

		default:
			// silently ignored
		}
	}

	return seq, nil
}

func parseParams(line string, lineNo int) (*Params, error) {
	body := line[2:] // strip leading ";;"

	var label, rawParams string
	if idx := strings.Index(body, ":"); idx >= 0 {
		label = strings.TrimSpace(body[:idx])
		rawParams = body[idx+1:]
	} else {
		label = strings.TrimSpace(body)
		rawParams = ""
	}

	schema, ok := validParamsFormat[label]
	if !ok {
		return nil, parseErrf(lineNo, line, "unrecognised marker label %q", label)
	}

	var rawValues []string
	if strings.TrimSpace(rawParams) != "" {
		for _, p := range strings.Split(rawParams, ",") {
			rawValues = append(rawValues, strings.TrimSpace(p))
		}
	}

	if len(rawValues) != len(schema) {
		return nil, parseErrf(lineNo, line, "marker %q expects %d parameter(s), got %d", label, len(schema), len(rawValues))
	}

	values := make([]interface{}, len(schema))
	for i, kind := range schema {
		switch kind {
		case kindInt:
			v, err := strconv.Atoi(rawValues[i])
			if err != nil {
				return nil, parseErrf(lineNo, line, "marker %q parameter %d is not an integer: %q", label, i, rawValues[i])
			}
			values[i] = v
		case kindFloat:
			v, err := strconv.ParseFloat(rawValues[i], 64)
			if err != nil {
				return nil, parseErrf(lineNo, line, "marker %q parameter %d is not a float: %q", label, i, rawValues[i])
			}
			values[i] = v
		}
	}

	return NewParams(label, values), nil
}

func parseGCodeLine(line string) *GCode {
	contents := line
	comment := ""
	if idx := strings.IndexByte(line, ';'); idx >= 0 {
		contents = strings.TrimSpace(line[:idx])
		comment = strings.TrimSpace(line[idx+1:])
	}

	fields := strings.Fields(contents)
	mnemonic := fields[0]
	params := map[string]string{}
	for _, f := range fields[1:] {
		if len(f) < 1 {
			continue
		}
		params[f[:1]] = f[1:]
	}

	return NewGCode(mnemonic, params, comment)
}

func parseToolChangeLine(line string, prevTool *int) (*ToolChange, bool) {
	contents := line
	if idx := strings.IndexByte(line, ';'); idx >= 0 {
		contents = strings.TrimSpace(line[:idx])
	}
	n, err := strconv.Atoi(contents[1:])
	if err != nil {
		return nil, false
	}
	tok := NewToolChange(*prevTool, n)
	*prevTool = n
	return tok, true
}
