// Package verify runs guest programs on translated code and on a reference
// emulator and reports where the resulting CPU states disagree.
package verify

import (
	"encoding/json"
	"fmt"

	"github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"

	"github.com/colorfulnotion/armjit/cpu"
)

// Diff compares two CPU states as JSON. It reports whether they differ and,
// if so, an ASCII rendering of the difference.
func Diff(expected, actual cpu.State, coloring bool) (string, bool, error) {
	expJSON, err := json.Marshal(expected)
	if err != nil {
		return "", false, err
	}
	actJSON, err := json.Marshal(actual)
	if err != nil {
		return "", false, err
	}
	delta, err := gojsondiff.New().Compare(expJSON, actJSON)
	if err != nil {
		return "", false, fmt.Errorf("diffing states: %w", err)
	}
	if !delta.Modified() {
		return "", false, nil
	}
	var left interface{}
	if err := json.Unmarshal(expJSON, &left); err != nil {
		return "", true, err
	}
	cfg := formatter.AsciiFormatterConfig{
		ShowArrayIndex: true,
		Coloring:       coloring,
	}
	out, err := formatter.NewAsciiFormatter(left, cfg).Format(delta)
	if err != nil {
		return "", true, fmt.Errorf("formatting diff: %w", err)
	}
	return out, true, nil
}
