package stream

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
)

const (
	maxRows    = 10
	maxColumns = 4

	missingCell = "-"
	nestedCell  = "…"
	leadIn      = "Here is a concise summary:"
)

// Summarize renders raw tool outputs as short markdown. Each output is
// expected to carry a content list of {type, text} entries. The first text
// fragment that parses as JSON drives a table or list; otherwise the raw
// text lines are listed. An empty result means there is nothing to say.
func Summarize(outputs []json.RawMessage) string {
	texts := textFragments(outputs)

	if parsed, ok := firstJSON(texts); ok {
		if arr, ok := listOf(parsed); ok {
			return renderList(arr)
		}
	}

	compact := strings.TrimSpace(strings.Join(texts, "\n"))
	if compact == "" {
		return ""
	}
	var lines []string
	for _, l := range strings.Split(compact, "\n") {
		if l == "" {
			continue
		}
		lines = append(lines, "- "+l)
		if len(lines) == maxRows {
			break
		}
	}
	return leadIn + "\n\n" + strings.Join(lines, "\n")
}

// textFragments collects every string text entry in output order, then
// fragment order.
func textFragments(outputs []json.RawMessage) []string {
	var texts []string
	for _, out := range outputs {
		content := gjson.GetBytes(out, "content")
		if !content.IsArray() {
			continue
		}
		content.ForEach(func(_, c gjson.Result) bool {
			if c.Get("type").String() == "text" {
				if t := c.Get("text"); t.Type == gjson.String {
					texts = append(texts, t.Str)
				}
			}
			return true
		})
	}
	return texts
}

// firstJSON returns the first fragment that is valid JSON. Later fragments
// are never inspected structurally.
func firstJSON(texts []string) (gjson.Result, bool) {
	for _, t := range texts {
		if gjson.Valid(t) {
			return gjson.Parse(t), true
		}
	}
	return gjson.Result{}, false
}

// listOf returns v when it is an array, or the first array-valued field
// of v when it is an object.
func listOf(v gjson.Result) ([]gjson.Result, bool) {
	if v.IsArray() {
		return v.Array(), true
	}
	if !v.IsObject() {
		return nil, false
	}
	var found gjson.Result
	v.ForEach(func(_, field gjson.Result) bool {
		if field.IsArray() {
			found = field
			return false
		}
		return true
	})
	if !found.Exists() {
		return nil, false
	}
	return found.Array(), true
}

func renderList(arr []gjson.Result) string {
	if len(arr) == 0 {
		return "Found 0 items."
	}
	shown := arr
	if len(shown) > maxRows {
		shown = shown[:maxRows]
	}

	var rows []string
	if first := arr[0]; first.IsObject() {
		columns := recordKeys(first)
		if len(columns) == 0 {
			for _, rec := range shown {
				rows = append(rows, "- "+compactJSON(rec))
			}
			return header(len(arr)) + strings.Join(rows, "\n")
		}
		rows = append(rows, tableRow(columns))
		sep := make([]string, len(columns))
		for i := range sep {
			sep[i] = "---"
		}
		rows = append(rows, tableRow(sep))
		for _, rec := range shown {
			cells := make([]string, len(columns))
			for i, col := range columns {
				cells[i] = cell(field(rec, col))
			}
			rows = append(rows, tableRow(cells))
		}
	} else {
		for _, v := range shown {
			if v.Type == gjson.String {
				rows = append(rows, "- "+v.Str)
			} else {
				rows = append(rows, "- "+compactJSON(v))
			}
		}
	}

	out := header(len(arr)) + strings.Join(rows, "\n")
	if more := len(arr) - len(shown); more > 0 {
		out += fmt.Sprintf("\n\n…and %d more.", more)
	}
	return out
}

func header(n int) string {
	return fmt.Sprintf("Found %d items.\n\n", n)
}

// field returns the value of key in rec. A duplicated key resolves to its
// last occurrence.
func field(rec gjson.Result, key string) gjson.Result {
	var out gjson.Result
	if !rec.IsObject() {
		return out
	}
	rec.ForEach(func(k, v gjson.Result) bool {
		if k.Str == key {
			out = v
		}
		return true
	})
	return out
}

// recordKeys returns up to maxColumns distinct keys in document order.
func recordKeys(rec gjson.Result) []string {
	var keys []string
	seen := make(map[string]bool)
	rec.ForEach(func(k, _ gjson.Result) bool {
		if !seen[k.Str] {
			seen[k.Str] = true
			keys = append(keys, k.Str)
		}
		return len(keys) < maxColumns
	})
	return keys
}

func cell(v gjson.Result) string {
	switch v.Type {
	case gjson.Null:
		return missingCell
	case gjson.String:
		return v.Str
	case gjson.Number, gjson.True, gjson.False:
		return v.Raw
	case gjson.JSON:
		return nestedCell
	}
	return missingCell
}

func tableRow(cells []string) string {
	return "| " + strings.Join(cells, " | ") + " |"
}

func compactJSON(v gjson.Result) string {
	return string(pretty.Ugly([]byte(v.Raw)))
}
