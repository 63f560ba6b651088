package sqlgen

import (
	"fmt"
	"strings"
)

// ParseTuples returns every top-level value tuple following VALUES, split into
// trimmed items. Quotes and nested parentheses such as NOW() or the sequence
// expression are respected.
func ParseTuples(statement string) ([][]string, error) {
	at := strings.Index(strings.ToUpper(statement), "VALUES")
	if at < 0 {
		return nil, fmt.Errorf("%w: no VALUES clause", ErrMalformedStatement)
	}
	body := statement[at+len("VALUES"):]

	var (
		tuples  [][]string
		items   []string
		item    strings.Builder
		depth   int
		inQuote bool
	)
	for i := 0; i < len(body); i++ {
		c := body[i]
		if inQuote {
			item.WriteByte(c)
			if c == '\'' {
				if i+1 < len(body) && body[i+1] == '\'' {
					item.WriteByte('\'')
					i++
					continue
				}
				inQuote = false
			}
			continue
		}
		switch {
		case c == '\'':
			inQuote = true
			item.WriteByte(c)
		case c == '(':
			if depth > 0 {
				item.WriteByte(c)
			}
			depth++
		case c == ')':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("%w: unbalanced parentheses", ErrMalformedStatement)
			}
			if depth == 0 {
				items = append(items, strings.TrimSpace(item.String()))
				item.Reset()
				tuples = append(tuples, items)
				items = nil
				continue
			}
			item.WriteByte(c)
		case c == ',' && depth == 1:
			items = append(items, strings.TrimSpace(item.String()))
			item.Reset()
		case depth > 0:
			item.WriteByte(c)
		}
	}
	if inQuote || depth != 0 {
		return nil, fmt.Errorf("%w: unterminated tuple", ErrMalformedStatement)
	}
	if len(tuples) == 0 {
		return nil, fmt.Errorf("%w: no value tuple", ErrMalformedStatement)
	}
	for i, t := range tuples {
		if len(t) != len(Columns) {
			return nil, fmt.Errorf("%w: tuple %d has %d values, want %d", ErrMalformedStatement, i, len(t), len(Columns))
		}
	}
	return tuples, nil
}

// ParseValues returns the single tuple of an individual statement.
func ParseValues(statement string) ([]string, error) {
	tuples, err := ParseTuples(statement)
	if err != nil {
		return nil, err
	}
	if len(tuples) != 1 {
		return nil, fmt.Errorf("%w: expected one tuple, found %d", ErrMalformedStatement, len(tuples))
	}
	return tuples[0], nil
}

func unquote(v string) string {
	if len(v) >= 2 && v[0] == '\'' && v[len(v)-1] == '\'' {
		return strings.ReplaceAll(v[1:len(v)-1], "''", "'")
	}
	return v
}
