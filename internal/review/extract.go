package review

import "encoding/json"

// extractJSON finds the first balanced JSON object embedded in text.
// Returns nil when no valid object is present.
func extractJSON(text []byte) []byte {
	if json.Valid(text) && len(text) > 0 && text[0] == '{' {
		return text
	}

	start := -1
	for i, b := range text {
		if b == '{' {
			start = i
			break
		}
	}
	if start == -1 {
		return nil
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		b := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case b == '\\':
				escaped = true
			case b == '"':
				inString = false
			}
			continue
		}
		switch b {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				candidate := text[start : i+1]
				if json.Valid(candidate) {
					return candidate
				}
				return nil
			}
		}
	}
	return nil
}
