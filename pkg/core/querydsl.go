package core

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ParsedQuery is the structured form of a human query DSL string.
type ParsedQuery struct {
	TextSearch      *TextSearchParsed `json:"textSearch"`
	TopicFilter     []string          `json:"topicFilter,omitempty"`
	MetadataFilters []MetadataFilter  `json:"metadataFilters,omitempty"`
	MinScore        *float64          `json:"minScore,omitempty"`
}

// TextSearchParsed is the text component of a parsed query.
type TextSearchParsed struct {
	Query string `json:"query"`
	Mode  string `json:"mode"`
}

// dslTokenize splits input on spaces while keeping quoted strings as single
// tokens. An unterminated quote consumes the rest of the string.
func dslTokenize(input string) []string {
	var tokens []string
	chars := []rune(input)
	n := len(chars)
	i := 0

	for i < n {
		for i < n && chars[i] == ' ' {
			i++
		}
		if i >= n {
			break
		}

		if chars[i] == '"' {
			start := i
			i++ // skip opening quote
			closing := -1
			for j := i; j < n; j++ {
				if chars[j] == '"' {
					closing = j
					break
				}
			}
			if closing < 0 {
				tokens = append(tokens, string(chars[start:]))
				break
			}
			tokens = append(tokens, string(chars[start:closing+1]))
			i = closing + 1
		} else {
			start := i
			for i < n && chars[i] != ' ' {
				i++
			}
			tokens = append(tokens, string(chars[start:i]))
		}
	}

	return tokens
}

// ParseQuery parses the human query DSL into a ParsedQuery.
//
// Supported syntax:
//   - topic:path          -- filter by topic
//   - metadata:key=value  -- metadata equals filter
//   - "quoted text"       -- exact phrase search
//   - fuzzy~term          -- fuzzy text search
//   - score>N             -- minimum score threshold
//   - plain text          -- BM25 search (default)
func ParseQuery(dsl string) ParsedQuery {
	tokens := dslTokenize(dsl)

	var topics []string
	var metadataFilters []MetadataFilter
	var plainParts []string

	var quotedText, fuzzyText *string
	var minScore *float64

	for _, token := range tokens {
		switch {
		case strings.HasPrefix(token, "topic:"):
			if value := token[len("topic:"):]; value != "" {
				topics = append(topics, value)
			}
		case strings.HasPrefix(token, "metadata:"):
			rest := token[len("metadata:"):]
			if eq := strings.Index(rest, "="); eq > 0 {
				value, _ := json.Marshal(rest[eq+1:])
				metadataFilters = append(metadataFilters, MetadataFilter{
					Key:   rest[:eq],
					Value: value,
					Mode:  "eq",
				})
			}
		case strings.HasPrefix(token, "\""):
			var q string
			if strings.HasSuffix(token, "\"") && len(token) > 1 {
				q = token[1 : len(token)-1]
			} else {
				// Unterminated quote, drop the opening quote only.
				q = token[1:]
			}
			quotedText = &q
		case strings.HasPrefix(token, "fuzzy~"):
			if value := token[len("fuzzy~"):]; value != "" {
				fuzzyText = &value
			}
		case strings.HasPrefix(token, "score>"):
			if v, err := strconv.ParseFloat(token[len("score>"):], 64); err == nil {
				minScore = &v
			}
		default:
			plainParts = append(plainParts, token)
		}
	}

	var textSearch *TextSearchParsed
	switch {
	case quotedText != nil:
		textSearch = &TextSearchParsed{Query: *quotedText, Mode: "exact"}
	case fuzzyText != nil:
		textSearch = &TextSearchParsed{Query: *fuzzyText, Mode: "fuzzy"}
	default:
		textSearch = &TextSearchParsed{Query: strings.Join(plainParts, " "), Mode: "bm25"}
	}

	return ParsedQuery{
		TextSearch:      textSearch,
		TopicFilter:     topics,
		MetadataFilters: metadataFilters,
		MinScore:        minScore,
	}
}
