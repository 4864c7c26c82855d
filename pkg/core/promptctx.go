package core

import (
	"fmt"
	"strings"
)

// MemoryContextOptions controls formatting of memory search results for
// prompt injection.
type MemoryContextOptions struct {
	// MaxResults caps the number of included results.
	MaxResults *int
	// MinScore drops results below this relevance.
	MinScore *float64
	// Format selects "structured" (XML tags, the default) or "natural".
	Format string
	// Tag names the outer XML wrapper. Defaults to "memory-context".
	Tag string
	// MaxChars caps the summed length of the rendered entries (plus the
	// header in natural format); the wrapper tags and joining newlines are
	// not counted. Entries past the cap are dropped. Defaults to 4000.
	MaxChars *int
}

// FormatAge renders a millisecond duration with an s/m/h/d suffix.
func FormatAge(ms uint64) string {
	seconds := ms / 1000
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	minutes := seconds / 60
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}
	hours := minutes / 60
	if hours < 24 {
		return fmt.Sprintf("%dh", hours)
	}
	return fmt.Sprintf("%dd", hours/24)
}

// FormatMemoryContext renders a list of scored volumes either as a
// structured <memory-context> XML wrapper with per-entry topic, relevance,
// and age attributes, or as a natural-language bullet list. Returns an empty
// string when nothing passes the filters.
func FormatMemoryContext(results []Lookup, options MemoryContextOptions, now uint64) string {
	if len(results) == 0 {
		return ""
	}

	maxResults := len(results)
	if options.MaxResults != nil {
		maxResults = *options.MaxResults
	}
	minScore := 0.0
	if options.MinScore != nil {
		minScore = *options.MinScore
	}
	format := options.Format
	if format == "" {
		format = "structured"
	}
	tag := options.Tag
	if tag == "" {
		tag = "memory-context"
	}
	maxChars := 4000
	if options.MaxChars != nil {
		maxChars = *options.MaxChars
	}

	filtered := make([]Lookup, 0, len(results))
	for _, r := range results {
		if r.Score < minScore {
			continue
		}
		filtered = append(filtered, r)
		if len(filtered) >= maxResults {
			break
		}
	}
	if len(filtered) == 0 {
		return ""
	}

	entryTopic := func(v Volume) string {
		if topic, ok := v.Metadata["topic"]; ok {
			return topic
		}
		return "uncategorized"
	}

	if format == "natural" {
		header := "Relevant context from library:"
		lines := []string{header}
		chars := len(header)
		for _, r := range filtered {
			line := fmt.Sprintf("- [%s] (relevance: %.2f) %s", entryTopic(r.Volume), r.Score, r.Volume.Text)
			if chars+len(line) > maxChars {
				break
			}
			chars += len(line)
			lines = append(lines, line)
		}
		return strings.Join(lines, "\n")
	}

	var entries []string
	chars := 0
	for _, r := range filtered {
		age := "0s"
		if now >= r.Volume.Timestamp {
			age = FormatAge(now - r.Volume.Timestamp)
		}
		entry := fmt.Sprintf("<entry topic=%q relevance=\"%.2f\" age=%q>\n%s\n</entry>",
			entryTopic(r.Volume), r.Score, age, r.Volume.Text)
		if chars+len(entry) > maxChars {
			break
		}
		chars += len(entry)
		entries = append(entries, entry)
	}

	return fmt.Sprintf("<%s>\n%s\n</%s>", tag, strings.Join(entries, "\n"), tag)
}
