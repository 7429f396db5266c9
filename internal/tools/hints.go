package tools

import (
	"fmt"
	"sort"
	"strings"
)

// generateSearchHints derives analysis guidance from a page of Graylog
// results so callers can iterate toward useful queries without extra
// round trips.
func generateSearchHints(messages []interface{}, total int, query string) map[string]interface{} {
	hints := map[string]interface{}{
		"analysis_tips":     []string{},
		"suggested_filters": []string{},
		"key_fields":        []string{"timestamp", "level", "source", "message"},
	}

	if len(messages) == 0 {
		hints["analysis_tips"] = []string{"No results found. Try broadening your query or time range."}
		return hints
	}

	tips := []string{}
	filters := []string{}

	levelCounts := map[string]int{}
	sourceCounts := map[string]int{}
	for _, raw := range messages {
		wrapper, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		msg, ok := wrapper["message"].(map[string]interface{})
		if !ok {
			continue
		}

		level := fieldValue(msg, "level", "Level")
		levelCounts[level]++

		source := fieldValue(msg, "source", "application", "service")
		sourceCounts[source]++
	}

	// Graylog ships both syslog numeric levels and textual ones.
	errorCount := levelCounts["ERROR"] + levelCounts["error"] + levelCounts["3"]
	warnCount := levelCounts["WARN"] + levelCounts["WARNING"] + levelCounts["warn"] + levelCounts["4"]

	if errorCount > 0 {
		tips = append(tips, fmt.Sprintf("Found %d ERROR level logs - investigate these first", errorCount))
		filters = append(filters, "level:ERROR")
	}
	if warnCount > 0 {
		tips = append(tips, fmt.Sprintf("Found %d WARN level logs - check for degradation patterns", warnCount))
	}

	hints["level_breakdown"] = levelCounts
	hints["source_breakdown"] = topCounts(sourceCounts, 5)

	if len(sourceCounts) > 1 {
		top := topKey(sourceCounts)
		tips = append(tips, fmt.Sprintf("Most logs from '%s' - filter by source to focus", top))
		filters = append(filters, "source:"+top)
	}

	if total > len(messages) {
		tips = append(tips, fmt.Sprintf(
			"Results truncated (%d of %d). Add filters or narrow time range for complete data.",
			len(messages), total))
	}

	lower := strings.ToLower(query)
	if !strings.Contains(lower, "error") && !strings.Contains(lower, "level") {
		filters = append(filters, "level:ERROR", "level:WARN")
	}

	hints["analysis_tips"] = tips
	hints["suggested_filters"] = filters
	return hints
}

// fieldValue returns the first present key rendered as a string, or
// "unknown" when none are set.
func fieldValue(msg map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if v, ok := msg[key]; ok && v != nil {
			return fmt.Sprintf("%v", v)
		}
	}
	return "unknown"
}

// topCounts keeps the n highest-count entries.
func topCounts(counts map[string]int, n int) map[string]int {
	if len(counts) <= n {
		return counts
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	top := make(map[string]int, n)
	for _, k := range keys[:n] {
		top[k] = counts[k]
	}
	return top
}

// topKey returns the highest-count key, ties broken alphabetically.
func topKey(counts map[string]int) string {
	best := ""
	bestCount := -1
	for k, c := range counts {
		if c > bestCount || (c == bestCount && k < best) {
			best = k
			bestCount = c
		}
	}
	return best
}
