package tool

import "sort"

// Tool categories group built-in tool names for agent configuration.
const (
	CategoryMath          = "math"
	CategoryTime          = "time"
	CategoryWeb           = "web"
	CategoryFilesystem    = "filesystem"
	CategoryWeather       = "weather"
	CategoryKnowledge     = "knowledge"
	CategoryResearch      = "research"
	CategoryPlanning      = "planning"
	CategoryOrchestration = "orchestration"
)

// categoryTools is static: a category may name tools that are not registered
// in a given process; lookups drop those silently.
var categoryTools = map[string][]string{
	CategoryMath:          {"calculator"},
	CategoryTime:          {"get_current_time"},
	CategoryWeb:           {"web_search", "fetch_url"},
	CategoryFilesystem:    {"read_file", "write_file", "list_directory"},
	CategoryWeather:       {"get_weather"},
	CategoryKnowledge:     {"search_knowledge_base"},
	CategoryResearch:      {"web_search", "fetch_url", "search_knowledge_base"},
	CategoryPlanning:      {"create_plan"},
	CategoryOrchestration: {"delegate_to_agent", "coordinate_agents"},
}

// CategoryTools returns the tool names of a category, or nil if unknown.
func CategoryTools(category string) []string {
	names := categoryTools[category]
	if names == nil {
		return nil
	}
	return append([]string(nil), names...)
}

// AllCategories returns every known category name, sorted.
func AllCategories() []string {
	out := make([]string, 0, len(categoryTools))
	for c := range categoryTools {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// ExpandCategories resolves categories to tool names and appends them to
// names, keeping first occurrence order and dropping duplicates.
func ExpandCategories(names []string, categories ...string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	add := func(n string) {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	for _, n := range names {
		add(n)
	}
	for _, c := range categories {
		for _, n := range categoryTools[c] {
			add(n)
		}
	}
	return out
}
