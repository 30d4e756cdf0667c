package router

// Static classification tables. Kept in one file, as a single module, so
// tests can pin exact values — Design Notes (spec.md §9) calls this out
// explicitly for "ad-hoc keyword lists".

// categoryKeywords maps each closed category to the words whose presence in
// a request's text counts as a signal for that category. Order is
// irrelevant; Classify scores every category independently.
var categoryKeywords = map[Category][]string{
	CategoryFileOps: {
		"file", "files", "folder", "directory", "read", "write", "open",
		"save", "copy", "move", "rename", "path", "disk",
	},
	CategoryCodeGen: {
		"code", "function", "script", "program", "implement", "write",
		"class", "method", "refactor", "generate", "programming", "bug",
		"test", "compile",
	},
	CategoryDataAnalysis: {
		"data", "analyze", "analysis", "chart", "graph", "statistics",
		"dataset", "csv", "excel", "report", "visualize", "trend",
	},
	CategorySystemInteraction: {
		"run", "execute", "process", "command", "shell", "terminal",
		"install", "service", "daemon",
	},
	CategoryDesktopAutomation: {
		"click", "screenshot", "window", "desktop", "mouse", "keyboard",
		"screen", "ui", "automate",
	},
	CategorySystemMonitoring: {
		"monitor", "cpu", "memory", "disk", "usage", "performance",
		"metrics", "uptime", "health", "status",
	},
	CategoryResearch: {
		"research", "find", "search", "investigate", "explain", "compare",
		"best", "practices", "learn", "summarize",
	},
}

// complexityIndicators add +1 to the computed complexity for each indicator
// present in the text (repeats count once); "comprehensive" alone is worth
// +2 (applied separately).
var complexityIndicators = []string{
	"multiple", "several", "complex", "integrate", "integration",
	"across", "combine", "orchestrate", "pipeline",
}

// destructiveKeywords trigger RequiresHumanApproval regardless of complexity.
var destructiveKeywords = []string{
	"delete", "remove", "format", "install", "uninstall", "drop",
	"overwrite", "kill", "terminate", "wipe", "destroy",
}

// deicticWords signal the request depends on context not present in its own
// text ("this", "that", the "current" file, ...).
var deicticWords = []string{
	"this", "that", "these", "those", "current", "previous", "it",
	"above", "earlier", "last",
}

// persistKeywords promote code_gen to hybrid: the generated code is meant to
// be written to disk, which needs the file_ops/MCP side too.
var persistKeywords = []string{"save", "write to", "persist", "file", "disk"}

// baseComplexity is the starting complexity score per category before
// indicator keywords are added.
var baseComplexity = map[Category]int{
	CategoryFileOps:           2,
	CategoryCodeGen:           3,
	CategoryDataAnalysis:      3,
	CategorySystemInteraction: 2,
	CategoryDesktopAutomation: 3,
	CategorySystemMonitoring:  2,
	CategoryResearch:          3,
	CategoryHybrid:            4,
	CategoryGeneral:           2,
}

// suggestedToolsByCategory is the static per-category tool catalogue
// RankTools reorders by leading-verb match.
var suggestedToolsByCategory = map[Category][]string{
	CategoryFileOps:           {"read_file", "write_file", "list_directory", "move_file", "delete_file"},
	CategoryCodeGen:           {"write_file", "run_tests", "lint", "format_code", "read_file"},
	CategoryDataAnalysis:      {"read_file", "run_query", "plot_chart", "summarize_data"},
	CategorySystemInteraction: {"run_command", "list_processes", "install_package", "read_logs"},
	CategoryDesktopAutomation: {"screenshot", "click", "type_text", "read_window"},
	CategorySystemMonitoring:  {"cpu_usage", "memory_usage", "disk_usage", "process_list"},
	CategoryResearch:          {"web_search", "read_file", "summarize_data"},
	CategoryHybrid:            {"web_search", "write_file", "run_command"},
	CategoryGeneral:           {},
}
