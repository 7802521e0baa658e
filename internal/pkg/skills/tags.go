package skills

import (
	"path/filepath"
	"sort"
	"strings"
)

// extensionTags 文件扩展名 -> 语言/主题标签
var extensionTags = map[string]string{
	"py":   "python",
	"js":   "javascript",
	"ts":   "typescript",
	"tsx":  "typescript",
	"jsx":  "javascript",
	"go":   "golang",
	"rs":   "rust",
	"rb":   "ruby",
	"java": "java",
	"kt":   "kotlin",
	"md":   "documentation",
	"yaml": "configuration",
	"yml":  "configuration",
	"json": "configuration",
}

// queryKeywordTags query 关键词 -> 标签
var queryKeywordTags = map[string]string{
	"test":       "testing",
	"pytest":     "testing",
	"unittest":   "testing",
	"jest":       "testing",
	"api":        "api",
	"rest":       "api",
	"graphql":    "api",
	"database":   "database",
	"sql":        "database",
	"docker":     "devops",
	"kubernetes": "devops",
	"deploy":     "devops",
	"debug":      "debugging",
	"error":      "debugging",
	"document":   "documentation",
	"readme":     "documentation",
}

// ImplicitTags 从上下文推导隐式标签
//
// 依据文件路径（扩展名、路径片段）、项目类型和 query 关键词，
// 结果去重并排序，保证匹配行为可复现。
func ImplicitTags(mc MatchContext) []string {
	seen := make(map[string]struct{})

	if mc.FilePath != "" {
		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(mc.FilePath)), ".")
		if tag, ok := extensionTags[ext]; ok {
			seen[tag] = struct{}{}
		}

		pathLower := strings.ToLower(mc.FilePath)
		if strings.Contains(pathLower, "test") || strings.Contains(pathLower, "spec") {
			seen["testing"] = struct{}{}
		}
		if strings.Contains(pathLower, "api") {
			seen["api"] = struct{}{}
		}
		if strings.Contains(pathLower, "component") {
			seen["frontend"] = struct{}{}
		}
	}

	if mc.ProjectType != "" {
		seen[strings.ToLower(mc.ProjectType)] = struct{}{}
	}

	if mc.Query != "" {
		queryLower := strings.ToLower(mc.Query)
		for keyword, tag := range queryKeywordTags {
			if strings.Contains(queryLower, keyword) {
				seen[tag] = struct{}{}
			}
		}
	}

	tags := make([]string, 0, len(seen))
	for tag := range seen {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
