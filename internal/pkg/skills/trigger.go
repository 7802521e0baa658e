package skills

import (
	"fmt"
	"strings"
)

// TriggerKind 触发规则变体
type TriggerKind string

const (
	// TriggerFileExtension "file extension is .py" -> file_path 后缀匹配
	TriggerFileExtension TriggerKind = "file_extension"
	// TriggerProjectType "project type is python" -> project_type 精确匹配
	TriggerProjectType TriggerKind = "project_type"
	// TriggerWorkingWith "working with pytest" -> query/file_content 子串匹配
	TriggerWorkingWith TriggerKind = "working_with"
	// TriggerMentions "mentions docker compose" -> 全部关键词出现在 query 中
	TriggerMentions TriggerKind = "mentions"
	// TriggerGeneric 兜底的 "when ..." -> 任一长词出现在 query 中
	TriggerGeneric TriggerKind = "generic"
	// TriggerNone 无法识别的规则，永不命中
	TriggerNone TriggerKind = "none"
)

// TriggerRule 编译后的触发规则
//
// 规则字符串在技能加载时编译一次，匹配阶段不再做字符串解析。
type TriggerRule struct {
	Kind     TriggerKind
	Raw      string   // 原始规则文本
	Value    string   // 单值变体的匹配目标（已小写）
	Keywords []string // 关键词变体的匹配目标（已小写）
}

// CompileTrigger 把规则字符串编译为结构化规则
//
// 变体按固定优先级识别：file extension > project type >
// working with > mentions > 通用 when。
func CompileTrigger(raw string) TriggerRule {
	rule := TriggerRule{Kind: TriggerNone, Raw: raw}
	lower := strings.ToLower(strings.TrimSpace(raw))
	if lower == "" {
		return rule
	}

	if _, after, found := strings.Cut(lower, "file extension is"); found {
		rule.Kind = TriggerFileExtension
		rule.Value = strings.TrimSpace(after)
		return rule
	}

	if _, after, found := strings.Cut(lower, "project type is"); found {
		rule.Kind = TriggerProjectType
		rule.Value = strings.TrimSpace(after)
		return rule
	}

	if _, after, found := strings.Cut(lower, "working with"); found {
		rule.Kind = TriggerWorkingWith
		rule.Value = strings.TrimSpace(after)
		return rule
	}

	if _, after, found := strings.Cut(lower, "mentions"); found {
		rule.Kind = TriggerMentions
		rule.Value = strings.TrimSpace(after)
		rule.Keywords = strings.Fields(rule.Value)
		return rule
	}

	if after, found := strings.CutPrefix(lower, "when "); found {
		rule.Kind = TriggerGeneric
		for _, term := range strings.Fields(strings.TrimSpace(after)) {
			if len(term) > 3 {
				rule.Keywords = append(rule.Keywords, term)
			}
		}
		return rule
	}

	return rule
}

// CompileTriggers 批量编译
func CompileTriggers(raw []string) []TriggerRule {
	if len(raw) == 0 {
		return nil
	}
	rules := make([]TriggerRule, 0, len(raw))
	for _, r := range raw {
		rules = append(rules, CompileTrigger(r))
	}
	return rules
}

// Evaluate 在给定上下文下评估规则，返回是否命中及命中细节
func (r TriggerRule) Evaluate(mc MatchContext) (bool, string) {
	query := strings.ToLower(mc.Query)

	switch r.Kind {
	case TriggerFileExtension:
		if r.Value != "" && strings.HasSuffix(strings.ToLower(mc.FilePath), r.Value) {
			return true, fmt.Sprintf("file extension %s", r.Value)
		}

	case TriggerProjectType:
		if r.Value != "" && strings.ToLower(mc.ProjectType) == r.Value {
			return true, fmt.Sprintf("project type %s", r.Value)
		}

	case TriggerWorkingWith:
		if r.Value == "" {
			return false, ""
		}
		if strings.Contains(query, r.Value) || strings.Contains(strings.ToLower(mc.FileContent), r.Value) {
			return true, fmt.Sprintf("working with %s", r.Value)
		}

	case TriggerMentions:
		if len(r.Keywords) == 0 {
			return false, ""
		}
		for _, kw := range r.Keywords {
			if !strings.Contains(query, kw) {
				return false, ""
			}
		}
		return true, fmt.Sprintf("mentions %s", r.Value)

	case TriggerGeneric:
		for _, term := range r.Keywords {
			if strings.Contains(query, term) {
				return true, r.Raw
			}
		}
	}

	return false, ""
}
