package skills

import (
	"fmt"
	"strings"
)

// Injector 把匹配到的技能组装为 Agent 可用的上下文块
//
// 只负责格式化，不执行技能指令。
type Injector struct{}

// NewInjector 创建注入器
func NewInjector() *Injector {
	return &Injector{}
}

// InjectToPrompt 将匹配结果追加到 system prompt 末尾
func (i *Injector) InjectToPrompt(systemPrompt string, matches []SkillMatch) string {
	if len(matches) == 0 {
		return systemPrompt
	}

	var sb strings.Builder
	sb.WriteString(systemPrompt)
	sb.WriteString("\n\n")
	sb.WriteString(i.BuildSkillContext(matches))
	return sb.String()
}

// BuildSkillContext 构建技能指导上下文
func (i *Injector) BuildSkillContext(matches []SkillMatch) string {
	var sb strings.Builder

	sb.WriteString("## Skill Guidance\n\n")
	sb.WriteString("Apply the following skills where relevant to the task:\n\n")

	for idx, match := range matches {
		skill := match.Skill

		sb.WriteString(fmt.Sprintf("### Skill %d: %s\n", idx+1, skill.Name))
		sb.WriteString(fmt.Sprintf("> **Relevance**: %.0f%%  |  **Reason**: %s\n\n", match.Score*100, match.Reason))
		sb.WriteString(skill.Instructions)
		sb.WriteString("\n\n---\n\n")
	}

	return sb.String()
}

// BuildMinimalContext 仅列出技能元数据的最小上下文
func (i *Injector) BuildMinimalContext(matches []SkillMatch) string {
	var sb strings.Builder

	sb.WriteString("## Available Skills\n\n")
	for _, match := range matches {
		sb.WriteString(fmt.Sprintf("- **%s**: %s\n", match.Skill.SkillID, match.Skill.Description))
	}
	return sb.String()
}
