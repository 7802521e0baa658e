package skills

import "errors"

// 预定义错误
var (
	// ErrSkillNotFound Skill 不存在
	ErrSkillNotFound = errors.New("skill not found")

	// ErrSkillMDNotFound SKILL.md 不存在
	ErrSkillMDNotFound = errors.New("SKILL.md not found")

	// ErrInvalidSkillID skill_id 不是合法的 kebab-case
	ErrInvalidSkillID = errors.New("invalid skill id")

	// ErrMissingName frontmatter 缺少 name
	ErrMissingName = errors.New("missing required 'name' field")

	// ErrMissingDescription frontmatter 缺少 description
	ErrMissingDescription = errors.New("missing required 'description' field")

	// ErrMissingInstructions 缺少 "## Instructions" 章节
	ErrMissingInstructions = errors.New("missing required '## Instructions' section")
)
