package model

import (
	"time"
)

// SkillSourceType 技能来源类型
type SkillSourceType string

const (
	// SourceBuiltin 随应用内置的技能
	SourceBuiltin SkillSourceType = "builtin"
	// SourcePersonal 用户个人技能（~/.langconfig/skills）
	SourcePersonal SkillSourceType = "personal"
	// SourceProject 项目级技能（<project>/.langconfig/skills）
	SourceProject SkillSourceType = "project"
)

// SkillInvocationType 技能调用方式
type SkillInvocationType string

const (
	// InvocationAutomatic Agent 自动匹配并使用
	InvocationAutomatic SkillInvocationType = "automatic"
	// InvocationExplicit 用户或工作流显式指定
	InvocationExplicit SkillInvocationType = "explicit"
)

// 执行状态
const (
	ExecutionSuccess = "success"
	ExecutionFailed  = "failed"
	ExecutionPartial = "partial"
)

// Skill 从 SKILL.md 索引出来的技能记录
//
// 技能在启动时从文件系统同步入库，数据库提供快速查询、
// 使用统计与跨进程持久化。skill_id 全局唯一且创建后不可变。
type Skill struct {
	ID uint `json:"id" gorm:"primaryKey"`

	// 标识信息（来自 SKILL.md frontmatter）
	SkillID     string `json:"skill_id" gorm:"size:100;uniqueIndex;not null"` // kebab-case
	Name        string `json:"name" gorm:"size:200;not null"`                // 展示名称
	Description string `json:"description" gorm:"type:text;not null"`        // 匹配依据，不允许为空
	Version     string `json:"version" gorm:"size:20;not null;default:1.0.0"`
	Author      string `json:"author,omitempty" gorm:"size:100"`

	// 来源位置
	SourceType  SkillSourceType `json:"source_type" gorm:"size:20;index;not null"`
	SourcePath  string          `json:"source_path" gorm:"size:500;not null"` // 技能目录绝对路径
	ProjectPath string          `json:"project_path,omitempty" gorm:"size:500"`

	// 匹配元数据
	Tags            []string `json:"tags" gorm:"serializer:json"`
	Triggers        []string `json:"triggers" gorm:"serializer:json"`
	AllowedTools    []string `json:"allowed_tools,omitempty" gorm:"serializer:json"` // nil = 不限制
	RequiredContext []string `json:"required_context" gorm:"serializer:json"`

	// 内容
	Instructions string `json:"instructions" gorm:"type:text;not null"` // 注入到 Agent system prompt
	Examples     string `json:"examples,omitempty" gorm:"type:text"`

	// 使用统计
	UsageCount     int        `json:"usage_count" gorm:"not null;default:0"`
	LastUsedAt     *time.Time `json:"last_used_at,omitempty"`
	AvgSuccessRate float64    `json:"avg_success_rate" gorm:"not null;default:1"` // 指数滑动平均，取值 [0,1]

	// 文件同步跟踪
	FileModifiedAt time.Time `json:"file_modified_at" gorm:"not null"`
	IndexedAt      time.Time `json:"indexed_at" gorm:"not null"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Executions []SkillExecution `json:"executions,omitempty" gorm:"foreignKey:SkillID;constraint:OnDelete:CASCADE"`
}

// SkillExecution 技能执行记录（仅追加，随 Skill 级联删除）
//
// 每次调用写入一条，用于使用统计、成功率跟踪和匹配效果分析。
type SkillExecution struct {
	ID          uint   `json:"id" gorm:"primaryKey"`
	ExecutionID string `json:"execution_id" gorm:"size:64;uniqueIndex"` // UUID

	// 技能引用（skills.id）
	SkillID uint `json:"skill_id" gorm:"index;not null"`

	// 执行上下文
	AgentID    string `json:"agent_id,omitempty" gorm:"size:100"`
	WorkflowID *uint  `json:"workflow_id,omitempty" gorm:"index"`
	TaskID     *uint  `json:"task_id,omitempty" gorm:"index"`

	// 调用细节
	InvocationType SkillInvocationType `json:"invocation_type" gorm:"size:20;not null"`
	TriggerContext map[string]string   `json:"trigger_context,omitempty" gorm:"serializer:json"` // 自动触发时的上下文快照
	MatchScore     *float64            `json:"match_score,omitempty"`                            // 仅自动调用填写
	MatchReason    string              `json:"match_reason,omitempty" gorm:"size:200"`

	// 结果
	Status          string `json:"status" gorm:"size:50;not null"` // success, failed, partial
	ExecutionTimeMs *int   `json:"execution_time_ms,omitempty"`
	ErrorMessage    string `json:"error_message,omitempty" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at"`
}
