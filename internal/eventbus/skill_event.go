package eventbus

import (
	"context"
	"time"
)

// SkillEventType 技能生命周期事件类型
type SkillEventType string

const (
	// SkillIndexed 技能被索引（新建或文件更新后重建）
	SkillIndexed SkillEventType = "skill_indexed"
	// SkillRemoved 技能被删除
	SkillRemoved SkillEventType = "skill_removed"
)

// SkillEvent 技能生命周期事件
type SkillEvent struct {
	Type       SkillEventType
	SkillID    string
	SourceType string
	OccurredAt time.Time
}

// SkillEventHandler 事件处理函数
type SkillEventHandler func(ctx context.Context, event SkillEvent) error

// NewSkillEvent 构造事件
func NewSkillEvent(eventType SkillEventType, skillID, sourceType string) SkillEvent {
	return SkillEvent{
		Type:       eventType,
		SkillID:    skillID,
		SourceType: sourceType,
		OccurredAt: time.Now(),
	}
}
