package repository

import (
	"context"
	"errors"

	"github.com/langconfig/backend/internal/model"
)

// ErrNotFound 记录不存在错误
var ErrNotFound = errors.New("record not found")

// SkillRepository 技能持久化边界
//
// Registry 只通过该接口访问存储，便于在测试中替换实现。
// Find 类方法查不到记录时返回 (nil, nil)，不作为错误对待。
type SkillRepository interface {
	FindBySkillID(ctx context.Context, skillID string) (*model.Skill, error)
	List(ctx context.Context) ([]model.Skill, error)
	Insert(ctx context.Context, skill *model.Skill) error
	Update(ctx context.Context, skill *model.Skill) error
	// Delete 删除技能并级联删除其全部执行记录
	Delete(ctx context.Context, skill *model.Skill) error

	InsertExecution(ctx context.Context, execution *model.SkillExecution) error
	ListExecutions(ctx context.Context, skillID uint, limit int) ([]model.SkillExecution, error)

	// Transaction 在单个事务中执行 fn，fn 返回错误时整体回滚
	Transaction(ctx context.Context, fn func(tx SkillRepository) error) error
}
