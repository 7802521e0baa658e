package repository

import (
	"context"
	"errors"

	"github.com/langconfig/backend/internal/model"
	"gorm.io/gorm"
)

type skillRepository struct {
	db *gorm.DB
}

// NewSkillRepository 创建技能数据仓库
func NewSkillRepository(db *gorm.DB) SkillRepository {
	return &skillRepository{db: db}
}

// FindBySkillID 按 skill_id 查询，不存在时返回 (nil, nil)
func (r *skillRepository) FindBySkillID(ctx context.Context, skillID string) (*model.Skill, error) {
	var skill model.Skill
	err := r.db.WithContext(ctx).Where("skill_id = ?", skillID).First(&skill).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &skill, nil
}

// List 返回全部技能
func (r *skillRepository) List(ctx context.Context) ([]model.Skill, error) {
	var skills []model.Skill
	err := r.db.WithContext(ctx).Order("skill_id ASC").Find(&skills).Error
	return skills, err
}

// Insert 新建技能记录
func (r *skillRepository) Insert(ctx context.Context, skill *model.Skill) error {
	return r.db.WithContext(ctx).Create(skill).Error
}

// Update 保存技能全部字段
func (r *skillRepository) Update(ctx context.Context, skill *model.Skill) error {
	return r.db.WithContext(ctx).Save(skill).Error
}

// Delete 删除技能及其全部执行记录
//
// SQLite 默认不开启外键约束，这里显式删除子表保证级联语义。
func (r *skillRepository) Delete(ctx context.Context, skill *model.Skill) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("skill_id = ?", skill.ID).Delete(&model.SkillExecution{}).Error; err != nil {
			return err
		}
		return tx.Delete(skill).Error
	})
}

// InsertExecution 追加一条执行记录
func (r *skillRepository) InsertExecution(ctx context.Context, execution *model.SkillExecution) error {
	return r.db.WithContext(ctx).Create(execution).Error
}

// ListExecutions 按时间倒序返回某技能的执行记录
func (r *skillRepository) ListExecutions(ctx context.Context, skillID uint, limit int) ([]model.SkillExecution, error) {
	var executions []model.SkillExecution
	q := r.db.WithContext(ctx).Where("skill_id = ?", skillID).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&executions).Error
	return executions, err
}

// Transaction 在事务中执行 fn
func (r *skillRepository) Transaction(ctx context.Context, fn func(tx SkillRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&skillRepository{db: tx})
	})
}
