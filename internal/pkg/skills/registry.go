package skills

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/langconfig/backend/internal/eventbus"
	"github.com/langconfig/backend/internal/model"
	"github.com/langconfig/backend/internal/repository"
	"k8s.io/klog/v2"
)

// successRateAlpha 成功率指数滑动平均的平滑因子
const successRateAlpha = 0.1

// Registry 技能注册中心：内存索引 + 数据库持久化
//
// 内存中维护 skill_id 主索引和小写标签二级索引，提供快速查询；
// 结构性变更（初始化、重载）串行化执行并同步数据库。
// 单个文件解析或入库失败只影响该文件，不中断整批。
type Registry struct {
	mu          sync.RWMutex
	skills      map[string]*model.Skill            // skill_id -> Skill
	byTag       map[string]map[string]struct{}     // 小写 tag -> skill_id 集合
	triggers    map[string][]TriggerRule           // skill_id -> 编译后的触发规则
	initialized bool

	loader *Loader
	repo   repository.SkillRepository
	bus    *eventbus.Bus
}

// ExecutionRecord 执行上报参数
type ExecutionRecord struct {
	SkillID         string
	InvocationType  model.SkillInvocationType
	Status          string // success, failed, partial
	ExecutionTimeMs *int
	ErrorMessage    string
	MatchScore      *float64
	MatchReason     string
	Context         map[string]string
	AgentID         string
	WorkflowID      *uint
	TaskID          *uint
}

// NewRegistry 创建注册中心；bus 可为 nil（不发布事件）
func NewRegistry(loader *Loader, repo repository.SkillRepository, bus *eventbus.Bus) *Registry {
	return &Registry{
		skills:   make(map[string]*model.Skill),
		byTag:    make(map[string]map[string]struct{}),
		triggers: make(map[string][]TriggerRule),
		loader:   loader,
		repo:     repo,
		bus:      bus,
	}
}

// Initialize 扫描文件系统并与数据库同步，返回成功索引的技能数
//
// 幂等：已初始化时直接返回当前数量，不重复扫描。
func (r *Registry) Initialize(ctx context.Context, projectPaths []string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.initialized {
		return len(r.skills), nil
	}

	klog.V(6).Info("初始化技能注册中心...")

	if len(projectPaths) > 0 {
		r.loader.SetProjectPaths(projectPaths)
	}

	discovered := r.loader.DiscoverAll()

	loaded := 0
	for _, d := range discovered {
		if r.loadAndIndexSkill(ctx, d.SkillPath, d.SourceType, d.ProjectPath) {
			loaded++
		}
	}

	r.initialized = true
	klog.V(6).Infof("技能注册中心初始化完成，共 %d 个技能", loaded)
	return loaded, nil
}

// loadAndIndexSkill 加载单个技能并同步到数据库（调用方需持有写锁）
//
// 已存在的记录仅在文件修改时间更新时回写；每个技能独立提交，
// 失败被捕获为 false，不向上传播。
func (r *Registry) loadAndIndexSkill(ctx context.Context, skillDir string, sourceType model.SkillSourceType, projectPath string) bool {
	parsed, err := r.loader.LoadSkill(skillDir)
	if err != nil {
		klog.Errorf("解析技能目录 %s 失败: %v", skillDir, err)
		return false
	}

	var skill *model.Skill
	err = r.repo.Transaction(ctx, func(tx repository.SkillRepository) error {
		existing, err := tx.FindBySkillID(ctx, parsed.SkillID)
		if err != nil {
			return err
		}

		if existing != nil {
			// 文件更新时回写全部可变字段
			if parsed.FileModifiedAt.After(existing.FileModifiedAt) {
				existing.Name = parsed.Name
				existing.Description = parsed.Description
				existing.Version = parsed.Version
				existing.Author = parsed.Author
				existing.Tags = parsed.Tags
				existing.Triggers = parsed.Triggers
				existing.AllowedTools = parsed.AllowedTools
				existing.RequiredContext = parsed.RequiredContext
				existing.Instructions = parsed.Instructions
				existing.Examples = parsed.Examples
				existing.FileModifiedAt = parsed.FileModifiedAt
				existing.IndexedAt = time.Now()
				if err := tx.Update(ctx, existing); err != nil {
					return err
				}
				klog.V(6).Infof("技能 '%s' 已根据文件更新", parsed.SkillID)
			}
			skill = existing
			return nil
		}

		now := time.Now()
		skill = &model.Skill{
			SkillID:         parsed.SkillID,
			Name:            parsed.Name,
			Description:     parsed.Description,
			Version:         parsed.Version,
			Author:          parsed.Author,
			SourceType:      sourceType,
			SourcePath:      parsed.SourcePath,
			ProjectPath:     projectPath,
			Tags:            parsed.Tags,
			Triggers:        parsed.Triggers,
			AllowedTools:    parsed.AllowedTools,
			RequiredContext: parsed.RequiredContext,
			Instructions:    parsed.Instructions,
			Examples:        parsed.Examples,
			AvgSuccessRate:  1.0,
			FileModifiedAt:  parsed.FileModifiedAt,
			IndexedAt:       now,
		}
		return tx.Insert(ctx, skill)
	})
	if err != nil {
		klog.Errorf("索引技能 '%s' 失败: %v", parsed.SkillID, err)
		return false
	}

	r.indexInMemory(skill)
	r.publish(ctx, eventbus.SkillIndexed, skill)
	return true
}

// indexInMemory 写入主索引、标签索引并编译触发规则（需持有写锁）
func (r *Registry) indexInMemory(skill *model.Skill) {
	r.skills[skill.SkillID] = skill
	for _, tag := range skill.Tags {
		tagLower := strings.ToLower(tag)
		if r.byTag[tagLower] == nil {
			r.byTag[tagLower] = make(map[string]struct{})
		}
		r.byTag[tagLower][skill.SkillID] = struct{}{}
	}
	r.triggers[skill.SkillID] = CompileTriggers(skill.Triggers)
}

// removeFromTagIndex 从标签索引移除（需持有写锁）
func (r *Registry) removeFromTagIndex(skill *model.Skill) {
	for _, tag := range skill.Tags {
		tagLower := strings.ToLower(tag)
		if ids, ok := r.byTag[tagLower]; ok {
			delete(ids, skill.SkillID)
			if len(ids) == 0 {
				delete(r.byTag, tagLower)
			}
		}
	}
}

func (r *Registry) publish(ctx context.Context, eventType eventbus.SkillEventType, skill *model.Skill) {
	if r.bus == nil {
		return
	}
	if err := r.bus.Publish(ctx, eventbus.NewSkillEvent(eventType, skill.SkillID, string(skill.SourceType))); err != nil {
		klog.Warningf("发布技能事件失败: %v", err)
	}
}

// GetSkill 按 skill_id 获取技能
func (r *Registry) GetSkill(skillID string) *model.Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.skills[skillID]
}

// ListAll 列出全部已注册技能
func (r *Registry) ListAll() []*model.Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*model.Skill, 0, len(r.skills))
	for _, skill := range r.skills {
		result = append(result, skill)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].SkillID < result[j].SkillID
	})
	return result
}

// FindByTags 按标签查询（大小写不敏感）
//
// matchAll 为 true 时取各标签集合的交集，为 false 时取并集。
// 空标签列表返回空结果；标签索引中残留的失效 id 被静默丢弃。
func (r *Registry) FindByTags(tags []string, matchAll bool) []*model.Skill {
	if len(tags) == 0 {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var matching map[string]struct{}
	if matchAll {
		for _, tag := range tags {
			ids := r.byTag[strings.ToLower(tag)]
			if matching == nil {
				matching = make(map[string]struct{}, len(ids))
				for id := range ids {
					matching[id] = struct{}{}
				}
				continue
			}
			for id := range matching {
				if _, ok := ids[id]; !ok {
					delete(matching, id)
				}
			}
		}
	} else {
		matching = make(map[string]struct{})
		for _, tag := range tags {
			for id := range r.byTag[strings.ToLower(tag)] {
				matching[id] = struct{}{}
			}
		}
	}

	result := make([]*model.Skill, 0, len(matching))
	for id := range matching {
		if skill, ok := r.skills[id]; ok {
			result = append(result, skill)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].SkillID < result[j].SkillID
	})
	return result
}

// FindBySource 按来源类型查询
func (r *Registry) FindBySource(sourceType model.SkillSourceType) []*model.Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*model.Skill
	for _, skill := range r.skills {
		if skill.SourceType == sourceType {
			result = append(result, skill)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].SkillID < result[j].SkillID
	})
	return result
}

// Search 在名称、描述、skill_id 上做大小写不敏感的子串搜索
//
// 语义匹配请使用 Matcher，这里只是简单文本搜索。
func (r *Registry) Search(query string) []*model.Skill {
	queryLower := strings.ToLower(query)

	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*model.Skill
	for _, skill := range r.skills {
		if strings.Contains(strings.ToLower(skill.Name), queryLower) ||
			strings.Contains(strings.ToLower(skill.Description), queryLower) ||
			strings.Contains(skill.SkillID, queryLower) {
			result = append(result, skill)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].SkillID < result[j].SkillID
	})
	return result
}

// FindBySourcePath 按技能目录路径查找（watcher 回调用）
func (r *Registry) FindBySourcePath(path string) *model.Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, skill := range r.skills {
		if skill.SourcePath == path {
			return skill
		}
	}
	return nil
}

// TriggerRules 获取某技能编译后的触发规则
func (r *Registry) TriggerRules(skillID string) []TriggerRule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.triggers[skillID]
}

// ReloadSkill 从文件系统重载单个技能
//
// 未注册的 skill_id 返回 false。
func (r *Registry) ReloadSkill(ctx context.Context, skillID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	skill, ok := r.skills[skillID]
	if !ok {
		klog.Warningf("无法重载未注册的技能 '%s'", skillID)
		return false
	}

	r.removeFromTagIndex(skill)
	return r.loadAndIndexSkill(ctx, skill.SourcePath, skill.SourceType, skill.ProjectPath)
}

// IndexSkillDir 索引一个新发现的技能目录（watcher 回调用）
func (r *Registry) IndexSkillDir(ctx context.Context, skillDir string, sourceType model.SkillSourceType, projectPath string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadAndIndexSkill(ctx, skillDir, sourceType, projectPath)
}

// ReloadAll 清空内存索引并重新初始化，全量重建
func (r *Registry) ReloadAll(ctx context.Context, projectPaths []string) (int, error) {
	r.mu.Lock()
	r.skills = make(map[string]*model.Skill)
	r.byTag = make(map[string]map[string]struct{})
	r.triggers = make(map[string][]TriggerRule)
	r.initialized = false
	r.mu.Unlock()

	return r.Initialize(ctx, projectPaths)
}

// UpdateSkill 持久化调用方修改过的技能并镜像到内存
//
// 仅回写可编辑字段（名称、描述、触发器、指令）。
// 目标 skill_id 不在数据库中时返回 false。
func (r *Registry) UpdateSkill(ctx context.Context, skill *model.Skill) bool {
	err := r.repo.Transaction(ctx, func(tx repository.SkillRepository) error {
		dbSkill, err := tx.FindBySkillID(ctx, skill.SkillID)
		if err != nil {
			return err
		}
		if dbSkill == nil {
			return repository.ErrNotFound
		}

		dbSkill.Name = skill.Name
		dbSkill.Description = skill.Description
		dbSkill.Triggers = skill.Triggers
		dbSkill.Instructions = skill.Instructions
		dbSkill.UpdatedAt = skill.UpdatedAt
		return tx.Update(ctx, dbSkill)
	})
	if err != nil {
		klog.Errorf("更新技能 '%s' 失败: %v", skill.SkillID, err)
		return false
	}

	r.mu.Lock()
	r.skills[skill.SkillID] = skill
	r.triggers[skill.SkillID] = CompileTriggers(skill.Triggers)
	r.mu.Unlock()

	klog.V(6).Infof("技能 '%s' 已更新", skill.SkillID)
	return true
}

// DeleteSkill 从数据库和内存中删除技能（执行记录级联删除）
//
// 幂等：数据库中不存在时仍清掉内存残留并返回 true。
func (r *Registry) DeleteSkill(ctx context.Context, skillID string) bool {
	err := r.repo.Transaction(ctx, func(tx repository.SkillRepository) error {
		dbSkill, err := tx.FindBySkillID(ctx, skillID)
		if err != nil {
			return err
		}
		if dbSkill == nil {
			klog.Warningf("技能 '%s' 不在数据库中", skillID)
			return nil
		}
		return tx.Delete(ctx, dbSkill)
	})
	if err != nil {
		klog.Errorf("删除技能 '%s' 失败: %v", skillID, err)
		return false
	}

	r.mu.Lock()
	if skill, ok := r.skills[skillID]; ok {
		r.removeFromTagIndex(skill)
		delete(r.skills, skillID)
		delete(r.triggers, skillID)
		r.mu.Unlock()
		r.publish(ctx, eventbus.SkillRemoved, skill)
	} else {
		r.mu.Unlock()
	}

	klog.V(6).Infof("技能 '%s' 已删除", skillID)
	return true
}

// CreateSkill 创建一个个人技能并入库、入索引
func (r *Registry) CreateSkill(ctx context.Context, skillID, name, description string, tags, triggers []string, instructions string) (*model.Skill, error) {
	if !ValidateSkillID(skillID) {
		return nil, ErrInvalidSkillID
	}

	now := time.Now()
	skill := &model.Skill{
		SkillID:         skillID,
		Name:            name,
		Description:     description,
		Version:         "1.0.0",
		Author:          "User",
		SourceType:      model.SourcePersonal,
		SourcePath:      "",
		Tags:            tags,
		Triggers:        triggers,
		AllowedTools:    []string{},
		RequiredContext: []string{},
		Instructions:    instructions,
		AvgSuccessRate:  1.0,
		FileModifiedAt:  now,
		IndexedAt:       now,
	}

	if err := r.repo.Insert(ctx, skill); err != nil {
		klog.Errorf("创建技能 '%s' 失败: %v", skillID, err)
		return nil, err
	}

	r.mu.Lock()
	r.indexInMemory(skill)
	r.mu.Unlock()
	r.publish(ctx, eventbus.SkillIndexed, skill)

	klog.V(6).Infof("技能 '%s' 已创建", skillID)
	return skill, nil
}

// RecordExecution 记录一次技能执行并更新使用统计
//
// 未知 skill_id 记一条警告后静默返回。成功率按指数滑动平均更新：
// success 记 1.0、failed 记 0.0、partial 不更新。
func (r *Registry) RecordExecution(ctx context.Context, record ExecutionRecord) error {
	var updated *model.Skill
	err := r.repo.Transaction(ctx, func(tx repository.SkillRepository) error {
		skill, err := tx.FindBySkillID(ctx, record.SkillID)
		if err != nil {
			return err
		}
		if skill == nil {
			klog.Warningf("无法为未知技能 '%s' 记录执行", record.SkillID)
			return nil
		}

		execution := &model.SkillExecution{
			ExecutionID:     uuid.NewString(),
			SkillID:         skill.ID,
			AgentID:         record.AgentID,
			WorkflowID:      record.WorkflowID,
			TaskID:          record.TaskID,
			InvocationType:  record.InvocationType,
			TriggerContext:  record.Context,
			MatchScore:      record.MatchScore,
			MatchReason:     record.MatchReason,
			Status:          record.Status,
			ExecutionTimeMs: record.ExecutionTimeMs,
			ErrorMessage:    record.ErrorMessage,
		}
		if err := tx.InsertExecution(ctx, execution); err != nil {
			return err
		}

		skill.UsageCount++
		now := time.Now()
		skill.LastUsedAt = &now

		switch record.Status {
		case model.ExecutionSuccess:
			skill.AvgSuccessRate = skill.AvgSuccessRate*(1-successRateAlpha) + 1.0*successRateAlpha
		case model.ExecutionFailed:
			skill.AvgSuccessRate = skill.AvgSuccessRate * (1 - successRateAlpha)
		}

		if err := tx.Update(ctx, skill); err != nil {
			return err
		}
		updated = skill
		return nil
	})
	if err != nil {
		klog.Errorf("记录技能 '%s' 执行失败: %v", record.SkillID, err)
		return err
	}
	if updated == nil {
		return nil
	}

	// 把三个统计字段镜像回内存副本
	r.mu.Lock()
	if cached, ok := r.skills[record.SkillID]; ok {
		cached.UsageCount = updated.UsageCount
		cached.LastUsedAt = updated.LastUsedAt
		cached.AvgSuccessRate = updated.AvgSuccessRate
	}
	r.mu.Unlock()
	return nil
}

// ListExecutions 返回某技能最近的执行记录
func (r *Registry) ListExecutions(ctx context.Context, skillID string, limit int) ([]model.SkillExecution, error) {
	skill := r.GetSkill(skillID)
	if skill == nil {
		return nil, ErrSkillNotFound
	}
	return r.repo.ListExecutions(ctx, skill.ID, limit)
}

// IsInitialized 是否已初始化
func (r *Registry) IsInitialized() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.initialized
}

// SkillCount 当前注册的技能数量
func (r *Registry) SkillCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.skills)
}
