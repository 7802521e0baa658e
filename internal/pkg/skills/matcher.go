package skills

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/langconfig/backend/internal/model"
	"github.com/langconfig/backend/internal/pkg/embedding"
	"k8s.io/klog/v2"
)

const (
	// defaultMaxResults 默认返回数量上限
	defaultMaxResults = 5
	// defaultMinScore 默认最低入选分数
	defaultMinScore = 0.5
	// triggerConfidence 触发规则命中的固定置信度
	triggerConfidence = 0.85
	// semanticFloor 语义相似度的入围下限
	semanticFloor = 0.3
)

// Strategy 匹配策略
type Strategy string

const (
	StrategySemantic Strategy = "semantic"
	StrategyTrigger  Strategy = "trigger"
	StrategyTag      Strategy = "tag"
)

// MatchContext 调用方运行时上下文
type MatchContext struct {
	Query       string   `json:"query,omitempty"`        // 自由文本，语义匹配必需
	FilePath    string   `json:"file_path,omitempty"`    // 当前文件路径
	FileContent string   `json:"file_content,omitempty"` // 当前文件内容
	ProjectType string   `json:"project_type,omitempty"` // 项目类型，如 python、nodejs
	Tags        []string `json:"tags,omitempty"`         // 显式标签提示
}

// Map 转为扁平键值对（执行记录的上下文快照用）
func (mc MatchContext) Map() map[string]string {
	m := make(map[string]string)
	if mc.Query != "" {
		m["query"] = mc.Query
	}
	if mc.FilePath != "" {
		m["file_path"] = mc.FilePath
	}
	if mc.ProjectType != "" {
		m["project_type"] = mc.ProjectType
	}
	if len(mc.Tags) > 0 {
		m["tags"] = strings.Join(mc.Tags, ",")
	}
	return m
}

// SkillMatch 匹配结果
type SkillMatch struct {
	Skill  *model.Skill `json:"skill"`
	Score  float64      `json:"score"`        // 归一化到约 [0,1]
	Reason string       `json:"match_reason"` // semantic / trigger: ... / tags: ...
}

// MatchOptions 匹配参数；零值字段取默认
type MatchOptions struct {
	MaxResults int
	MinScore   float64
	Strategies []Strategy // 为空时启用全部策略
}

// Matcher 按上下文选择相关技能
//
// 三种策略按固定顺序执行（semantic -> trigger -> tag），
// 同一技能取各策略的最高分；向量服务不可用时语义匹配
// 自动降级为关键词匹配，绝不向外抛错。
type Matcher struct {
	registry *Registry
	embedder embedding.Embedder // 可为 nil

	mu    sync.Mutex
	cache map[string][]float64 // skill_id -> 描述向量
}

// NewMatcher 创建匹配器
func NewMatcher(registry *Registry, embedder embedding.Embedder) *Matcher {
	return &Matcher{
		registry: registry,
		embedder: embedder,
		cache:    make(map[string][]float64),
	}
}

// FindRelevantSkills 返回按相关度降序的技能匹配列表
//
// 结果过滤掉低于 MinScore 的项并截断到 MaxResults；
// 空结果是正常返回而非错误。
func (m *Matcher) FindRelevantSkills(ctx context.Context, mc MatchContext, opts MatchOptions) []SkillMatch {
	if opts.MaxResults <= 0 {
		opts.MaxResults = defaultMaxResults
	}
	if opts.MinScore <= 0 {
		opts.MinScore = defaultMinScore
	}
	if len(opts.Strategies) == 0 {
		opts.Strategies = []Strategy{StrategySemantic, StrategyTrigger, StrategyTag}
	}
	enabled := make(map[Strategy]bool, len(opts.Strategies))
	for _, s := range opts.Strategies {
		enabled[s] = true
	}

	skillList := m.registry.ListAll()
	best := make(map[string]SkillMatch)

	// 同一技能跨策略保留最高分，低分不覆盖高分
	record := func(match SkillMatch) {
		current, ok := best[match.Skill.SkillID]
		if !ok || match.Score > current.Score {
			best[match.Skill.SkillID] = match
		}
	}

	if enabled[StrategySemantic] && mc.Query != "" {
		for _, match := range m.semanticMatch(ctx, mc.Query, skillList, opts.MaxResults*2) {
			record(match)
		}
	}

	if enabled[StrategyTrigger] {
		for _, match := range m.evaluateTriggers(mc, skillList) {
			record(match)
		}
	}

	if enabled[StrategyTag] {
		contextTags := mergeTags(ImplicitTags(mc), mc.Tags)
		if len(contextTags) > 0 {
			for _, match := range matchTags(contextTags, skillList) {
				record(match)
			}
		}
	}

	results := make([]SkillMatch, 0, len(best))
	for _, match := range best {
		if match.Score >= opts.MinScore {
			results = append(results, match)
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Skill.SkillID < results[j].Skill.SkillID
	})

	if len(results) > opts.MaxResults {
		results = results[:opts.MaxResults]
	}
	return results
}

// semanticMatch 语义匹配；向量服务失败时降级为关键词匹配
func (m *Matcher) semanticMatch(ctx context.Context, query string, skillList []*model.Skill, limit int) []SkillMatch {
	if m.embedder == nil {
		return keywordMatch(query, skillList, limit)
	}

	queryVector, err := m.embedder.EmbedQuery(ctx, query)
	if err != nil {
		klog.Warningf("query 向量化失败，降级为关键词匹配: %v", err)
		return keywordMatch(query, skillList, limit)
	}

	var matches []SkillMatch
	for _, skill := range skillList {
		skillVector, err := m.skillEmbedding(ctx, skill)
		if err != nil {
			klog.Warningf("技能向量化失败，降级为关键词匹配: %v", err)
			return keywordMatch(query, skillList, limit)
		}

		similarity := embedding.CosineSimilarity(queryVector, skillVector)
		if similarity > semanticFloor {
			matches = append(matches, SkillMatch{
				Skill:  skill,
				Score:  similarity,
				Reason: "semantic",
			})
		}
	}

	sortByScore(matches)
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// skillEmbedding 获取或计算技能描述向量（按 skill_id 缓存）
func (m *Matcher) skillEmbedding(ctx context.Context, skill *model.Skill) ([]float64, error) {
	m.mu.Lock()
	cached, ok := m.cache[skill.SkillID]
	m.mu.Unlock()
	if ok {
		return cached, nil
	}

	text := fmt.Sprintf("%s: %s", skill.Name, skill.Description)
	if len(skill.Tags) > 0 {
		text += fmt.Sprintf(" Tags: %s", strings.Join(skill.Tags, ", "))
	}

	vector, err := m.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.cache[skill.SkillID] = vector
	m.mu.Unlock()
	return vector, nil
}

// keywordMatch 关键词兜底匹配
//
// 描述词重叠权重 0.4、名称子串 0.3、skill_id 子串 0.2，总分封顶 1.0。
func keywordMatch(query string, skillList []*model.Skill, limit int) []SkillMatch {
	queryLower := strings.ToLower(query)
	queryWords := make(map[string]struct{})
	for _, w := range strings.Fields(queryLower) {
		queryWords[w] = struct{}{}
	}

	var matches []SkillMatch
	for _, skill := range skillList {
		score := 0.0
		var reasons []string

		descWords := strings.Fields(strings.ToLower(skill.Description))
		overlap := 0
		seen := make(map[string]struct{})
		for _, w := range descWords {
			if _, dup := seen[w]; dup {
				continue
			}
			seen[w] = struct{}{}
			if _, ok := queryWords[w]; ok {
				overlap++
			}
		}
		if overlap > 0 {
			denom := len(queryWords)
			if denom < 1 {
				denom = 1
			}
			score += 0.4 * float64(overlap) / float64(denom)
			reasons = append(reasons, "description keywords")
		}

		if strings.Contains(strings.ToLower(skill.Name), queryLower) {
			score += 0.3
			reasons = append(reasons, "name match")
		}
		if strings.Contains(skill.SkillID, queryLower) {
			score += 0.2
			reasons = append(reasons, "skill_id match")
		}

		if score > 0 {
			if score > 1.0 {
				score = 1.0
			}
			matches = append(matches, SkillMatch{
				Skill:  skill,
				Score:  score,
				Reason: "keywords: " + strings.Join(reasons, ", "),
			})
		}
	}

	sortByScore(matches)
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// evaluateTriggers 逐技能评估触发规则，规则按声明顺序先命中先生效
func (m *Matcher) evaluateTriggers(mc MatchContext, skillList []*model.Skill) []SkillMatch {
	var matches []SkillMatch
	for _, skill := range skillList {
		for _, rule := range m.registry.TriggerRules(skill.SkillID) {
			matched, detail := rule.Evaluate(mc)
			if matched {
				matches = append(matches, SkillMatch{
					Skill:  skill,
					Score:  triggerConfidence,
					Reason: "trigger: " + detail,
				})
				break // 单个技能命中一条规则即可
			}
		}
	}
	return matches
}

// matchTags 标签重叠打分
//
// score = min(0.3 + overlap_ratio*0.5, 0.8)，
// overlap_ratio = |交集| / max(|上下文标签|, |技能标签|)。零重叠不入选。
func matchTags(contextTags []string, skillList []*model.Skill) []SkillMatch {
	contextSet := make(map[string]struct{}, len(contextTags))
	for _, t := range contextTags {
		contextSet[strings.ToLower(t)] = struct{}{}
	}

	var matches []SkillMatch
	for _, skill := range skillList {
		skillSet := make(map[string]struct{}, len(skill.Tags))
		for _, t := range skill.Tags {
			skillSet[strings.ToLower(t)] = struct{}{}
		}

		var shared []string
		for t := range contextSet {
			if _, ok := skillSet[t]; ok {
				shared = append(shared, t)
			}
		}
		if len(shared) == 0 {
			continue
		}
		sort.Strings(shared)

		denom := len(contextSet)
		if len(skillSet) > denom {
			denom = len(skillSet)
		}
		score := 0.3 + float64(len(shared))/float64(denom)*0.5
		if score > 0.8 {
			score = 0.8
		}

		matches = append(matches, SkillMatch{
			Skill:  skill,
			Score:  score,
			Reason: "tags: " + strings.Join(shared, ", "),
		})
	}
	return matches
}

// mergeTags 合并隐式标签与显式标签并去重
func mergeTags(implicit, explicit []string) []string {
	seen := make(map[string]struct{}, len(implicit)+len(explicit))
	var merged []string
	for _, t := range append(append([]string{}, implicit...), explicit...) {
		tLower := strings.ToLower(t)
		if _, ok := seen[tLower]; ok {
			continue
		}
		seen[tLower] = struct{}{}
		merged = append(merged, tLower)
	}
	return merged
}

// sortByScore 按分数降序，同分按 skill_id 保证稳定
func sortByScore(matches []SkillMatch) {
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Skill.SkillID < matches[j].Skill.SkillID
	})
}

// EvictCached 清除单个技能的向量缓存（技能重载/删除时由事件驱动）
func (m *Matcher) EvictCached(skillID string) {
	m.mu.Lock()
	delete(m.cache, skillID)
	m.mu.Unlock()
}

// ClearCache 清空整个向量缓存
func (m *Matcher) ClearCache() {
	m.mu.Lock()
	m.cache = make(map[string][]float64)
	m.mu.Unlock()
}

// CachedEmbeddings 当前缓存的向量数量（测试与监控用）
func (m *Matcher) CachedEmbeddings() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cache)
}
