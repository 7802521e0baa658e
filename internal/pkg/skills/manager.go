package skills

import (
	"context"
	"path/filepath"
	"time"

	"github.com/langconfig/backend/config"
	"github.com/langconfig/backend/internal/eventbus"
	"github.com/langconfig/backend/internal/model"
	"github.com/langconfig/backend/internal/pkg/embedding"
	"github.com/langconfig/backend/internal/repository"
	"k8s.io/klog/v2"
)

// Manager 技能子系统的组合入口
//
// 负责装配 Loader/Registry/Matcher/Injector/FileWatcher，
// 对外提供统一的生命周期与匹配注入接口。
type Manager struct {
	cfg      *config.Config
	bus      *eventbus.Bus
	loader   *Loader
	registry *Registry
	matcher  *Matcher
	injector *Injector
	watcher  *FileWatcher

	unsubscribe []func()
}

// NewManager 创建技能管理器，所有依赖显式注入
func NewManager(cfg *config.Config, repo repository.SkillRepository, embedder embedding.Embedder) *Manager {
	bus := eventbus.NewBus()
	parser := NewParser()
	loader := NewLoader(parser, cfg.Skills.BuiltinDir, cfg.Skills.PersonalDir, cfg.Skills.ProjectDirs)
	registry := NewRegistry(loader, repo, bus)
	matcher := NewMatcher(registry, embedder)

	m := &Manager{
		cfg:      cfg,
		bus:      bus,
		loader:   loader,
		registry: registry,
		matcher:  matcher,
		injector: NewInjector(),
	}

	// 技能内容变化后对应的向量缓存必须失效
	evict := func(ctx context.Context, event eventbus.SkillEvent) error {
		matcher.EvictCached(event.SkillID)
		return nil
	}
	m.unsubscribe = append(m.unsubscribe,
		bus.Subscribe(eventbus.SkillIndexed, evict),
		bus.Subscribe(eventbus.SkillRemoved, evict),
	)

	if cfg.Skills.AutoReload {
		interval := cfg.Skills.ReloadInterval
		if interval <= 0 {
			interval = 5 * time.Second
		}
		m.watcher = NewFileWatcher(loader.SkillRoots, interval, m.handleFileEvent)
	}
	return m
}

// Start 加载全部技能并启动目录监听
func (m *Manager) Start(ctx context.Context) error {
	count, err := m.registry.Initialize(ctx, m.cfg.Skills.ProjectDirs)
	if err != nil {
		return err
	}
	klog.V(2).Infof("skills manager started, %d skills indexed", count)

	if m.watcher != nil {
		if err := m.watcher.Start(); err != nil {
			return err
		}
	}
	return nil
}

// Stop 停止目录监听并注销事件订阅
func (m *Manager) Stop() {
	if m.watcher != nil {
		m.watcher.Stop()
	}
	for _, fn := range m.unsubscribe {
		fn()
	}
	m.unsubscribe = nil
}

// Registry 暴露注册表，供 handler 层查询与修改
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Matcher 暴露匹配器
func (m *Manager) Matcher() *Matcher {
	return m.matcher
}

// MatchAndInject 匹配技能并注入到系统提示词，返回增强后的提示词与命中列表
func (m *Manager) MatchAndInject(ctx context.Context, systemPrompt string, mc MatchContext, opts MatchOptions) (string, []SkillMatch) {
	matches := m.matcher.FindRelevantSkills(ctx, mc, opts)
	return m.injector.InjectToPrompt(systemPrompt, matches), matches
}

// BuildSkillContext 仅构建技能上下文片段
func (m *Manager) BuildSkillContext(matches []SkillMatch) string {
	return m.injector.BuildSkillContext(matches)
}

// handleFileEvent 处理技能目录变化
//
// 新建目录按所属根目录归类后索引；修改走按路径重载；
// 目录消失只记日志，数据库删除必须显式发起。
func (m *Manager) handleFileEvent(event FileEvent) {
	ctx := context.Background()
	switch event.Type {
	case "create":
		sourceType, projectPath := m.classifyRoot(event.Root)
		if m.registry.IndexSkillDir(ctx, event.Path, sourceType, projectPath) {
			klog.V(2).Infof("indexed new skill dir: %s", event.Path)
		}
	case "modify":
		skill := m.registry.FindBySourcePath(event.Path)
		if skill == nil {
			sourceType, projectPath := m.classifyRoot(event.Root)
			m.registry.IndexSkillDir(ctx, event.Path, sourceType, projectPath)
			return
		}
		if m.registry.ReloadSkill(ctx, skill.SkillID) {
			klog.V(2).Infof("reloaded skill %s after file change", skill.SkillID)
		}
	case "delete":
		klog.V(2).Infof("skill dir removed from disk: %s (registry entry kept)", event.Path)
	}
}

// classifyRoot 由监听根目录推断技能来源与所属项目路径
func (m *Manager) classifyRoot(root string) (model.SkillSourceType, string) {
	cleaned := filepath.Clean(root)
	if cleaned == filepath.Clean(m.loader.BuiltinPath()) {
		return model.SourceBuiltin, ""
	}
	if cleaned == filepath.Clean(m.loader.PersonalPath()) {
		return model.SourcePersonal, ""
	}
	for _, p := range m.loader.ProjectPaths() {
		if cleaned == filepath.Clean(filepath.Join(p, projectSkillsSubdir)) {
			return model.SourceProject, p
		}
	}
	// 无法归类时按项目技能处理，项目路径取根目录的上两级
	return model.SourceProject, filepath.Dir(filepath.Dir(cleaned))
}
