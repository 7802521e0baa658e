package skills

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/langconfig/backend/internal/model"
	"k8s.io/klog/v2"
)

// projectSkillsSubdir 项目内技能目录相对路径
const projectSkillsSubdir = ".langconfig/skills"

// DiscoveryResult 技能目录发现结果
type DiscoveryResult struct {
	SkillPath   string
	SourceType  model.SkillSourceType
	ProjectPath string // 仅 project 来源
}

// Loader 技能发现与加载
//
// 从三类位置发现技能目录：
//  1. 内置技能（随应用发布）
//  2. 个人技能（~/.langconfig/skills）
//  3. 项目技能（<project>/.langconfig/skills）
type Loader struct {
	parser       *Parser
	builtinPath  string
	personalPath string
	projectPaths []string
}

// NewLoader 创建加载器；personalPath 为空时使用默认个人目录
func NewLoader(parser *Parser, builtinPath, personalPath string, projectPaths []string) *Loader {
	if personalPath == "" {
		personalPath = defaultPersonalPath()
	}
	return &Loader{
		parser:       parser,
		builtinPath:  builtinPath,
		personalPath: personalPath,
		projectPaths: projectPaths,
	}
}

// defaultPersonalPath 默认个人技能目录
func defaultPersonalPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".langconfig", "skills")
}

// BuiltinPath 内置技能根目录
func (l *Loader) BuiltinPath() string {
	return l.builtinPath
}

// PersonalPath 个人技能根目录
func (l *Loader) PersonalPath() string {
	return l.personalPath
}

// SetProjectPaths 更新项目根目录列表
func (l *Loader) SetProjectPaths(paths []string) {
	l.projectPaths = paths
}

// ProjectPaths 当前项目根目录列表
func (l *Loader) ProjectPaths() []string {
	return l.projectPaths
}

// SkillRoots 全部技能根目录（watcher 轮询用）
func (l *Loader) SkillRoots() []string {
	roots := make([]string, 0, 2+len(l.projectPaths))
	if l.builtinPath != "" {
		roots = append(roots, l.builtinPath)
	}
	if l.personalPath != "" {
		roots = append(roots, l.personalPath)
	}
	for _, p := range l.projectPaths {
		roots = append(roots, filepath.Join(p, projectSkillsSubdir))
	}
	return roots
}

// DiscoverAll 发现所有位置下的技能目录
//
// 目录不可读只记日志并跳过，发现过程本身不返回错误。
func (l *Loader) DiscoverAll() []DiscoveryResult {
	discovered := make([]DiscoveryResult, 0)

	if l.builtinPath != "" {
		for _, dir := range l.findSkillDirs(l.builtinPath) {
			discovered = append(discovered, DiscoveryResult{
				SkillPath:  dir,
				SourceType: model.SourceBuiltin,
			})
		}
	}

	if l.personalPath != "" {
		for _, dir := range l.findSkillDirs(l.personalPath) {
			discovered = append(discovered, DiscoveryResult{
				SkillPath:  dir,
				SourceType: model.SourcePersonal,
			})
		}
	}

	for _, projectPath := range l.projectPaths {
		base := filepath.Join(projectPath, projectSkillsSubdir)
		for _, dir := range l.findSkillDirs(base) {
			discovered = append(discovered, DiscoveryResult{
				SkillPath:   dir,
				SourceType:  model.SourceProject,
				ProjectPath: projectPath,
			})
		}
	}

	klog.V(6).Infof("发现 %d 个技能目录", len(discovered))
	return discovered
}

// findSkillDirs 找出 base 下包含 SKILL.md 的一级子目录
func (l *Loader) findSkillDirs(base string) []string {
	if _, err := os.Stat(base); os.IsNotExist(err) {
		return nil
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		klog.Warningf("扫描技能目录 %s 失败: %v", base, err)
		return nil
	}

	var dirs []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		// 跳过隐藏目录
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		skillDir := filepath.Join(base, entry.Name())
		if _, err := os.Stat(filepath.Join(skillDir, SkillFilename)); err == nil {
			dirs = append(dirs, skillDir)
		}
	}
	return dirs
}

// LoadSkill 加载单个技能目录
//
// 解析或校验失败时返回 (nil, error)，调用方据此跳过；
// 该方法自身不会让异常逃逸。
func (l *Loader) LoadSkill(skillDir string) (*ParsedSkill, error) {
	return l.parser.Parse(skillDir)
}
