package skills

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"
)

// SkillFilename 技能定义文件固定名称
const SkillFilename = "SKILL.md"

// maxSkillIDLen skill_id 最大长度
const maxSkillIDLen = 100

// skillIDPattern kebab-case：小写字母/数字段，单个连字符分隔
var skillIDPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// ParsedSkill 从 SKILL.md 解析出的技能数据（瞬态，入库前的中间形态）
type ParsedSkill struct {
	SkillID         string
	Name            string
	Description     string
	Version         string
	Author          string
	Tags            []string
	Triggers        []string
	AllowedTools    []string // nil = 不限制工具
	RequiredContext []string
	Instructions    string
	Examples        string
	SourcePath      string
	FileModifiedAt  time.Time
}

// frontmatter SKILL.md 头部键值块
type frontmatter struct {
	Name            string   `yaml:"name"`
	DisplayName     string   `yaml:"display_name"`
	Description     string   `yaml:"description"`
	Version         string   `yaml:"version"`
	Author          string   `yaml:"author"`
	Tags            []string `yaml:"tags"`
	Triggers        []string `yaml:"triggers"`
	AllowedTools    []string `yaml:"allowed_tools"`
	RequiredContext []string `yaml:"required_context"`
}

// Parser SKILL.md 解析器
//
// SKILL.md 格式：
//
//	---
//	name: skill-name
//	description: "What this skill does and when to use it"
//	tags: [tag1, tag2]
//	triggers:
//	  - "when working with pytest"
//	---
//
//	## Instructions
//	[注入到 Agent system prompt 的内容]
//
//	## Examples
//	[可选使用示例]
type Parser struct{}

// NewParser 创建解析器
func NewParser() *Parser {
	return &Parser{}
}

// Parse 解析技能目录下的 SKILL.md
//
// 任何校验失败都以 error 返回，不会 panic；调用方据此跳过该文件。
func (p *Parser) Parse(skillDir string) (*ParsedSkill, error) {
	skillDir = filepath.Clean(skillDir)
	skillMDPath := filepath.Join(skillDir, SkillFilename)

	info, err := os.Stat(skillMDPath)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrSkillMDNotFound, skillMDPath)
	}
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(skillMDPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", SkillFilename, err)
	}

	fm, body := p.parseFrontmatter(string(content))
	instructions, examples := p.parseBodySections(body)

	// 必填字段校验
	if fm.Name == "" {
		return nil, fmt.Errorf("%w in %s", ErrMissingName, skillMDPath)
	}
	skillID := strings.ToLower(strings.TrimSpace(fm.Name))
	if !ValidateSkillID(skillID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSkillID, fm.Name)
	}
	if strings.TrimSpace(fm.Description) == "" {
		return nil, fmt.Errorf("%w in %s", ErrMissingDescription, skillMDPath)
	}
	if instructions == "" {
		return nil, fmt.Errorf("%w in %s", ErrMissingInstructions, skillMDPath)
	}

	version := fm.Version
	if version == "" {
		version = "1.0.0"
	}

	// 未提供 display_name 时从 skill_id 推导展示名
	displayName := fm.DisplayName
	if displayName == "" {
		displayName = titleFromSkillID(skillID)
	}

	return &ParsedSkill{
		SkillID:         skillID,
		Name:            displayName,
		Description:     strings.TrimSpace(fm.Description),
		Version:         version,
		Author:          fm.Author,
		Tags:            fm.Tags,
		Triggers:        fm.Triggers,
		AllowedTools:    fm.AllowedTools,
		RequiredContext: fm.RequiredContext,
		Instructions:    instructions,
		Examples:        examples,
		SourcePath:      skillDir,
		FileModifiedAt:  info.ModTime(),
	}, nil
}

// parseFrontmatter 分离头部键值块和正文
//
// 头部以 --- 开头、--- 结束。缺失或 YAML 非法时按空头部处理，
// 不作为致命错误（后续必填字段校验会兜底）。
func (p *Parser) parseFrontmatter(content string) (frontmatter, string) {
	var fm frontmatter

	content = strings.ReplaceAll(content, "\r\n", "\n")
	if !strings.HasPrefix(content, "---") {
		return fm, content
	}

	endIdx := strings.Index(content[3:], "---")
	if endIdx == -1 {
		return fm, content
	}
	endIdx += 3

	yamlContent := strings.TrimSpace(content[3:endIdx])
	body := strings.TrimSpace(content[endIdx+3:])

	if err := yaml.Unmarshal([]byte(yamlContent), &fm); err != nil {
		klog.Warningf("invalid YAML frontmatter: %v", err)
		return frontmatter{}, body
	}
	return fm, body
}

// parseBodySections 从正文提取 Instructions 和 Examples 章节
//
// 以二级标题识别章节，遇到其他二级标题停止收集。
func (p *Parser) parseBodySections(body string) (string, string) {
	var instructionLines, exampleLines []string

	current := ""
	for _, line := range strings.Split(body, "\n") {
		switch {
		case strings.HasPrefix(line, "## Instructions"):
			current = "instructions"
			continue
		case strings.HasPrefix(line, "## Examples"):
			current = "examples"
			continue
		case strings.HasPrefix(line, "## "):
			current = ""
			continue
		}

		switch current {
		case "instructions":
			instructionLines = append(instructionLines, line)
		case "examples":
			exampleLines = append(exampleLines, line)
		}
	}

	instructions := strings.TrimSpace(strings.Join(instructionLines, "\n"))
	examples := strings.TrimSpace(strings.Join(exampleLines, "\n"))
	return instructions, examples
}

// ValidateSkillID 校验 skill_id 格式（kebab-case，长度 1-100）
func ValidateSkillID(skillID string) bool {
	if skillID == "" || len(skillID) > maxSkillIDLen {
		return false
	}
	return skillIDPattern.MatchString(skillID)
}

// titleFromSkillID 连字符换空格并首字母大写，如 python-testing -> Python Testing
func titleFromSkillID(skillID string) string {
	parts := strings.Split(skillID, "-")
	for i, part := range parts {
		if part == "" {
			continue
		}
		parts[i] = strings.ToUpper(part[:1]) + part[1:]
	}
	return strings.Join(parts, " ")
}
