package skills

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeSkillMD(t *testing.T, dir, content string) string {
	t.Helper()
	skillDir := filepath.Join(dir, "skill")
	if err := os.MkdirAll(skillDir, 0755); err != nil {
		t.Fatalf("mkdir error: %v", err)
	}
	if err := os.WriteFile(filepath.Join(skillDir, SkillFilename), []byte(content), 0644); err != nil {
		t.Fatalf("write SKILL.md error: %v", err)
	}
	return skillDir
}

func TestParserParseComplete(t *testing.T) {
	skillDir := writeSkillMD(t, t.TempDir(), `---
name: Python-Testing
description: "Best practices for writing Python tests with pytest"
version: 2.1.0
author: Platform Team
tags: [python, testing]
triggers:
  - "file_extension:.py"
  - "when working with pytest"
allowed_tools: [bash, editor]
required_context: [file_path]
---

## Instructions
Use pytest fixtures for setup.
Prefer parametrize over loops.

## Examples
def test_addition():
    assert 1 + 1 == 2
`)

	parser := NewParser()
	parsed, err := parser.Parse(skillDir)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}

	if parsed.SkillID != "python-testing" {
		t.Errorf("expected skill_id python-testing, got %q", parsed.SkillID)
	}
	if parsed.Name != "Python Testing" {
		t.Errorf("expected derived display name, got %q", parsed.Name)
	}
	if parsed.Version != "2.1.0" {
		t.Errorf("unexpected version %q", parsed.Version)
	}
	if len(parsed.Tags) != 2 || parsed.Tags[0] != "python" {
		t.Errorf("unexpected tags %v", parsed.Tags)
	}
	if len(parsed.Triggers) != 2 {
		t.Errorf("unexpected triggers %v", parsed.Triggers)
	}
	if parsed.Instructions != "Use pytest fixtures for setup.\nPrefer parametrize over loops." {
		t.Errorf("unexpected instructions %q", parsed.Instructions)
	}
	if parsed.Examples == "" {
		t.Errorf("expected examples section captured")
	}
	if parsed.SourcePath != skillDir {
		t.Errorf("expected source path %q, got %q", skillDir, parsed.SourcePath)
	}
	if parsed.FileModifiedAt.IsZero() {
		t.Errorf("expected file modified time set")
	}
}

func TestParserDisplayNameOverride(t *testing.T) {
	skillDir := writeSkillMD(t, t.TempDir(), `---
name: api-design
display_name: "REST API Design"
description: "Guidelines for designing REST APIs"
---

## Instructions
Use nouns for resources.
`)

	parsed, err := NewParser().Parse(skillDir)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if parsed.Name != "REST API Design" {
		t.Errorf("expected explicit display name, got %q", parsed.Name)
	}
	if parsed.Version != "1.0.0" {
		t.Errorf("expected default version, got %q", parsed.Version)
	}
	if parsed.AllowedTools != nil {
		t.Errorf("expected nil allowed_tools (unrestricted), got %v", parsed.AllowedTools)
	}
}

func TestParserMissingRequiredFields(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{
			name:    "no name",
			content: "---\ndescription: x\n---\n\n## Instructions\ndo it\n",
			wantErr: ErrMissingName,
		},
		{
			name:    "invalid skill id",
			content: "---\nname: Bad_Name\ndescription: x\n---\n\n## Instructions\ndo it\n",
			wantErr: ErrInvalidSkillID,
		},
		{
			name:    "no description",
			content: "---\nname: good-name\n---\n\n## Instructions\ndo it\n",
			wantErr: ErrMissingDescription,
		},
		{
			name:    "no instructions",
			content: "---\nname: good-name\ndescription: x\n---\n\njust prose\n",
			wantErr: ErrMissingInstructions,
		},
	}

	parser := NewParser()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			skillDir := writeSkillMD(t, t.TempDir(), tc.content)
			_, err := parser.Parse(skillDir)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestParserMissingFile(t *testing.T) {
	_, err := NewParser().Parse(t.TempDir())
	if !errors.Is(err, ErrSkillMDNotFound) {
		t.Fatalf("expected ErrSkillMDNotFound, got %v", err)
	}
}

func TestParserInvalidFrontmatterNotFatal(t *testing.T) {
	skillDir := writeSkillMD(t, t.TempDir(), `---
name: [unclosed
---

## Instructions
still here
`)

	_, err := NewParser().Parse(skillDir)
	// 头部整体作废后缺少 name，按必填字段缺失报错而不是 YAML 错误
	if !errors.Is(err, ErrMissingName) {
		t.Fatalf("expected ErrMissingName after YAML failure, got %v", err)
	}
}

func TestParserSectionBoundaries(t *testing.T) {
	skillDir := writeSkillMD(t, t.TempDir(), `---
name: section-test
description: "sections"
---

## Instructions
line one
line two

## Notes
ignored

## Examples
example line
`)

	parsed, err := NewParser().Parse(skillDir)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if parsed.Instructions != "line one\nline two" {
		t.Errorf("unexpected instructions %q", parsed.Instructions)
	}
	if parsed.Examples != "example line" {
		t.Errorf("unexpected examples %q", parsed.Examples)
	}
}

func TestValidateSkillID(t *testing.T) {
	valid := []string{"a", "python-testing", "skill-1-2-3", "abc123"}
	for _, id := range valid {
		if !ValidateSkillID(id) {
			t.Errorf("expected %q valid", id)
		}
	}

	long := ""
	for i := 0; i < 101; i++ {
		long += "a"
	}
	invalid := []string{"", "Python-Testing", "python_testing", "-leading", "trailing-", "double--dash", long}
	for _, id := range invalid {
		if ValidateSkillID(id) {
			t.Errorf("expected %q invalid", id)
		}
	}
}
