package skills

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/langconfig/backend/internal/eventbus"
	"github.com/langconfig/backend/internal/model"
	"github.com/langconfig/backend/internal/repository"
	"gorm.io/gorm"
)

func newTestRepo(t *testing.T) repository.SkillRepository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db error: %v", err)
	}
	if err := db.AutoMigrate(&model.Skill{}, &model.SkillExecution{}); err != nil {
		t.Fatalf("migrate error: %v", err)
	}
	return repository.NewSkillRepository(db)
}

func newTestRegistry(t *testing.T, builtinDir string) *Registry {
	t.Helper()
	loader := NewLoader(NewParser(), builtinDir, filepath.Join(t.TempDir(), "personal"), nil)
	return NewRegistry(loader, newTestRepo(t), eventbus.NewBus())
}

func writeBuiltinSkill(t *testing.T, builtinDir, skillID, description string, tags, triggers []string) {
	t.Helper()
	skillDir := filepath.Join(builtinDir, skillID)
	if err := os.MkdirAll(skillDir, 0755); err != nil {
		t.Fatalf("mkdir error: %v", err)
	}
	content := "---\nname: " + skillID + "\ndescription: \"" + description + "\"\n"
	if len(tags) > 0 {
		content += "tags: ["
		for i, tag := range tags {
			if i > 0 {
				content += ", "
			}
			content += tag
		}
		content += "]\n"
	}
	if len(triggers) > 0 {
		content += "triggers:\n"
		for _, tr := range triggers {
			content += "  - \"" + tr + "\"\n"
		}
	}
	content += "---\n\n## Instructions\nGuidance for " + skillID + ".\n"
	if err := os.WriteFile(filepath.Join(skillDir, SkillFilename), []byte(content), 0644); err != nil {
		t.Fatalf("write error: %v", err)
	}
}

func TestRegistryInitialize(t *testing.T) {
	builtinDir := t.TempDir()
	writeBuiltinSkill(t, builtinDir, "python-testing", "pytest best practices", []string{"python", "testing"}, []string{"working with pytest"})
	writeBuiltinSkill(t, builtinDir, "api-design", "REST API guidelines", []string{"api"}, nil)

	registry := newTestRegistry(t, builtinDir)
	ctx := context.Background()

	count, err := registry.Initialize(ctx, nil)
	if err != nil {
		t.Fatalf("Initialize error: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 skills indexed, got %d", count)
	}
	if !registry.IsInitialized() {
		t.Fatal("expected initialized state")
	}

	// 幂等：二次调用不重复扫描
	count, err = registry.Initialize(ctx, nil)
	if err != nil || count != 2 {
		t.Fatalf("expected idempotent Initialize, got count=%d err=%v", count, err)
	}

	skill := registry.GetSkill("python-testing")
	if skill == nil {
		t.Fatal("expected python-testing registered")
	}
	if skill.SourceType != model.SourceBuiltin {
		t.Errorf("unexpected source type %s", skill.SourceType)
	}
	if skill.AvgSuccessRate != 1.0 {
		t.Errorf("expected initial success rate 1.0, got %f", skill.AvgSuccessRate)
	}
	if rules := registry.TriggerRules("python-testing"); len(rules) != 1 || rules[0].Kind != TriggerWorkingWith {
		t.Errorf("expected compiled trigger rules, got %+v", rules)
	}
}

func TestRegistryInitializeSkipsInvalid(t *testing.T) {
	builtinDir := t.TempDir()
	writeBuiltinSkill(t, builtinDir, "good-skill", "a valid skill", nil, nil)

	// 缺少 Instructions 的技能被跳过但不影响其他技能
	badDir := filepath.Join(builtinDir, "bad-skill")
	if err := os.MkdirAll(badDir, 0755); err != nil {
		t.Fatalf("mkdir error: %v", err)
	}
	if err := os.WriteFile(filepath.Join(badDir, SkillFilename), []byte("---\nname: bad-skill\ndescription: x\n---\n\nno sections\n"), 0644); err != nil {
		t.Fatalf("write error: %v", err)
	}

	registry := newTestRegistry(t, builtinDir)
	count, err := registry.Initialize(context.Background(), nil)
	if err != nil {
		t.Fatalf("Initialize error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 skill indexed, got %d", count)
	}
	if registry.GetSkill("bad-skill") != nil {
		t.Fatal("invalid skill should not be registered")
	}
}

func TestRegistryFindByTags(t *testing.T) {
	builtinDir := t.TempDir()
	writeBuiltinSkill(t, builtinDir, "python-testing", "pytest tips", []string{"python", "testing"}, nil)
	writeBuiltinSkill(t, builtinDir, "go-testing", "go test tips", []string{"golang", "testing"}, nil)
	writeBuiltinSkill(t, builtinDir, "api-design", "REST guidelines", []string{"api"}, nil)

	registry := newTestRegistry(t, builtinDir)
	if _, err := registry.Initialize(context.Background(), nil); err != nil {
		t.Fatalf("Initialize error: %v", err)
	}

	any := registry.FindByTags([]string{"Testing"}, false)
	if len(any) != 2 {
		t.Fatalf("expected 2 skills with testing tag, got %d", len(any))
	}
	if any[0].SkillID != "go-testing" || any[1].SkillID != "python-testing" {
		t.Errorf("expected sorted results, got %s, %s", any[0].SkillID, any[1].SkillID)
	}

	all := registry.FindByTags([]string{"testing", "python"}, true)
	if len(all) != 1 || all[0].SkillID != "python-testing" {
		t.Fatalf("expected intersection to yield python-testing, got %+v", all)
	}

	if got := registry.FindByTags(nil, false); got != nil {
		t.Errorf("expected nil for empty tags, got %+v", got)
	}
}

func TestRegistrySearch(t *testing.T) {
	builtinDir := t.TempDir()
	writeBuiltinSkill(t, builtinDir, "python-testing", "pytest best practices", nil, nil)
	writeBuiltinSkill(t, builtinDir, "api-design", "REST API guidelines", nil, nil)

	registry := newTestRegistry(t, builtinDir)
	if _, err := registry.Initialize(context.Background(), nil); err != nil {
		t.Fatalf("Initialize error: %v", err)
	}

	if got := registry.Search("PYTEST"); len(got) != 1 || got[0].SkillID != "python-testing" {
		t.Fatalf("expected description match, got %+v", got)
	}
	if got := registry.Search("design"); len(got) != 1 {
		t.Fatalf("expected skill_id match, got %+v", got)
	}
	if got := registry.Search("nothing-here"); len(got) != 0 {
		t.Fatalf("expected empty result, got %+v", got)
	}
}

func TestRegistryRecordExecution(t *testing.T) {
	builtinDir := t.TempDir()
	writeBuiltinSkill(t, builtinDir, "python-testing", "pytest tips", nil, nil)

	registry := newTestRegistry(t, builtinDir)
	ctx := context.Background()
	if _, err := registry.Initialize(ctx, nil); err != nil {
		t.Fatalf("Initialize error: %v", err)
	}

	// success 在 1.0 基线上仍是 1.0
	if err := registry.RecordExecution(ctx, ExecutionRecord{
		SkillID:        "python-testing",
		InvocationType: model.InvocationAutomatic,
		Status:         model.ExecutionSuccess,
		AgentID:        "agent-1",
	}); err != nil {
		t.Fatalf("RecordExecution error: %v", err)
	}

	skill := registry.GetSkill("python-testing")
	if skill.UsageCount != 1 {
		t.Errorf("expected usage count 1, got %d", skill.UsageCount)
	}
	if skill.LastUsedAt == nil {
		t.Error("expected last_used_at set")
	}
	if math.Abs(skill.AvgSuccessRate-1.0) > 1e-9 {
		t.Errorf("expected success rate 1.0, got %f", skill.AvgSuccessRate)
	}

	// failed 按 0.9 衰减
	if err := registry.RecordExecution(ctx, ExecutionRecord{
		SkillID: "python-testing",
		Status:  model.ExecutionFailed,
	}); err != nil {
		t.Fatalf("RecordExecution error: %v", err)
	}
	skill = registry.GetSkill("python-testing")
	if math.Abs(skill.AvgSuccessRate-0.9) > 1e-9 {
		t.Errorf("expected success rate 0.9, got %f", skill.AvgSuccessRate)
	}

	// partial 不改变成功率，但仍计一次使用
	if err := registry.RecordExecution(ctx, ExecutionRecord{
		SkillID: "python-testing",
		Status:  model.ExecutionPartial,
	}); err != nil {
		t.Fatalf("RecordExecution error: %v", err)
	}
	skill = registry.GetSkill("python-testing")
	if math.Abs(skill.AvgSuccessRate-0.9) > 1e-9 {
		t.Errorf("expected unchanged success rate, got %f", skill.AvgSuccessRate)
	}
	if skill.UsageCount != 3 {
		t.Errorf("expected usage count 3, got %d", skill.UsageCount)
	}

	executions, err := registry.ListExecutions(ctx, "python-testing", 10)
	if err != nil {
		t.Fatalf("ListExecutions error: %v", err)
	}
	if len(executions) != 3 {
		t.Fatalf("expected 3 executions, got %d", len(executions))
	}
	for _, e := range executions {
		if e.ExecutionID == "" {
			t.Error("expected execution_id assigned")
		}
	}
}

func TestRegistryRecordExecutionUnknownSkill(t *testing.T) {
	registry := newTestRegistry(t, t.TempDir())
	if _, err := registry.Initialize(context.Background(), nil); err != nil {
		t.Fatalf("Initialize error: %v", err)
	}

	// 未知技能静默忽略
	if err := registry.RecordExecution(context.Background(), ExecutionRecord{
		SkillID: "never-registered",
		Status:  model.ExecutionSuccess,
	}); err != nil {
		t.Fatalf("expected silent no-op, got %v", err)
	}
}

func TestRegistryDeleteSkill(t *testing.T) {
	builtinDir := t.TempDir()
	writeBuiltinSkill(t, builtinDir, "python-testing", "pytest tips", []string{"testing"}, nil)

	registry := newTestRegistry(t, builtinDir)
	ctx := context.Background()
	if _, err := registry.Initialize(ctx, nil); err != nil {
		t.Fatalf("Initialize error: %v", err)
	}
	if err := registry.RecordExecution(ctx, ExecutionRecord{SkillID: "python-testing", Status: model.ExecutionSuccess}); err != nil {
		t.Fatalf("RecordExecution error: %v", err)
	}

	if !registry.DeleteSkill(ctx, "python-testing") {
		t.Fatal("expected delete to succeed")
	}
	if registry.GetSkill("python-testing") != nil {
		t.Error("expected skill removed from memory")
	}
	if got := registry.FindByTags([]string{"testing"}, false); len(got) != 0 {
		t.Errorf("expected tag index cleaned, got %+v", got)
	}
	if _, err := registry.ListExecutions(ctx, "python-testing", 10); !errors.Is(err, ErrSkillNotFound) {
		t.Errorf("expected ErrSkillNotFound after delete, got %v", err)
	}

	// 删除是幂等的
	if !registry.DeleteSkill(ctx, "python-testing") {
		t.Error("expected repeated delete to return true")
	}
}

func TestRegistryCreateAndUpdateSkill(t *testing.T) {
	registry := newTestRegistry(t, t.TempDir())
	ctx := context.Background()
	if _, err := registry.Initialize(ctx, nil); err != nil {
		t.Fatalf("Initialize error: %v", err)
	}

	skill, err := registry.CreateSkill(ctx, "my-skill", "My Skill", "a custom skill", []string{"custom"}, nil, "do things carefully")
	if err != nil {
		t.Fatalf("CreateSkill error: %v", err)
	}
	if skill.SourceType != model.SourcePersonal {
		t.Errorf("expected personal source, got %s", skill.SourceType)
	}
	if skill.Version != "1.0.0" {
		t.Errorf("expected default version, got %q", skill.Version)
	}
	if registry.GetSkill("my-skill") == nil {
		t.Fatal("expected created skill registered")
	}

	if _, err := registry.CreateSkill(ctx, "Bad_ID", "x", "y", nil, nil, "z"); !errors.Is(err, ErrInvalidSkillID) {
		t.Fatalf("expected ErrInvalidSkillID, got %v", err)
	}

	updated := *skill
	updated.Description = "an updated skill"
	updated.Triggers = []string{"working with gin"}
	if !registry.UpdateSkill(ctx, &updated) {
		t.Fatal("expected update to succeed")
	}
	if got := registry.GetSkill("my-skill"); got.Description != "an updated skill" {
		t.Errorf("expected updated description, got %q", got.Description)
	}
	if rules := registry.TriggerRules("my-skill"); len(rules) != 1 || rules[0].Kind != TriggerWorkingWith {
		t.Errorf("expected recompiled trigger rules, got %+v", rules)
	}

	missing := model.Skill{SkillID: "does-not-exist", Name: "x"}
	if registry.UpdateSkill(ctx, &missing) {
		t.Error("expected update of unknown skill to fail")
	}
}

func TestRegistryReloadAll(t *testing.T) {
	builtinDir := t.TempDir()
	writeBuiltinSkill(t, builtinDir, "python-testing", "pytest tips", []string{"testing"}, nil)

	registry := newTestRegistry(t, builtinDir)
	ctx := context.Background()
	if _, err := registry.Initialize(ctx, nil); err != nil {
		t.Fatalf("Initialize error: %v", err)
	}

	writeBuiltinSkill(t, builtinDir, "api-design", "REST guidelines", nil, nil)

	count, err := registry.ReloadAll(ctx, nil)
	if err != nil {
		t.Fatalf("ReloadAll error: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 skills after reload, got %d", count)
	}
	if registry.GetSkill("api-design") == nil {
		t.Fatal("expected new skill discovered on reload")
	}
}

func TestRegistryReloadSkillPicksUpChanges(t *testing.T) {
	builtinDir := t.TempDir()
	writeBuiltinSkill(t, builtinDir, "python-testing", "old description", []string{"testing"}, nil)

	registry := newTestRegistry(t, builtinDir)
	ctx := context.Background()
	if _, err := registry.Initialize(ctx, nil); err != nil {
		t.Fatalf("Initialize error: %v", err)
	}

	writeBuiltinSkill(t, builtinDir, "python-testing", "new description", []string{"python"}, nil)
	// 确保文件修改时间前进，数据库回写依赖它
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(filepath.Join(builtinDir, "python-testing", SkillFilename), future, future); err != nil {
		t.Fatalf("chtimes error: %v", err)
	}

	if !registry.ReloadSkill(ctx, "python-testing") {
		t.Fatal("expected reload to succeed")
	}

	skill := registry.GetSkill("python-testing")
	if skill.Description != "new description" {
		t.Errorf("expected updated description, got %q", skill.Description)
	}
	if got := registry.FindByTags([]string{"testing"}, false); len(got) != 0 {
		t.Errorf("expected old tag removed, got %+v", got)
	}
	if got := registry.FindByTags([]string{"python"}, false); len(got) != 1 {
		t.Errorf("expected new tag indexed, got %+v", got)
	}

	if registry.ReloadSkill(ctx, "never-registered") {
		t.Error("expected reload of unknown skill to fail")
	}
}
