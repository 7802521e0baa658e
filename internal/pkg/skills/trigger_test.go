package skills

import "testing"

func TestCompileTriggerKinds(t *testing.T) {
	tests := []struct {
		raw      string
		kind     TriggerKind
		value    string
		keywords int
	}{
		{"file extension is .py", TriggerFileExtension, ".py", 0},
		{"when file extension is .go", TriggerFileExtension, ".go", 0},
		{"project type is python", TriggerProjectType, "python", 0},
		{"working with pytest", TriggerWorkingWith, "pytest", 0},
		{"when working with docker compose", TriggerWorkingWith, "docker compose", 0},
		{"mentions database migration", TriggerMentions, "database migration", 2},
		{"when writing database queries", TriggerGeneric, "", 3},
		{"completely unstructured rule", TriggerNone, "", 0},
		{"", TriggerNone, "", 0},
	}

	for _, tc := range tests {
		rule := CompileTrigger(tc.raw)
		if rule.Kind != tc.kind {
			t.Errorf("CompileTrigger(%q): expected kind %s, got %s", tc.raw, tc.kind, rule.Kind)
		}
		if tc.value != "" && rule.Value != tc.value {
			t.Errorf("CompileTrigger(%q): expected value %q, got %q", tc.raw, tc.value, rule.Value)
		}
		if len(rule.Keywords) != tc.keywords {
			t.Errorf("CompileTrigger(%q): expected %d keywords, got %v", tc.raw, tc.keywords, rule.Keywords)
		}
		if rule.Raw != tc.raw {
			t.Errorf("CompileTrigger(%q): raw not preserved", tc.raw)
		}
	}
}

func TestTriggerEvaluateFileExtension(t *testing.T) {
	rule := CompileTrigger("file extension is .py")

	hit, detail := rule.Evaluate(MatchContext{FilePath: "src/app/Main.PY"})
	if !hit {
		t.Fatal("expected case-insensitive suffix match")
	}
	if detail != "file extension .py" {
		t.Errorf("unexpected detail %q", detail)
	}

	if hit, _ := rule.Evaluate(MatchContext{FilePath: "src/main.go"}); hit {
		t.Error("expected no match for .go file")
	}
	if hit, _ := rule.Evaluate(MatchContext{}); hit {
		t.Error("expected no match for empty context")
	}
}

func TestTriggerEvaluateProjectType(t *testing.T) {
	rule := CompileTrigger("project type is python")

	if hit, _ := rule.Evaluate(MatchContext{ProjectType: "Python"}); !hit {
		t.Error("expected case-insensitive exact match")
	}
	if hit, _ := rule.Evaluate(MatchContext{ProjectType: "python-django"}); hit {
		t.Error("expected exact match only, not prefix")
	}
}

func TestTriggerEvaluateWorkingWith(t *testing.T) {
	rule := CompileTrigger("working with pytest")

	if hit, _ := rule.Evaluate(MatchContext{Query: "how do I use Pytest fixtures"}); !hit {
		t.Error("expected query substring match")
	}
	if hit, _ := rule.Evaluate(MatchContext{FileContent: "import pytest\n"}); !hit {
		t.Error("expected file content substring match")
	}
	if hit, _ := rule.Evaluate(MatchContext{Query: "unrelated"}); hit {
		t.Error("expected no match")
	}
}

func TestTriggerEvaluateMentions(t *testing.T) {
	rule := CompileTrigger("mentions database migration")

	if hit, _ := rule.Evaluate(MatchContext{Query: "run the database migration now"}); !hit {
		t.Error("expected match when all keywords present")
	}
	if hit, _ := rule.Evaluate(MatchContext{Query: "database schema design"}); hit {
		t.Error("expected no match when a keyword is missing")
	}
}

func TestTriggerEvaluateGeneric(t *testing.T) {
	rule := CompileTrigger("when writing database queries")

	// 长度 <=3 的词（如介词）不参与匹配
	if hit, _ := rule.Evaluate(MatchContext{Query: "optimize my database layer"}); !hit {
		t.Error("expected match on any long keyword")
	}
	hit, detail := rule.Evaluate(MatchContext{Query: "writing docs"})
	if !hit {
		t.Error("expected match on 'writing'")
	}
	if detail != "when writing database queries" {
		t.Errorf("expected raw rule as detail, got %q", detail)
	}
	if hit, _ := rule.Evaluate(MatchContext{Query: "deploy the app"}); hit {
		t.Error("expected no match")
	}
}

func TestCompileTriggersEmpty(t *testing.T) {
	if rules := CompileTriggers(nil); rules != nil {
		t.Errorf("expected nil for empty input, got %v", rules)
	}
	if rules := CompileTriggers([]string{"working with gin"}); len(rules) != 1 {
		t.Errorf("expected 1 rule, got %d", len(rules))
	}
}
