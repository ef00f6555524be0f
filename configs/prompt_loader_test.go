package config

import (
	"strings"
	"testing"
)

func TestLoadPrompts(t *testing.T) {
	// リポジトリに同梱されたプロンプト定義を読み込む
	prompts, err := LoadPrompts("prompts.yaml")
	if err != nil {
		t.Fatalf("Failed to load prompts.yaml: %v", err)
	}

	if prompts.Parser.Role == "" {
		t.Error("Expected parser role to be defined")
	}

	if prompts.Parser.Schema == "" {
		t.Error("Expected parser schema to be defined")
	}

	if len(prompts.Parser.Examples) == 0 {
		t.Error("Expected at least one parser example")
	}

	if len(prompts.Keywords.Instructions) == 0 {
		t.Error("Expected keywords instructions to be defined")
	}

	if len(prompts.Response.Guidelines) == 0 {
		t.Error("Expected response guidelines to be defined")
	}

	if len(prompts.Conversation.Guidelines) == 0 {
		t.Error("Expected conversation guidelines to be defined")
	}
}

func TestLoadPromptsCached(t *testing.T) {
	first, err := LoadPrompts("prompts.yaml")
	if err != nil {
		t.Fatalf("Failed to load prompts.yaml: %v", err)
	}

	second, err := LoadPrompts("prompts.yaml")
	if err != nil {
		t.Fatalf("Failed to load prompts.yaml from cache: %v", err)
	}

	// 2回目はキャッシュ済みの同一インスタンスを返す
	if first != second {
		t.Error("Expected cached instance on second load")
	}
}

func TestLoadPromptsMissingFile(t *testing.T) {
	if _, err := LoadPrompts("no_such_prompts.yaml"); err == nil {
		t.Error("Expected error for missing prompts file")
	}
}

func TestBuildParserPrompt(t *testing.T) {
	prompts, err := LoadPrompts("prompts.yaml")
	if err != nil {
		t.Fatalf("Failed to load prompts.yaml: %v", err)
	}

	prompt := prompts.BuildParserPrompt("2026-08-25")

	// 当日日付が埋め込まれていること
	if !strings.Contains(prompt, "2026-08-25") {
		t.Error("Expected parser prompt to contain today's date")
	}

	if !strings.Contains(prompt, prompts.Parser.Schema) {
		t.Error("Expected parser prompt to contain the JSON schema")
	}

	if !strings.Contains(prompt, "## Esempi") {
		t.Error("Expected parser prompt to contain the examples section")
	}
}

func TestBuildResponsePrompt(t *testing.T) {
	prompts, err := LoadPrompts("prompts.yaml")
	if err != nil {
		t.Fatalf("Failed to load prompts.yaml: %v", err)
	}

	prompt := prompts.BuildResponsePrompt()

	if !strings.Contains(prompt, "## Linee guida") {
		t.Error("Expected response prompt to contain the guidelines section")
	}

	for _, guideline := range prompts.Response.Guidelines {
		if !strings.Contains(prompt, guideline) {
			t.Errorf("Expected response prompt to contain guideline %q", guideline)
		}
	}
}

func TestBuildKeywordsPrompt(t *testing.T) {
	prompts, err := LoadPrompts("prompts.yaml")
	if err != nil {
		t.Fatalf("Failed to load prompts.yaml: %v", err)
	}

	prompt := prompts.BuildKeywordsPrompt()

	if !strings.Contains(prompt, prompts.Keywords.Role) {
		t.Error("Expected keywords prompt to contain the role")
	}
}
