package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// PromptsConfig はprompts.yamlの構造を定義
type PromptsConfig struct {
	Parser struct {
		Role         string   `yaml:"role"`
		Instructions []string `yaml:"instructions"`
		Schema       string   `yaml:"schema"`
		Examples     []struct {
			Question string `yaml:"question"`
			Answer   string `yaml:"answer"`
		} `yaml:"examples"`
	} `yaml:"parser"`

	Keywords struct {
		Role         string   `yaml:"role"`
		Instructions []string `yaml:"instructions"`
	} `yaml:"keywords"`

	Response struct {
		Role       string   `yaml:"role"`
		Guidelines []string `yaml:"guidelines"`
	} `yaml:"response"`

	Conversation struct {
		Role       string   `yaml:"role"`
		Guidelines []string `yaml:"guidelines"`
	} `yaml:"conversation"`

	Metadata struct {
		Version     string `yaml:"version"`
		LastUpdated string `yaml:"last_updated"`
	} `yaml:"metadata"`
}

var cachedPrompts = map[string]*PromptsConfig{}

// LoadPrompts はYAMLファイルからプロンプト設定を読み込む
func LoadPrompts(path string) (*PromptsConfig, error) {
	if cached, ok := cachedPrompts[path]; ok {
		return cached, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("プロンプト設定ファイルの読み込みに失敗: %w", err)
	}

	var config PromptsConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("YAMLのパースに失敗: %w", err)
	}

	cachedPrompts[path] = &config
	return &config, nil
}

// BuildParserPrompt はクエリ解析用のシステムプロンプトを構築
// 相対的な期間表現（"il mese prossimo" 等）を解決できるよう当日日付を埋め込む
func (c *PromptsConfig) BuildParserPrompt(today string) string {
	var sb strings.Builder

	sb.WriteString(c.Parser.Role)
	sb.WriteString("\n\n")
	sb.WriteString(fmt.Sprintf("Data odierna: %s\n\n", today))

	sb.WriteString("## Istruzioni\n")
	for _, inst := range c.Parser.Instructions {
		sb.WriteString(fmt.Sprintf("- %s\n", inst))
	}
	sb.WriteString("\n")

	sb.WriteString("## Formato di risposta\n")
	sb.WriteString(c.Parser.Schema)
	sb.WriteString("\n")

	if len(c.Parser.Examples) > 0 {
		sb.WriteString("\n## Esempi\n")
		for _, example := range c.Parser.Examples {
			sb.WriteString(fmt.Sprintf("Domanda: %s\n", example.Question))
			sb.WriteString(fmt.Sprintf("Risposta: %s\n", example.Answer))
		}
	}

	return sb.String()
}

// BuildKeywordsPrompt はキーワード生成用のシステムプロンプトを構築
func (c *PromptsConfig) BuildKeywordsPrompt() string {
	var sb strings.Builder

	sb.WriteString(c.Keywords.Role)
	sb.WriteString("\n\n")
	sb.WriteString("## Istruzioni\n")
	for _, inst := range c.Keywords.Instructions {
		sb.WriteString(fmt.Sprintf("- %s\n", inst))
	}

	return sb.String()
}

// BuildResponsePrompt は最終応答生成用のシステムプロンプトを構築
func (c *PromptsConfig) BuildResponsePrompt() string {
	var sb strings.Builder

	sb.WriteString(c.Response.Role)
	sb.WriteString("\n\n")
	sb.WriteString("## Linee guida\n")
	for _, guideline := range c.Response.Guidelines {
		sb.WriteString(fmt.Sprintf("- %s\n", guideline))
	}

	return sb.String()
}

// BuildConversationPrompt は雑談・機能説明用のシステムプロンプトを構築
func (c *PromptsConfig) BuildConversationPrompt() string {
	var sb strings.Builder

	sb.WriteString(c.Conversation.Role)
	sb.WriteString("\n\n")
	sb.WriteString("## Linee guida\n")
	for _, guideline := range c.Conversation.Guidelines {
		sb.WriteString(fmt.Sprintf("- %s\n", guideline))
	}

	return sb.String()
}
