package llm

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planify/internal/llmclient"
)

func TestFakeClientSectionText(t *testing.T) {
	f := NewFakeClient()
	ctx := WithStage(context.Background(), "section:child_views")

	gen, err := f.Generate(ctx, "sys", "user", llmclient.GenerateOptions{})
	require.NoError(t, err)
	assert.Contains(t, gen.Text, "child_views")
	assert.Greater(t, len(gen.Text), 300)
	assert.Positive(t, gen.TokensUsed)
}

func TestFakeClientOutcomesParse(t *testing.T) {
	f := NewFakeClient()
	ctx := WithStage(context.Background(), "outcomes")

	gen, err := f.Generate(ctx, "sys", "user", llmclient.GenerateOptions{})
	require.NoError(t, err)

	var docs []map[string]any
	require.NoError(t, json.Unmarshal([]byte(gen.Text), &docs))
	assert.Len(t, docs, 6)
	categories := map[string]bool{}
	for _, d := range docs {
		categories[d["category"].(string)] = true
	}
	assert.Len(t, categories, 6, "one outcome per category")
}

func TestFakeClientProvisionsLinkPromptIDs(t *testing.T) {
	f := NewFakeClient()
	ctx := WithStage(context.Background(), "provisions")
	user := `[INPUT] {"outcomes":[{"id":"abc-1"},{"id":"abc-2"},{"id":"abc-3"}]}`

	gen, err := f.Generate(ctx, "sys", user, llmclient.GenerateOptions{})
	require.NoError(t, err)

	var provisions []struct {
		LinkedOutcomes []string `json:"linked_outcomes"`
	}
	require.NoError(t, json.Unmarshal([]byte(gen.Text), &provisions))
	require.NotEmpty(t, provisions)
	assert.Equal(t, []string{"abc-1", "abc-2"}, provisions[0].LinkedOutcomes)
}

func TestFakeClientProvisionsWithoutIDs(t *testing.T) {
	f := NewFakeClient()
	ctx := WithStage(context.Background(), "provisions")

	gen, err := f.Generate(ctx, "sys", "no identifiers here", llmclient.GenerateOptions{})
	require.NoError(t, err)

	var provisions []struct {
		LinkedOutcomes []string `json:"linked_outcomes"`
	}
	require.NoError(t, json.Unmarshal([]byte(gen.Text), &provisions))
	assert.Empty(t, provisions[0].LinkedOutcomes)
}

func TestFakeClientCompliance(t *testing.T) {
	f := NewFakeClient()
	ctx := WithStage(context.Background(), "compliance")

	gen, err := f.Generate(ctx, "sys", "user", llmclient.GenerateOptions{})
	require.NoError(t, err)

	var report struct {
		ComplianceScore int             `json:"compliance_score"`
		Met             map[string]bool `json:"statutory_requirements_met"`
	}
	require.NoError(t, json.Unmarshal([]byte(gen.Text), &report))
	assert.Equal(t, 85, report.ComplianceScore)
	for _, key := range []string{"section_a", "section_b", "section_e", "section_f", "section_g"} {
		assert.Contains(t, report.Met, key)
	}
}
