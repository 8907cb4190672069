package usecase_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/lookout/pkg/domain/model"
	"github.com/m-mizutani/lookout/pkg/usecase"
)

func TestRuleMatcherKeywords(t *testing.T) {
	matcher := usecase.NewRuleMatcher([]string{"DeepSeek", " qwen ", ""})

	tests := []struct {
		name    string
		title   string
		summary string
		want    []string
	}{
		{
			name:  "case insensitive title match",
			title: "DEEPSEEK-V3 released",
			want:  []string{"keyword:deepseek"},
		},
		{
			name:    "summary match",
			title:   "new model drop",
			summary: "The Qwen team published weights",
			want:    []string{"keyword:qwen"},
		},
		{
			name:    "multiple keywords in configuration order",
			title:   "qwen vs deepseek benchmark",
			summary: "",
			want:    []string{"keyword:deepseek", "keyword:qwen"},
		},
		{
			name:  "no match",
			title: "unrelated change",
			want:  nil,
		},
		{
			name:  "substring inside a word still matches",
			title: "deepseekv3-quantized",
			want:  []string{"keyword:deepseek"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := &model.Event{
				Source:  "github",
				Title:   tt.title,
				Summary: tt.summary,
			}
			matches := matcher.Match(event)

			var got []string
			for _, m := range matches {
				got = append(got, m.RuleID)
			}
			gt.Value(t, got).Equal(tt.want)

			for _, m := range matches {
				gt.String(t, m.Reason).Contains("matched keyword")
			}
		})
	}
}

func TestRuleMatcherSourceAllowlist(t *testing.T) {
	matcher := usecase.NewRuleMatcher([]string{"deepseek"},
		usecase.WithSourceAllowlist("huggingface"))

	allowed := &model.Event{Source: "huggingface", Title: "deepseek-v3"}
	gt.Value(t, len(matcher.Match(allowed))).Equal(1)

	blocked := &model.Event{Source: "github", Title: "deepseek-v3"}
	gt.Value(t, matcher.Match(blocked)).Nil()
}

func TestRuleMatcherDeterministic(t *testing.T) {
	matcher := usecase.NewRuleMatcher([]string{"deepseek"})
	event := &model.Event{Source: "github", Title: "deepseek release"}

	first := matcher.Match(event)
	second := matcher.Match(event)
	gt.Value(t, first).Equal(second)
}
