package usecase_test

import (
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/lookout/pkg/domain/model"
	"github.com/m-mizutani/lookout/pkg/usecase"
)

func TestFormatAlertText(t *testing.T) {
	occurred := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	alert := &model.Alert{
		Fingerprint: "abc123",
		Event: model.Event{
			Source:       "huggingface",
			ResourceType: "org_models",
			ResourceID:   "deepseek-ai",
			EventType:    "model_updated",
			EventID:      "sha1|deepseek-ai/DeepSeek-V3",
			Title:        "deepseek-ai/DeepSeek-V3",
			Summary:      "text-generation",
			URL:          "https://huggingface.co/deepseek-ai/DeepSeek-V3",
			OccurredAt:   &occurred,
			ObservedAt:   time.Date(2025, 1, 2, 4, 0, 0, 0, time.UTC),
		},
		MatchedRules: []model.RuleMatch{
			{RuleID: "keyword:deepseek", Reason: `matched keyword "deepseek"`},
		},
	}

	text := usecase.FormatAlertText(alert)

	gt.String(t, text).Contains("Lookout Alert")
	gt.String(t, text).Contains("source: huggingface")
	gt.String(t, text).Contains("resource: org_models deepseek-ai")
	gt.String(t, text).Contains("type: model_updated")
	gt.String(t, text).Contains("title: deepseek-ai/DeepSeek-V3")
	gt.String(t, text).Contains("url: https://huggingface.co/deepseek-ai/DeepSeek-V3")
	gt.String(t, text).Contains("occurred_at: 2025-01-02T03:04:05Z")
	gt.String(t, text).Contains("observed_at: 2025-01-02T04:00:00Z")
	gt.String(t, text).Contains("matched_rules: keyword:deepseek")
	gt.String(t, text).Contains("\n\ntext-generation")
}

func TestFormatAlertTextPlaceholders(t *testing.T) {
	alert := &model.Alert{
		Event: model.Event{
			Source:     "modelscope",
			ObservedAt: time.Date(2025, 1, 2, 4, 0, 0, 0, time.UTC),
		},
	}

	text := usecase.FormatAlertText(alert)

	gt.String(t, text).Contains("occurred_at: -")
	gt.String(t, text).Contains("matched_rules: -")
	// No trailing summary block when summary is empty
	if strings.HasSuffix(text, "\n") {
		t.Error("unexpected trailing newline without summary")
	}
}
