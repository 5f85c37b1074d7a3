package vision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"actorset/internal/domain"
)

func chatReply(t *testing.T, w http.ResponseWriter, content string) {
	t.Helper()
	reply := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(reply); err != nil {
		t.Fatalf("encode reply: %v", err)
	}
}

func validPayload(count int) string {
	images := make([]map[string]any, 0, count)
	for i := 1; i <= count; i++ {
		category := "photorealistic"
		if i%3 == 0 {
			category = "color-stylized"
		}
		images = append(images, map[string]any{
			"image_number":  i,
			"category":      category,
			"quality_score": 5 + i%5,
		})
	}
	raw, _ := json.Marshal(map[string]any{"images": images, "analysis": "looks fine"})
	return string(raw)
}

func newTestClient(t *testing.T, baseURL string, attempts int) *Client {
	t.Helper()
	client, err := NewClient(Options{
		APIKey:         "test-key",
		BaseURL:        baseURL,
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestEvaluateParsesValidResponse(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		chatReply(t, w, validPayload(4))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, 3)
	res, err := client.Evaluate(context.Background(), []byte("jpeg"), 4)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if gotAuth != "Bearer test-key" {
		t.Fatalf("authorization header = %q", gotAuth)
	}
	if len(res.Verdicts) != 4 {
		t.Fatalf("verdicts = %d, want 4", len(res.Verdicts))
	}
	if res.Verdicts[2].Category != domain.CategoryColor {
		t.Fatalf("verdict 3 category = %q", res.Verdicts[2].Category)
	}
	if res.Analysis != "looks fine" {
		t.Fatalf("analysis = %q", res.Analysis)
	}
}

func TestEvaluateRetriesMalformedJSONThenFails(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		chatReply(t, w, "{not valid json")
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, 3)
	_, err := client.Evaluate(context.Background(), []byte("jpeg"), 2)
	if !errors.Is(err, domain.ErrEvaluation) {
		t.Fatalf("err = %v, want domain.ErrEvaluation", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestEvaluateRecoversAfterTransientServerError(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		chatReply(t, w, validPayload(2))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, 3)
	res, err := client.Evaluate(context.Background(), []byte("jpeg"), 2)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
	if len(res.Verdicts) != 2 {
		t.Fatalf("verdicts = %d, want 2", len(res.Verdicts))
	}
}

func TestEvaluateDoesNotRetryUnauthorized(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, 3)
	_, err := client.Evaluate(context.Background(), []byte("jpeg"), 2)
	if !errors.Is(err, domain.ErrEvaluation) {
		t.Fatalf("err = %v, want domain.ErrEvaluation", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestParseEvaluationRejectsSchemaViolations(t *testing.T) {
	cases := []struct {
		name    string
		payload string
	}{
		{"unknown category", `{"images":[{"image_number":1,"category":"sepia","quality_score":5}],"analysis":""}`},
		{"ordinal out of range", `{"images":[{"image_number":2,"category":"photorealistic","quality_score":5}],"analysis":""}`},
		{"score out of range", `{"images":[{"image_number":1,"category":"photorealistic","quality_score":11}],"analysis":""}`},
		{"wrong count", `{"images":[],"analysis":""}`},
		{
			"duplicate ordinal",
			`{"images":[{"image_number":1,"category":"photorealistic","quality_score":5},{"image_number":1,"category":"color-stylized","quality_score":6}],"analysis":""}`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			count := 1
			if tc.name == "duplicate ordinal" {
				count = 2
			}
			if _, err := parseEvaluation(tc.payload, count); err == nil {
				t.Fatalf("expected error for %s", tc.name)
			}
		})
	}
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	if _, err := NewClient(Options{}); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("err = %v, want ErrMissingAPIKey", err)
	}
}

func TestBuildInstructionMentionsCountAndCategories(t *testing.T) {
	text := buildInstruction(12)
	for _, want := range []string{fmt.Sprint(12), "photorealistic", "monochrome-stylized", "color-stylized", "image_number"} {
		if !strings.Contains(text, want) {
			t.Fatalf("instruction missing %q", want)
		}
	}
}
