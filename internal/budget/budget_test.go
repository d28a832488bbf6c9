package budget

import (
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
)

func Test_Estimate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"a", 1},        // < 4 chars → 1
		{"abcd", 1},     // exactly 4 chars → 1
		{"abcde", 1},    // 5 chars → 1
		{"abcdefgh", 2}, // 8 chars → 2
		{strings.Repeat("x", 400), 100},
		{"日本語のテキスト", 2}, // 8 runes, 24 bytes
	}
	for _, tc := range cases {
		got := Estimate(tc.input)
		if got != tc.want {
			t.Errorf("Estimate(%q) = %d, want %d", tc.input, got, tc.want)
		}
	}
}

func Test_EstimateMessages(t *testing.T) {
	t.Parallel()
	msgs := []*schema.Message{
		schema.UserMessage("hello world"), // 4 overhead + 1 (role) + 2 (content) = 7
		schema.UserMessage("hello world"),
	}
	if got := EstimateMessages(msgs); got != 14 {
		t.Errorf("EstimateMessages = %d, want 14", got)
	}
	if !Fits(msgs, 14) || Fits(msgs, 13) {
		t.Error("Fits disagrees with EstimateMessages")
	}
}

func Test_TrimHistory(t *testing.T) {
	t.Parallel()

	// Each short message below costs 4 overhead + 1 role + 1 content = 6
	// tokens; assistant messages cost 4 + 2 + 1 = 7.
	user := func(s string) *schema.Message { return schema.UserMessage(s) }
	assistant := func(s string) *schema.Message { return schema.AssistantMessage(s, nil) }

	cases := []struct {
		name    string
		fixed   []*schema.Message
		history []*schema.Message
		max     int
		want    []string
	}{
		{
			name:    "no trim needed",
			fixed:   []*schema.Message{schema.SystemMessage("sys")},
			history: []*schema.Message{user("hi"), user("there")},
			max:     DefaultMaxContextTokens,
			want:    []string{"hi", "there"},
		},
		{
			name:    "drops oldest",
			history: []*schema.Message{user("old"), user("new")},
			max:     7,
			want:    []string{"new"},
		},
		{
			name:    "empty history",
			fixed:   []*schema.Message{schema.SystemMessage("sys")},
			history: nil,
			max:     DefaultMaxContextTokens,
			want:    nil,
		},
		{
			name:    "fixed exceeds budget",
			fixed:   []*schema.Message{schema.SystemMessage(strings.Repeat("x", 4*7000))},
			history: []*schema.Message{user("a"), user("b")},
			max:     6000,
			want:    nil,
		},
		{
			name:    "orphaned reply dropped after trim",
			history: []*schema.Message{user("q1"), assistant("a1"), user("q2"), assistant("a2")},
			max:     20,
			want:    []string{"q2", "a2"},
		},
		{
			name:    "untrimmed history may open on a reply",
			history: []*schema.Message{assistant("greeting"), user("q")},
			max:     DefaultMaxContextTokens,
			want:    []string{"greeting", "q"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := TrimHistory(tc.fixed, tc.history, tc.max)
			if len(got) != len(tc.want) {
				t.Fatalf("kept %d messages, want %d", len(got), len(tc.want))
			}
			for i, m := range got {
				if m.Content != tc.want[i] {
					t.Errorf("message %d = %q, want %q", i, m.Content, tc.want[i])
				}
			}
		})
	}
}
