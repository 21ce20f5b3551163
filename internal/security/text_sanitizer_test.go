package security

import "testing"

func TestTextSanitizer_Sanitize(t *testing.T) {
	s := NewTextSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "プレーンテキストはそのまま",
			input: "Golang Weekly Issue 512",
			want:  "Golang Weekly Issue 512",
		},
		{
			name:  "scriptタグの除去",
			input: `<script>alert("xss")</script>Breaking News`,
			want:  "Breaking News",
		},
		{
			name:  "装飾タグの除去",
			input: "<b>Bold</b> and <i>italic</i> title",
			want:  "Bold and italic title",
		},
		{
			name:  "imgタグのonerror属性ごと除去",
			input: `Title<img src=x onerror=alert(1)>`,
			want:  "Title",
		},
		{
			name:  "前後の空白の除去",
			input: "  spaced out  ",
			want:  "spaced out",
		},
		{
			name:  "日本語テキストはそのまま",
			input: "今日のニュース",
			want:  "今日のニュース",
		},
		{
			name:  "空文字列",
			input: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Sanitize(tt.input); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestTextSanitizer_Idempotent は同一入力に対して常に同一出力を返すことを検証する。
func TestTextSanitizer_Idempotent(t *testing.T) {
	s := NewTextSanitizer()

	inputs := []string{
		"Tom & Jerry",
		"<b>Bold</b> title",
		"a < b && b > c",
	}

	for _, input := range inputs {
		once := s.Sanitize(input)
		twice := s.Sanitize(once)
		if once != twice {
			t.Errorf("Sanitize が冪等でない: %q -> %q -> %q", input, once, twice)
		}
	}
}

// TestTextSanitizer_NoDoubleEscape はエンティティ化された結果が残らず、
// html/templateでの二重エスケープを避けられることを検証する。
func TestTextSanitizer_NoDoubleEscape(t *testing.T) {
	s := NewTextSanitizer()

	got := s.Sanitize("Tom & Jerry")
	if got != "Tom & Jerry" {
		t.Errorf("Sanitize(%q) = %q, want %q", "Tom & Jerry", got, "Tom & Jerry")
	}
}
