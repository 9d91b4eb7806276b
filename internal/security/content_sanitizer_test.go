package security

import "testing"

func TestContentSanitizer_ImplementsInterface(t *testing.T) {
	var _ ContentSanitizerService = (*contentSanitizer)(nil)
}

func TestSanitize_StripsAllTags(t *testing.T) {
	s := NewContentSanitizer()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"プレーンテキストはそのまま", "dance challenge compilation", "dance challenge compilation"},
		{"scriptタグ除去", `before<script>alert("xss")</script>after`, "beforeafter"},
		{"整形タグも除去", "<p>hello <strong>world</strong></p>", "hello world"},
		{"iframe除去", `<iframe src="https://evil.example"></iframe>ok`, "ok"},
		{"HTMLエンティティのデコード", "Tom &amp; Jerry", "Tom & Jerry"},
		{"前後の空白除去", "  trimmed  ", "trimmed"},
		{"空文字列", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Sanitize(tt.in)
			if got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// 同一入力に対して常に同一出力を返すこと（冪等性）
func TestSanitize_Idempotent(t *testing.T) {
	s := NewContentSanitizer()
	in := `<b>viral</b> sound &amp; effect`

	first := s.Sanitize(in)
	second := s.Sanitize(first)
	if first != second {
		t.Errorf("Sanitize は冪等であるべき: %q != %q", first, second)
	}
}
