package contact

import (
	"errors"
	"strings"
	"testing"
)

func valid() Submission {
	return Submission{
		Name:    "Ada Lovelace",
		Email:   "ada@example.com",
		Subject: "Question about PNG",
		Message: "How does the PNG slider work?",
	}
}

func TestValidate_MessageLengthBoundary(t *testing.T) {
	sub := valid()
	sub.Message = strings.Repeat("x", 9)

	err := sub.Validate()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Message != "Message must be at least 10 characters" {
		t.Errorf("message = %q", verr.Message)
	}
	if verr.Field != "message" {
		t.Errorf("field = %q, want message", verr.Field)
	}

	sub.Message = strings.Repeat("x", 10)
	if err := sub.Validate(); err != nil {
		t.Errorf("10 characters should be accepted, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Submission)
		wantMsg string
	}{
		{"valid", func(s *Submission) {}, ""},
		{"newline in email", func(s *Submission) { s.Email = "ada@example.com\nBcc: x@y.z" }, "Invalid email format"},
		{"carriage return in email", func(s *Submission) { s.Email = "ada@exa\rmple.com" }, "Invalid email format"},
		{"newline beats other errors", func(s *Submission) { s.Email = "a@b.c\n"; s.Message = "short" }, "Invalid email format"},
		{"no at sign", func(s *Submission) { s.Email = "ada.example.com" }, "Invalid email format"},
		{"no dot in domain", func(s *Submission) { s.Email = "ada@example" }, "Invalid email format"},
		{"space in email", func(s *Submission) { s.Email = "ada lovelace@example.com" }, "Invalid email format"},
		{"email too long", func(s *Submission) { s.Email = strings.Repeat("a", 250) + "@b.co" }, "Invalid email format"},
		{"short name", func(s *Submission) { s.Name = "A" }, "Name must be at least 2 characters"},
		{"name of two", func(s *Submission) { s.Name = "Al" }, ""},
		{"short subject", func(s *Submission) { s.Subject = "Hey" }, "Subject must be at least 5 characters"},
		{"padded message", func(s *Submission) { s.Message = "  short " }, "Message must be at least 10 characters"},
		{"surrounding spaces count", func(s *Submission) { s.Message = " 123456789" }, ""},
		{"blank name of two", func(s *Submission) { s.Name = "  " }, ""},
		{"multibyte counts runes", func(s *Submission) { s.Name = "Åö" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := valid()
			tt.mutate(&sub)
			err := sub.Validate()
			if tt.wantMsg == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || err.Error() != tt.wantMsg {
				t.Errorf("Validate() = %v, want %q", err, tt.wantMsg)
			}
		})
	}
}

func TestMissing(t *testing.T) {
	sub := Submission{Name: "Ada", Message: "  "}
	missing := sub.Missing()
	want := []string{"email", "subject"}
	if strings.Join(missing, ",") != strings.Join(want, ",") {
		t.Errorf("Missing() = %v, want %v", missing, want)
	}
	if got := sub.Present(); strings.Join(got, ",") != "name,message" {
		t.Errorf("Present() = %v", got)
	}
	if len(valid().Missing()) != 0 {
		t.Error("valid submission reports missing fields")
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{`<script>alert("x")</script>`, 100, "&lt;script&gt;alert(&quot;x&quot;)&lt;/script&gt;"},
		{"Tom & Jerry", 100, "Tom &amp; Jerry"},
		{"abcdef", 3, "abc"},
		{"<<<<", 2, "&lt;&lt;"},
		{"héllo", 2, "hé"},
	}

	for _, tt := range tests {
		if got := Sanitize(tt.in, tt.max); got != tt.want {
			t.Errorf("Sanitize(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestCompose(t *testing.T) {
	sub := valid()
	sub.Name = "<b>Ada</b>"
	sub.Message = "line one\nline <two>"

	m := Compose(sub)
	if m.Subject != "[Contact] Question about PNG" {
		t.Errorf("subject = %q", m.Subject)
	}
	if m.ReplyTo != "ada@example.com" {
		t.Errorf("reply-to = %q", m.ReplyTo)
	}
	if strings.Contains(m.HTML, "<b>") || !strings.Contains(m.HTML, "&lt;b&gt;Ada&lt;/b&gt;") {
		t.Errorf("name not escaped in html: %s", m.HTML)
	}
	if !strings.Contains(m.HTML, "line one<br/>line &lt;two&gt;") {
		t.Errorf("message not escaped/converted: %s", m.HTML)
	}
	if !strings.HasPrefix(m.Text, "From: &lt;b&gt;Ada&lt;/b&gt; <ada@example.com>\n\n") {
		t.Errorf("text = %q", m.Text)
	}
}
