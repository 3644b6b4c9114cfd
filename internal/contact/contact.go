package contact

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	maxEmailLen   = 254
	maxNameLen    = 100
	maxSubjectLen = 150
	maxMessageLen = 5000

	minNameLen    = 2
	minSubjectLen = 5
	minMessageLen = 10
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// RequiredFields lists the fields a submission must carry
var RequiredFields = []string{"name", "email", "subject", "message"}

// Submission is a contact form post
type Submission struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// ValidationError is a user-correctable problem with one field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Present returns the names of the non-empty fields
func (s Submission) Present() []string {
	var out []string
	for _, f := range RequiredFields {
		if s.field(f) != "" {
			out = append(out, f)
		}
	}
	return out
}

// Missing returns the names of required fields that are empty
func (s Submission) Missing() []string {
	var out []string
	for _, f := range RequiredFields {
		if s.field(f) == "" {
			out = append(out, f)
		}
	}
	return out
}

func (s Submission) field(name string) string {
	switch name {
	case "name":
		return s.Name
	case "email":
		return s.Email
	case "subject":
		return s.Subject
	case "message":
		return s.Message
	}
	return ""
}

// ValidEmail checks format, length and the absence of CR/LF
func ValidEmail(email string) bool {
	return len(email) <= maxEmailLen &&
		!strings.ContainsAny(email, "\r\n") &&
		emailPattern.MatchString(email)
}

// Validate returns the first problem found. Missing fields are reported
// separately through Missing.
func (s Submission) Validate() error {
	if !ValidEmail(s.Email) {
		return &ValidationError{Field: "email", Message: "Invalid email format"}
	}
	checks := []struct {
		field string
		label string
		value string
		min   int
	}{
		{"name", "Name", s.Name, minNameLen},
		{"subject", "Subject", s.Subject, minSubjectLen},
		{"message", "Message", s.Message, minMessageLen},
	}
	for _, c := range checks {
		if utf8.RuneCountInString(c.value) < c.min {
			return &ValidationError{
				Field:   c.field,
				Message: fmt.Sprintf("%s must be at least %d characters", c.label, c.min),
			}
		}
	}
	return nil
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")

// Sanitize truncates to max runes and escapes & < > "
func Sanitize(input string, max int) string {
	return htmlEscaper.Replace(truncate(input, max))
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}

// Mail is the outbound message built from a submission
type Mail struct {
	ReplyTo string
	Subject string
	Text    string
	HTML    string
}

// Compose builds the relay message. Every user-supplied value that lands in
// HTML is escaped.
func Compose(s Submission) Mail {
	name := Sanitize(s.Name, maxNameLen)
	subject := Sanitize(s.Subject, maxSubjectLen)
	message := Sanitize(s.Message, maxMessageLen)
	email := Sanitize(s.Email, maxEmailLen)

	return Mail{
		ReplyTo: s.Email,
		Subject: "[Contact] " + subject,
		Text:    fmt.Sprintf("From: %s <%s>\n\n%s", name, s.Email, truncate(s.Message, maxMessageLen)),
		HTML: fmt.Sprintf("<p><strong>From:</strong> %s &lt;%s&gt;</p><p>%s</p>",
			name, email, strings.ReplaceAll(message, "\n", "<br/>")),
	}
}
