// Package templates renders the HTML bodies of transactional emails.
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed *.html
var files embed.FS

var parsed = template.Must(template.ParseFS(files, "*.html"))

// Template names.
const (
	Comment      = "comment.html"
	Notification = "notification.html"
)

// CommentData fills the Comment template.
type CommentData struct {
	RecipientName string
	AuthorName    string
	EpisodeTitle  string
	Excerpt       string
	URL           string
}

// NotificationData fills the Notification template.
type NotificationData struct {
	Title   string
	Message string
	URL     string
}

// Render executes the named template with data.
func Render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := parsed.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render email template %s: %w", name, err)
	}
	return buf.String(), nil
}
