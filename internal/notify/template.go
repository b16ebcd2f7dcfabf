package notify

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/Freeeeeet/coach_marketplace/internal/model"
)

var bodyTemplate = template.Must(template.New("notification").Parse(
	`Hi {{if .Name}}{{.Name}}{{else}}there{{end}},

{{.Body}}
{{if .Link}}
Open: {{.Link}}
{{end}}
--
You receive this because of activity on your coaching marketplace account.
`))

// relatedPaths веб-страницы связанных сущностей
var relatedPaths = map[string]string{
	model.RelatedProposal: "/proposals/%d",
	model.RelatedContract: "/contracts/%d",
	model.RelatedSession:  "/sessions/%d",
	model.RelatedCall:     "/calls/%d",
	model.RelatedMessage:  "/messages",
	model.RelatedRequest:  "/requests/%d",
}

// Link ссылка на связанную сущность или пустая строка
func Link(baseURL string, n *model.Notification) string {
	if baseURL == "" || n.RelatedID == nil {
		return ""
	}
	path, ok := relatedPaths[n.RelatedType]
	if !ok {
		return ""
	}
	if strings.Contains(path, "%d") {
		path = fmt.Sprintf(path, *n.RelatedID)
	}
	return strings.TrimRight(baseURL, "/") + path
}

// Render собирает исходящее сообщение из уведомления
func Render(baseURL string, user *model.User, n *model.Notification) (Message, error) {
	var buf bytes.Buffer
	err := bodyTemplate.Execute(&buf, struct {
		Name string
		Body string
		Link string
	}{
		Name: user.FullName(),
		Body: n.Body,
		Link: Link(baseURL, n),
	})
	if err != nil {
		return Message{}, fmt.Errorf("render notification: %w", err)
	}

	return Message{
		UserID:         user.ID,
		Type:           string(n.Type),
		Email:          user.Email,
		Name:           user.FullName(),
		TelegramChatID: user.TelegramChatID,
		Subject:        n.Title,
		Text:           buf.String(),
	}, nil
}
