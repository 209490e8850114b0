package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/utafrali/FeedbackGo/services/feedback/internal/domain"
)

// AlertSubject is the subject of instant alerts.
const AlertSubject = "ALERT: Critical feedback received"

const timeLayout = time.RFC3339

// AlertText renders the plain-text alert for event.
func AlertText(e domain.EscalationEvent) string {
	var b strings.Builder
	b.WriteString("CRITICAL FEEDBACK RECEIVED\n\n")
	fmt.Fprintf(&b, "ID: %s\n", e.FeedbackID)
	fmt.Fprintf(&b, "Score: %d/10\n", e.Score)
	fmt.Fprintf(&b, "Urgency: %s\n", e.Urgency)
	fmt.Fprintf(&b, "Submitted: %s\n\n", e.SubmittedAt.UTC().Format(timeLayout))
	fmt.Fprintf(&b, "Description:\n%s\n\n", e.Description)
	b.WriteString("Action required: review this feedback immediately and take corrective action.\n")
	return b.String()
}

// MailSubject is the subject of the formatted escalation message.
func MailSubject(e domain.EscalationEvent) string {
	return fmt.Sprintf("URGENT: Critical feedback received - score %d", e.Score)
}

// MailText renders the plain-text alternative of the escalation message.
func MailText(e domain.EscalationEvent) string {
	const rule = "========================================\n"

	var b strings.Builder
	b.WriteString(rule)
	b.WriteString("CRITICAL FEEDBACK ALERT\n")
	b.WriteString(rule)
	b.WriteString("\n")
	fmt.Fprintf(&b, "Feedback ID: %s\n", e.FeedbackID)
	fmt.Fprintf(&b, "Score: %d/10\n", e.Score)
	fmt.Fprintf(&b, "Urgency: %s\n", e.Urgency)
	fmt.Fprintf(&b, "Submitted: %s\n\n", e.SubmittedAt.UTC().Format(timeLayout))
	fmt.Fprintf(&b, "Description:\n%s\n\n", e.Description)
	b.WriteString(rule)
	b.WriteString("ACTION REQUIRED\n")
	b.WriteString(rule)
	b.WriteString("Please review this feedback immediately\n")
	b.WriteString("and take the steps needed to improve\n")
	b.WriteString("the course quality.\n")
	return b.String()
}

var mailHTML = template.Must(template.New("escalation").Parse(`<!DOCTYPE html>
<html>
<head>
  <style>
    body { font-family: Arial, sans-serif; }
    .container { max-width: 600px; margin: 0 auto; padding: 20px; }
    .header { background-color: #d32f2f; color: white; padding: 20px; text-align: center; }
    .content { background-color: #f5f5f5; padding: 20px; margin-top: 20px; }
    .field { margin: 10px 0; }
    .label { font-weight: bold; }
    .alert { background-color: #fff3cd; border-left: 4px solid #ff6f00; padding: 15px; margin: 20px 0; }
  </style>
</head>
<body>
  <div class="container">
    <div class="header"><h1>CRITICAL FEEDBACK ALERT</h1></div>
    <div class="content">
      <div class="alert"><strong>Attention!</strong> Critical feedback was received and needs immediate action.</div>
      <div class="field"><span class="label">Feedback ID:</span> {{.FeedbackID}}</div>
      <div class="field"><span class="label">Score:</span> {{.Score}}/10</div>
      <div class="field"><span class="label">Urgency:</span> {{.Urgency}}</div>
      <div class="field"><span class="label">Submitted:</span> {{.Submitted}}</div>
      <div class="field"><span class="label">Description:</span><p>{{.Description}}</p></div>
      <div class="alert">
        <strong>Next steps:</strong>
        <ul>
          <li>Read the feedback in detail</li>
          <li>Identify what can be improved in the course</li>
          <li>Contact the student if possible</li>
          <li>Put corrective actions in place</li>
        </ul>
      </div>
    </div>
  </div>
</body>
</html>
`))

// MailHTML renders the HTML body of the escalation message. Every field is
// escaped.
func MailHTML(e domain.EscalationEvent) string {
	var buf bytes.Buffer
	data := struct {
		FeedbackID  string
		Score       int
		Urgency     string
		Submitted   string
		Description string
	}{
		FeedbackID:  e.FeedbackID,
		Score:       e.Score,
		Urgency:     e.Urgency.String(),
		Submitted:   e.SubmittedAt.UTC().Format(timeLayout),
		Description: e.Description,
	}
	// Static template over plain strings; execution cannot fail.
	_ = mailHTML.Execute(&buf, data)
	return buf.String()
}
