package email

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/albapepper/medminder/internal/stock"
)

type lowStockRow struct {
	Name        string
	Dosage      string
	Remaining   int
	DailyUsage  int
	Days        string
	Urgent      bool
	ExhaustDate string
}

type lowStockData struct {
	RecipientName string
	UserName      string
	Rows          []lowStockRow
}

var lowStockHTML = htmltemplate.Must(htmltemplate.New("low_stock").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"><meta name="viewport" content="width=device-width, initial-scale=1.0"></head>
<body style="margin:0; padding:0; background-color:#faf6f0; font-family:sans-serif;">
  <div style="max-width:640px; margin:0 auto; padding:24px;">
    <div style="background:#1a2744; border-radius:16px 16px 0 0; padding:32px; text-align:center;">
      <h1 style="color:#c9a84c; font-size:28px; margin:0 0 8px 0;">medminder</h1>
      <p style="color:#e8dcc8; font-size:16px; margin:0;">Medication supply alert</p>
    </div>
    <div style="background:#ffffff; padding:32px; border-left:1px solid #e8dcc8; border-right:1px solid #e8dcc8;">
      <p style="font-size:18px; color:#1a2744; margin:0 0 16px 0;">Dear <strong>{{.RecipientName}}</strong>,</p>
      <p style="font-size:16px; color:#555; line-height:1.8; margin:0 0 24px 0;">
        The following medications of <strong style="color:#1a2744;">{{.UserName}}</strong> are running out or have run out. Please help restock them.
      </p>
      <table style="width:100%; border-collapse:collapse; border:1px solid #e8dcc8;">
        <thead>
          <tr style="background:#faf6f0;">
            <th style="padding:12px 16px; text-align:left; font-size:14px; color:#888;">Medication</th>
            <th style="padding:12px 16px; text-align:left; font-size:14px; color:#888;">Dosage</th>
            <th style="padding:12px 16px; text-align:left; font-size:14px; color:#888;">Remaining</th>
            <th style="padding:12px 16px; text-align:left; font-size:14px; color:#888;">Daily usage</th>
            <th style="padding:12px 16px; text-align:left; font-size:14px; color:#888;">Days left</th>
            <th style="padding:12px 16px; text-align:left; font-size:14px; color:#888;">Runs out</th>
          </tr>
        </thead>
        <tbody>
          {{- range .Rows}}
          <tr>
            <td style="padding:12px 16px; border-bottom:1px solid #f0e6d0;"><strong>{{.Name}}</strong></td>
            <td style="padding:12px 16px; border-bottom:1px solid #f0e6d0;">{{.Dosage}}</td>
            <td style="padding:12px 16px; border-bottom:1px solid #f0e6d0;">{{.Remaining}}</td>
            <td style="padding:12px 16px; border-bottom:1px solid #f0e6d0;">{{.DailyUsage}}</td>
            <td style="padding:12px 16px; border-bottom:1px solid #f0e6d0; font-weight:bold; color:{{if .Urgent}}#dc2626{{else}}#ea580c{{end}};">{{.Days}}</td>
            <td style="padding:12px 16px; border-bottom:1px solid #f0e6d0;">{{.ExhaustDate}}</td>
          </tr>
          {{- end}}
        </tbody>
      </table>
      <p style="font-size:16px; color:#ea580c; margin:24px 0;">Please help <strong>{{.UserName}}</strong> restock these so no dose is missed.</p>
      <p style="font-size:14px; color:#999; margin:0;">This message was sent automatically by medminder on behalf of {{.UserName}}.</p>
    </div>
  </div>
</body>
</html>`))

var lowStockText = texttemplate.Must(texttemplate.New("low_stock").Parse(`Dear {{.RecipientName}},

The following medications of {{.UserName}} are running out or have run out. Please help restock them.
{{range .Rows}}
- {{.Name}} ({{.Dosage}}): {{.Remaining}} left, {{.DailyUsage}} per day, {{.Days}}, runs out {{.ExhaustDate}}
{{- end}}

This message was sent automatically by medminder on behalf of {{.UserName}}.
`))

func daysLabel(days int) string {
	switch {
	case days <= 0:
		return "out of stock"
	case days == 1:
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}

// LowStockSubject is urgent when any medication runs out within
// stock.UrgentDays, and counts only those medications in that case.
func LowStockSubject(userName string, forecasts []stock.Forecast) string {
	urgent := 0
	for _, f := range forecasts {
		if f.Urgent() {
			urgent++
		}
	}
	if urgent > 0 {
		return fmt.Sprintf("URGENT: %s's %d medication(s) are about to run out", userName, urgent)
	}
	return fmt.Sprintf("Reminder: %s's %d medication(s) need restocking", userName, len(forecasts))
}

// LowStockMessage renders the aggregated alert for one family contact.
// Dates are formatted in loc.
func LowStockMessage(to, recipientName, userName string, forecasts []stock.Forecast, loc *time.Location) (Message, error) {
	if loc == nil {
		loc = time.UTC
	}
	data := lowStockData{RecipientName: recipientName, UserName: userName}
	for _, f := range forecasts {
		exhaust := "n/a"
		if f.PredictedExhaustDate != nil {
			exhaust = f.PredictedExhaustDate.In(loc).Format("2006-01-02")
		}
		data.Rows = append(data.Rows, lowStockRow{
			Name:        f.Name,
			Dosage:      f.Dosage,
			Remaining:   f.RemainingQuantity,
			DailyUsage:  f.DailyUsage,
			Days:        daysLabel(f.DaysRemaining),
			Urgent:      f.Urgent(),
			ExhaustDate: exhaust,
		})
	}

	var html, text bytes.Buffer
	if err := lowStockHTML.Execute(&html, data); err != nil {
		return Message{}, fmt.Errorf("render low-stock html: %w", err)
	}
	if err := lowStockText.Execute(&text, data); err != nil {
		return Message{}, fmt.Errorf("render low-stock text: %w", err)
	}
	return Message{
		To:      to,
		Subject: LowStockSubject(userName, forecasts),
		HTML:    html.String(),
		Text:    strings.TrimSpace(text.String()) + "\n",
	}, nil
}

const testHTML = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"></head>
<body style="margin:0; padding:0; background-color:#faf6f0; font-family:sans-serif;">
  <div style="max-width:480px; margin:40px auto; padding:32px; background:#fff; border-radius:16px; border:1px solid #e8dcc8; text-align:center;">
    <h2 style="color:#1a2744; margin:0 0 16px 0;">Email is configured</h2>
    <p style="color:#555; font-size:16px; line-height:1.6;">
      Your medminder email notifications are working.<br/>
      When a medication is about to run out, your family contacts will be emailed automatically.
    </p>
  </div>
</body>
</html>`

// ConfigTestSubject is the subject of the configuration check email.
const ConfigTestSubject = "medminder: email configuration test succeeded"

// ConfigTestMessage is the configuration check email.
func ConfigTestMessage(to string) Message {
	return Message{
		To:      to,
		Subject: ConfigTestSubject,
		HTML:    testHTML,
		Text:    "Your medminder email notifications are working.\n",
	}
}
