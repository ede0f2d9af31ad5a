package notify

import (
	"bytes"
	htmltpl "html/template"
	texttpl "text/template"
)

type approvedData struct {
	Name            string
	CaseNumber      string
	Title           string
	CaseType        string
	AmountInvolved  string
	RegistrationFee string
	LawyerName      string
}

type rejectedData struct {
	Name     string
	Title    string
	CaseType string
	Reason   string
}

type paymentDueData struct {
	Name            string
	CaseNumber      string
	RegistrationFee string
}

const approvedText = `Dear {{.Name}},

We are pleased to inform you that your case has been approved.

Case Number: {{.CaseNumber}}
Case Title: {{.Title}}
Case Type: {{.CaseType}}
Amount Involved: {{.AmountInvolved}}
Registration Fee: {{.RegistrationFee}}
Assigned Lawyer: {{.LawyerName}}

Your case has been assigned to our lawyer who will contact you shortly with next steps.

Best regards,
Lawsuit Management System
`

const approvedHTML = `<html><body style="font-family: Arial, sans-serif;">
<h2>Case Approval Notification</h2>
<p>Dear {{.Name}},</p>
<p>We are pleased to inform you that your case has been approved.</p>
<div style="background-color: #f0f0f0; padding: 15px; border-radius: 5px;">
<p><strong>Case Number:</strong> {{.CaseNumber}}</p>
<p><strong>Case Title:</strong> {{.Title}}</p>
<p><strong>Case Type:</strong> {{.CaseType}}</p>
<p><strong>Amount Involved:</strong> {{.AmountInvolved}}</p>
<p><strong>Registration Fee:</strong> {{.RegistrationFee}}</p>
<p><strong>Assigned Lawyer:</strong> {{.LawyerName}}</p>
</div>
<p>Your case has been assigned to our lawyer who will contact you shortly with next steps.</p>
<p>Best regards,<br>Lawsuit Management System</p>
</body></html>`

const rejectedText = `Dear {{.Name}},

We regret to inform you that your case request has been rejected after careful review.

Case Title: {{.Title}}
Case Type: {{.CaseType}}
Rejection Reason: {{.Reason}}

If you have any questions about this decision, please contact us.

Best regards,
Lawsuit Management System
`

const rejectedHTML = `<html><body style="font-family: Arial, sans-serif;">
<h2>Case Rejection Notification</h2>
<p>Dear {{.Name}},</p>
<p>We regret to inform you that your case request has been rejected after careful review.</p>
<div style="background-color: #f0f0f0; padding: 15px; border-radius: 5px;">
<p><strong>Case Title:</strong> {{.Title}}</p>
<p><strong>Case Type:</strong> {{.CaseType}}</p>
<p><strong>Rejection Reason:</strong></p>
<p style="font-style: italic;">{{.Reason}}</p>
</div>
<p>If you have any questions about this decision, please contact us.</p>
<p>Best regards,<br>Lawsuit Management System</p>
</body></html>`

const paymentDueText = `Dear {{.Name}},

This is a friendly reminder that your case registration fee is pending.

Case Number: {{.CaseNumber}}
Registration Fee: {{.RegistrationFee}}

Please complete your payment to proceed with your case processing.
`

const paymentDueHTML = `<html><body style="font-family: Arial, sans-serif;">
<h2>Payment Reminder</h2>
<p>Dear {{.Name}},</p>
<p>This is a friendly reminder that your case registration fee is pending.</p>
<div style="background-color: #f0f0f0; padding: 15px; border-radius: 5px;">
<p><strong>Case Number:</strong> {{.CaseNumber}}</p>
<p><strong>Registration Fee:</strong> {{.RegistrationFee}}</p>
</div>
<p>Please complete your payment to proceed with your case processing.</p>
</body></html>`

var (
	approvedTpl   = pair("approved", approvedText, approvedHTML)
	rejectedTpl   = pair("rejected", rejectedText, rejectedHTML)
	paymentDueTpl = pair("payment_due", paymentDueText, paymentDueHTML)
)

// tplPair renders the plain and HTML parts of one email from the same data.
type tplPair struct {
	text *texttpl.Template
	html *htmltpl.Template
}

func pair(name, text, html string) tplPair {
	return tplPair{
		text: texttpl.Must(texttpl.New(name).Parse(text)),
		html: htmltpl.Must(htmltpl.New(name).Parse(html)),
	}
}

func (p tplPair) render(data any) (text, html string, err error) {
	var tb, hb bytes.Buffer
	if err = p.text.Execute(&tb, data); err != nil {
		return "", "", err
	}
	if err = p.html.Execute(&hb, data); err != nil {
		return "", "", err
	}
	return tb.String(), hb.String(), nil
}
