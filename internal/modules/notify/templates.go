package notify

import (
	htmltemplate "html/template"
	texttemplate "text/template"
)

type templateData struct {
	OrderID string
	BaseURL string
	ESIMs   []templateESIM
}

type templateESIM struct {
	Index          int
	PlanName       string
	ActivationCode string
	ManualCode     string
	SMDPAddress    string
	ContentID      string
}

var activationHTML = htmltemplate.Must(htmltemplate.New("activation.html").Parse(`<html>
  <body style="font-family: sans-serif;">
    <h2>Your eSIM is ready</h2>
    <p>Thanks for your order <strong>#{{.OrderID}}</strong>. Scan the QR code below from your phone's mobile network settings to install your eSIM.</p>
    {{range .ESIMs}}
    <div style="margin-bottom: 24px;">
      <h3>{{.Index}}. {{.PlanName}}</h3>
      <img src="cid:{{.ContentID}}" alt="eSIM QR code {{.Index}}" width="220" height="220">
      <p><strong>Activation code:</strong> <code>{{.ActivationCode}}</code></p>
      {{if .SMDPAddress}}<p><strong>SM-DP+ address:</strong> <code>{{.SMDPAddress}}</code></p>{{end}}
      {{if .ManualCode}}<p><strong>Manual code:</strong> <code>{{.ManualCode}}</code></p>{{end}}
    </div>
    {{end}}
    {{if .BaseURL}}<p>You can also find these codes in your account: <a href="{{.BaseURL}}/account/orders/{{.OrderID}}">view order</a></p>{{end}}
  </body>
</html>
`))

var activationText = texttemplate.Must(texttemplate.New("activation.txt").Parse(`Your eSIM is ready

Order #{{.OrderID}}
{{range .ESIMs}}
{{.Index}}. {{.PlanName}}
   Activation code: {{.ActivationCode}}
{{- if .SMDPAddress}}
   SM-DP+ address:  {{.SMDPAddress}}{{end}}
{{- if .ManualCode}}
   Manual code:     {{.ManualCode}}{{end}}
{{end}}
{{- if .BaseURL}}
Your codes are also available at {{.BaseURL}}/account/orders/{{.OrderID}}
{{- end}}
`))

type verifyData struct {
	URL string
}

var verifyHTML = htmltemplate.Must(htmltemplate.New("verify.html").Parse(`<html>
  <body style="font-family: sans-serif;">
    <h2>Confirm your email address</h2>
    <p>Confirm this address to see orders you placed with it before you had an account.</p>
    <p><a href="{{.URL}}">Confirm email</a></p>
    <p>The link expires in 24 hours. If you did not sign up, ignore this email.</p>
  </body>
</html>
`))

var verifyText = texttemplate.Must(texttemplate.New("verify.txt").Parse(`Confirm your email address

Open this link to confirm the address on your account:
{{.URL}}

The link expires in 24 hours. If you did not sign up, ignore this email.
`))
