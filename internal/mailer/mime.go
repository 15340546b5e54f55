package mailer

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"mime"
	"strings"
	"time"
)

const base64LineLen = 76

func formatAddress(name, addr string) string {
	if name == "" {
		return addr
	}
	return fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", name), addr)
}

func newMessageID(domain string) string {
	b := make([]byte, 12)
	_, _ = rand.Read(b)
	return fmt.Sprintf("<%s@%s>", hex.EncodeToString(b), domain)
}

func validate(e Email) error {
	if len(e.To) == 0 {
		return fmt.Errorf("mailer: at least one recipient required")
	}
	if e.From == "" {
		return fmt.Errorf("mailer: from address required")
	}
	if e.Subject == "" {
		return fmt.Errorf("mailer: subject required")
	}
	if e.TextBody == "" && e.HTMLBody == "" {
		return fmt.Errorf("mailer: text or html body required")
	}
	for _, a := range e.Attachments {
		if a.Filename == "" || len(a.Data) == 0 {
			return fmt.Errorf("mailer: attachment needs a filename and data")
		}
	}
	return nil
}

// BuildMIMEMessage renders e as an RFC 5322 message. Text and HTML become a
// multipart/alternative part; attachments wrap it in multipart/related when
// every attachment is inline, multipart/mixed otherwise.
func BuildMIMEMessage(e Email, messageIDDomain string) (string, error) {
	if err := validate(e); err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	fmt.Fprintf(&b, "Message-ID: %s\r\n", newMessageID(messageIDDomain))
	fmt.Fprintf(&b, "From: %s\r\n", formatAddress(e.FromName, e.From))
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(e.To, ", "))
	if len(e.Cc) > 0 {
		fmt.Fprintf(&b, "Cc: %s\r\n", strings.Join(e.Cc, ", "))
	}
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", e.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	for k, v := range e.Headers {
		if k == "" || v == "" {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\r\n", k, v)
	}

	if len(e.Attachments) == 0 {
		writeBody(&b, e)
		return b.String(), nil
	}

	kind := "related"
	for _, a := range e.Attachments {
		if !a.Inline {
			kind = "mixed"
			break
		}
	}
	boundary := randomBoundary(kind)
	fmt.Fprintf(&b, "Content-Type: multipart/%s; boundary=%q\r\n\r\n", kind, boundary)

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	writeBody(&b, e)
	for _, a := range e.Attachments {
		fmt.Fprintf(&b, "--%s\r\n", boundary)
		writeAttachment(&b, a)
	}
	fmt.Fprintf(&b, "--%s--\r\n", boundary)
	return b.String(), nil
}

// writeBody writes the Content-Type header and the content of the body.
func writeBody(b *strings.Builder, e Email) {
	if e.TextBody != "" && e.HTMLBody != "" {
		boundary := randomBoundary("alt")
		fmt.Fprintf(b, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary)
		fmt.Fprintf(b, "--%s\r\n", boundary)
		writeTextPart(b, "text/plain", e.TextBody)
		fmt.Fprintf(b, "--%s\r\n", boundary)
		writeTextPart(b, "text/html", e.HTMLBody)
		fmt.Fprintf(b, "--%s--\r\n", boundary)
		return
	}
	if e.HTMLBody != "" {
		writeTextPart(b, "text/html", e.HTMLBody)
		return
	}
	writeTextPart(b, "text/plain", e.TextBody)
}

func writeTextPart(b *strings.Builder, contentType, body string) {
	fmt.Fprintf(b, "Content-Type: %s; charset=UTF-8\r\n", contentType)
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n\r\n")
	b.WriteString(body)
	if !strings.HasSuffix(body, "\n") {
		b.WriteString("\r\n")
	}
}

func writeAttachment(b *strings.Builder, a Attachment) {
	ct := a.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	disposition := "attachment"
	if a.Inline {
		disposition = "inline"
	}
	fmt.Fprintf(b, "Content-Type: %s; name=%q\r\n", ct, a.Filename)
	b.WriteString("Content-Transfer-Encoding: base64\r\n")
	fmt.Fprintf(b, "Content-Disposition: %s; filename=%q\r\n", disposition, a.Filename)
	if a.ContentID != "" {
		fmt.Fprintf(b, "Content-ID: <%s>\r\n", a.ContentID)
	}
	b.WriteString("\r\n")

	enc := base64.StdEncoding.EncodeToString(a.Data)
	for len(enc) > base64LineLen {
		b.WriteString(enc[:base64LineLen])
		b.WriteString("\r\n")
		enc = enc[base64LineLen:]
	}
	b.WriteString(enc)
	b.WriteString("\r\n")
}

func randomBoundary(prefix string) string {
	b := make([]byte, 12)
	_, _ = rand.Read(b)
	return prefix + "-" + hex.EncodeToString(b)
}
