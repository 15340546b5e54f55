package mailer

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thespeedingatom/soviario-app-sub000/internal/config"
)

func sampleEmail() Email {
	return Email{
		FromName: "eSIM Störe",
		From:     "no-reply@shop.test",
		To:       []string{"buyer@example.com"},
		Subject:  "Your eSIM is ready",
		TextBody: "code: LPA:1$s$c",
		HTMLBody: `<p><img src="cid:esim-1"></p>`,
	}
}

func TestBuildMIMEMessage_Alternative(t *testing.T) {
	raw, err := BuildMIMEMessage(sampleEmail(), "shop.test")
	require.NoError(t, err)
	assert.Contains(t, raw, "Content-Type: multipart/alternative;")
	assert.Contains(t, raw, "text/plain; charset=UTF-8")
	assert.Contains(t, raw, "text/html; charset=UTF-8")
	assert.Contains(t, raw, "From: =?utf-8?q?eSIM_St=C3=B6re?= <no-reply@shop.test>")
	assert.NotContains(t, raw, "multipart/related")
}

func TestBuildMIMEMessage_InlineAttachment(t *testing.T) {
	e := sampleEmail()
	data := []byte(strings.Repeat("\x89PNG", 40))
	e.Attachments = []Attachment{{Filename: "esim-1.png", ContentType: "image/png", ContentID: "esim-1", Inline: true, Data: data}}

	raw, err := BuildMIMEMessage(e, "shop.test")
	require.NoError(t, err)
	assert.Contains(t, raw, "Content-Type: multipart/related;")
	assert.Contains(t, raw, "Content-ID: <esim-1>")
	assert.Contains(t, raw, `Content-Disposition: inline; filename="esim-1.png"`)

	enc := base64.StdEncoding.EncodeToString(data)
	for _, line := range strings.Split(raw, "\r\n") {
		assert.LessOrEqual(t, len(line), 998)
	}
	assert.Contains(t, strings.ReplaceAll(raw, "\r\n", ""), enc)
}

func TestBuildMIMEMessage_MixedWhenNotInline(t *testing.T) {
	e := sampleEmail()
	e.Attachments = []Attachment{{Filename: "receipt.txt", Data: []byte("x")}}
	raw, err := BuildMIMEMessage(e, "shop.test")
	require.NoError(t, err)
	assert.Contains(t, raw, "multipart/mixed")
	assert.Contains(t, raw, "application/octet-stream")
}

func TestBuildMIMEMessage_Validation(t *testing.T) {
	e := sampleEmail()
	e.To = nil
	_, err := BuildMIMEMessage(e, "x")
	assert.Error(t, err)

	e = sampleEmail()
	e.Attachments = []Attachment{{Filename: "empty.png"}}
	_, err = BuildMIMEMessage(e, "x")
	assert.Error(t, err)
}

func TestHTTPMailer_Send(t *testing.T) {
	var got apiPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := sampleEmail()
	e.Category = "esim-activation"
	e.Attachments = []Attachment{{Filename: "esim-1.png", ContentType: "image/png", ContentID: "esim-1", Inline: true, Data: []byte("png")}}

	require.NoError(t, NewHTTPMailer(srv.URL, "tok").Send(context.Background(), e))
	assert.Equal(t, "buyer@example.com", got.To[0].Email)
	assert.Equal(t, "esim-activation", got.Category)
	require.Len(t, got.Attachments, 1)
	assert.Equal(t, "inline", got.Attachments[0].Disposition)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("png")), got.Attachments[0].Content)
}

func TestHTTPMailer_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewHTTPMailer(srv.URL, "tok").Send(context.Background(), sampleEmail())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")

	assert.Error(t, NewHTTPMailer("", "").Send(context.Background(), sampleEmail()))
}

func TestMock(t *testing.T) {
	m := &Mock{Err: errors.New("down")}
	assert.Error(t, m.Send(context.Background(), sampleEmail()))
	assert.Len(t, m.Sent, 1)
}

func TestFromConfig(t *testing.T) {
	s, err := FromConfig(config.MailConfig{Driver: "smtp"})
	require.NoError(t, err)
	assert.IsType(t, &SMTPMailer{}, s)

	s, err = FromConfig(config.MailConfig{Driver: "http", APIURL: "http://x", APIToken: "t"})
	require.NoError(t, err)
	assert.IsType(t, &HTTPMailer{}, s)

	_, err = FromConfig(config.MailConfig{Driver: "pigeon"})
	assert.Error(t, err)
}
