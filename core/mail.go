package core

import (
	"bytes"
	"context"
	"embed"
	"io"
	"io/fs"
	"net/http"
	"net/mail"
	"path"
	"strings"
	"sync"
	texttmpl "text/template"

	"github.com/pkg/errors"
)

var (
	//go:embed templates/email
	templateFS embed.FS

	templates map[string]*texttmpl.Template // {name: *Template}
	tmplInit  sync.Once
	tmplErr   error
)

type (
	Attachment struct {
		Content     []byte
		ContentType string
		Filename    string
	}

	EmailMessage struct {
		To          []mail.Address
		Cc          []mail.Address
		Bcc         []mail.Address
		Subject     string
		BodyStr     string // simple text/plain, non-templated content
		Attachments []Attachment

		// templated contents
		TemplateName string // without ext
		TemplateData interface{}
		TextContent  string
		HTMLContent  string
	}

	ContextData struct {
		AppName         string
		FrontendBaseURL string
		Data            interface{}
	}

	// EmailService is any service that can send emails
	EmailService interface {
		// Send renders and delivers msg synchronously.
		Send(ctx context.Context, msg *EmailMessage) (DeliveryReceipt, error)
		// SendMessages sends messages concurrently
		SendMessages(messages ...*EmailMessage)
	}
)

func (m *EmailMessage) getContextData() ContextData {
	return ContextData{
		AppName:         Conf.AppName,
		FrontendBaseURL: Conf.FrontendBaseURL,
		Data:            m.TemplateData,
	}
}

func (m *EmailMessage) renderText() error {
	if m.BodyStr != "" {
		m.TextContent = m.BodyStr
		return nil
	} else if m.TemplateName == "" {
		return nil
	}

	tmpl, ok := templates[m.TemplateName]
	if !ok {
		return errors.Errorf("email template %q not found", m.TemplateName)
	}

	var buff bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buff, "base", m.getContextData()); err != nil {
		return err
	}
	m.TextContent = buff.String()
	return nil
}

func (m *EmailMessage) Render() error {
	if m.TemplateName != "" {
		tmplInit.Do(parseTemplates) // only execute once during first request
		if tmplErr != nil {
			return errors.Wrap(tmplErr, "parsing email templates")
		}
	}
	return m.renderText()
}

func (m *EmailMessage) Attach(r io.Reader, filename string, ct ...string) error {
	content, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.AttachBytes(content, filename, ct...)
	return nil
}

func (m *EmailMessage) AttachBytes(content []byte, filename string, ct ...string) {
	at := Attachment{Filename: filename, Content: content}
	if len(ct) > 0 {
		at.ContentType = ct[0]
	} else {
		at.ContentType = http.DetectContentType(content)
	}
	m.Attachments = append(m.Attachments, at)
}

// Recipients returns the addresses of every To, Cc and Bcc recipient.
func (m *EmailMessage) Recipients() []string {
	addrs := make([]string, 0, len(m.To)+len(m.Cc)+len(m.Bcc))
	for _, group := range [][]mail.Address{m.To, m.Cc, m.Bcc} {
		for _, a := range group {
			addrs = append(addrs, a.Address)
		}
	}
	return addrs
}

func (m *EmailMessage) HasRecipients() bool  { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool     { return (m.TextContent != "") || (m.HTMLContent != "") }
func (m *EmailMessage) HasAttachments() bool { return len(m.Attachments) > 0 }

func parseTemplates() {
	templates = make(map[string]*texttmpl.Template)

	root := "templates/email"
	base, err := fs.ReadFile(templateFS, path.Join(root, "_base.txt"))
	if err != nil {
		tmplErr = err
		return
	}

	entries, err := fs.ReadDir(templateFS, root)
	if err != nil {
		tmplErr = err
		return
	}
	for _, entry := range entries {
		fname := entry.Name()
		if strings.HasPrefix(fname, "_") || path.Ext(fname) != ".txt" {
			continue
		}
		content, err := fs.ReadFile(templateFS, path.Join(root, fname))
		if err != nil {
			tmplErr = err
			return
		}
		tmpl := texttmpl.New(fname)
		if Conf.Debug || Conf.TestMode {
			tmpl = tmpl.Option("missingkey=error")
		}
		if tmpl, err = tmpl.Parse(string(base)); err == nil {
			_, err = tmpl.Parse(string(content))
		}
		if err != nil {
			tmplErr = errors.Wrap(err, fname)
			return
		}
		templates[strings.TrimSuffix(fname, ".txt")] = tmpl
	}
}
