package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"go-status-hub/internal/domain"
)

// SMTPConfig configures e-mail alerts.
type SMTPConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	Recipients []string
}

// SendMailFunc matches smtp.SendMail.
type SendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPSender mails a status change alert to the configured recipients.
type SMTPSender struct {
	cfg      SMTPConfig
	sendMail SendMailFunc
	now      func() time.Time
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg, sendMail: smtp.SendMail, now: time.Now}
}

var alertTemplate = template.Must(template.New("alert").Parse(`<h2>Service Status Change Alert</h2>
<p>The status of service "{{.Name}}" has changed:</p>
<ul>
  <li>Previous Status: {{.Old}}</li>
  <li>New Status: {{.New}}</li>
</ul>
<p>Time: {{.At}}</p>
`))

func (s *SMTPSender) NotifyStatusChange(ctx context.Context, svc domain.Service, old, new domain.ServiceStatus) error {
	msg, err := s.message(svc, old, new)
	if err != nil {
		return err
	}

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))

	// smtp.SendMail takes no context; abandon the result when ctx ends.
	done := make(chan error, 1)
	go func() { done <- s.sendMail(addr, auth, s.cfg.From, s.cfg.Recipients, msg) }()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send status alert for %s: %w", svc.ID, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SMTPSender) message(svc domain.Service, old, new domain.ServiceStatus) ([]byte, error) {
	var body bytes.Buffer
	err := alertTemplate.Execute(&body, map[string]any{
		"Name": svc.Name,
		"Old":  old,
		"New":  new,
		"At":   s.now().UTC().Format(time.RFC1123),
	})
	if err != nil {
		return nil, err
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(s.cfg.Recipients, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", "Status Change Alert: "+svc.Name))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	b.Write(body.Bytes())
	return b.Bytes(), nil
}
