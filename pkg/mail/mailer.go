package mail

import (
	"crypto/tls"
	"errors"
	"strings"

	"bracketflow/conf"

	"github.com/go-mail/mail"
)

// Mailer 通过 SMTP 发送运维告警邮件
type Mailer struct {
	cfg    conf.EmailConfig
	dialer *mail.Dialer
}

func NewMailer(cfg conf.EmailConfig) *Mailer {
	d := mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.TLSConfig = &tls.Config{ServerName: cfg.Host}
	if cfg.Port == 465 {
		d.SSL = true
	}
	return &Mailer{cfg: cfg, dialer: d}
}

// Enabled 配置了 SMTP 服务器和收件人才发送
func (m *Mailer) Enabled() bool {
	return m != nil && m.cfg.Host != "" && len(m.cfg.Recipients) > 0
}

func (m *Mailer) Send(subject, body string) error {
	if !m.Enabled() {
		return errors.New("mailer not configured")
	}
	msg := m.Compose(subject, body)
	return m.dialer.DialAndSend(msg)
}

// Compose 构造纯文本邮件
func (m *Mailer) Compose(subject, body string) *mail.Message {
	sender := m.cfg.Sender
	if sender == "" {
		sender = m.cfg.Username
	}
	msg := mail.NewMessage()
	msg.SetHeader("From", sender)
	msg.SetHeader("To", m.cfg.Recipients...)
	msg.SetHeader("Subject", strings.TrimSpace(subject))
	msg.SetBody("text/plain", body)
	return msg
}
