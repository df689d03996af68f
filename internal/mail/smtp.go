package mail

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/khanghh/kgate/internal/config"
	"gopkg.in/gomail.v2"
)

type SMTPMailSender struct {
	*gomail.Dialer
	From string
}

func (s *SMTPMailSender) Send(message *Message) error {
	from := message.From
	if from == "" {
		from = s.From
	}
	msg := gomail.NewMessage()
	msg.SetHeader("From", from)
	msg.SetHeader("To", message.To...)
	if len(message.Cc) > 0 {
		msg.SetHeader("Cc", message.Cc...)
	}
	msg.SetHeader("Subject", message.Subject)
	if message.IsHTML {
		msg.SetBody("text/html", message.Body)
	} else {
		msg.SetBody("text/plain", message.Body)
	}
	return s.DialAndSend(msg)
}

// dialSMTP prepares the dialer. Client certificates are loaded only when TLS
// is enabled with a key pair.
func dialSMTP(cfg config.SMTPConfig) (*gomail.Dialer, error) {
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	dialer.TLSConfig = &tls.Config{ServerName: cfg.Host}
	if !cfg.TLS {
		return dialer, nil
	}

	dialer.SSL = true
	if cfg.CertFile != "" && cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load smtp client certificate: %w", err)
		}
		dialer.TLSConfig.Certificates = []tls.Certificate{cert}
	}
	if cfg.CAFile != "" {
		caCert, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, err
		}
		caPool := x509.NewCertPool()
		caPool.AppendCertsFromPEM(caCert)
		dialer.TLSConfig.RootCAs = caPool
	}
	return dialer, nil
}

func NewSMTPMailSender(cfg config.SMTPConfig) (*SMTPMailSender, error) {
	dialer, err := dialSMTP(cfg)
	if err != nil {
		return nil, err
	}
	return &SMTPMailSender{
		Dialer: dialer,
		From:   cfg.From,
	}, nil
}
