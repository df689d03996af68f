package mail

import "log/slog"

type Message struct {
	From    string
	To      []string
	Cc      []string
	Subject string
	Body    string
	IsHTML  bool
}

type MailSender interface {
	Send(message *Message) error
}

// SendAsync delivers message in the background. Failures are only logged.
func SendAsync(sender MailSender, message *Message, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	go func() {
		if err := sender.Send(message); err != nil {
			logger.Error("Failed to send mail", "to", message.To, "subject", message.Subject, "error", err)
		}
	}()
}

// LogMailSender writes messages to the log instead of delivering them.
type LogMailSender struct {
	logger *slog.Logger
}

func (s *LogMailSender) Send(message *Message) error {
	s.logger.Info("Mail not delivered, log backend", "to", message.To, "subject", message.Subject)
	return nil
}

func NewLogMailSender(logger *slog.Logger) *LogMailSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailSender{logger: logger}
}
