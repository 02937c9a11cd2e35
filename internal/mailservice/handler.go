package mailservice

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand/v2"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/metapresshq/metapress/internal/common"
)

func NewMailService(mb common.MessageConsumer, host, username, password, sender string, port int, logger *slog.Logger) *MailService {
	ctx, cancel := context.WithCancel(context.Background())
	return &MailService{
		mb:     mb,
		m:      NewMailer(host, port, username, password, sender, NewTemplate()),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// HandleContactMessages consumes contact-form events and forwards each one to
// the site owner's inbox.
func (s *MailService) HandleContactMessages(recipient string) {
	msgs, err := s.mb.Consume(common.ContactMessageKey, common.MailExchange, common.ContactMessageQueue)
	if err != nil {
		s.logger.Error("could not consume message", slog.String("error", err.Error()))
		return
	}

	go s.consume(msgs, func(body []byte) error {
		var data ContactMessage
		if err := json.Unmarshal(body, &data); err != nil {
			return err
		}

		return s.m.send(recipient, data, "contact_message.html")
	})
}

// HandleNewsletterSignups consumes newsletter signups and sends the welcome
// email to the subscriber.
func (s *MailService) HandleNewsletterSignups() {
	msgs, err := s.mb.Consume(common.NewsletterSignupKey, common.MailExchange, common.NewsletterSignupQueue)
	if err != nil {
		s.logger.Error("could not consume message", slog.String("error", err.Error()))
		return
	}

	go s.consume(msgs, func(body []byte) error {
		var data NewsletterSignup
		if err := json.Unmarshal(body, &data); err != nil {
			return err
		}

		return s.m.send(data.Email, data, "newsletter_welcome.html")
	})
}

// consume drains a delivery channel, retrying each send with exponential
// backoff and jitter. Messages are acked either way; a mail that failed five
// times is dropped, not redelivered forever.
func (s *MailService) consume(msgs <-chan amqp.Delivery, handle func(body []byte) error) {
	const maxRetries = 5
	const baseDelay = 500 * time.Millisecond

	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				return
			}

			var attempt int
			var err error
			for attempt = 0; attempt < maxRetries; attempt++ {
				err = handle(msg.Body)
				if err == nil {
					msg.Ack(false)
					break
				}

				delay := time.Duration(rand.Int64N(int64(baseDelay) << uint(attempt)))
				s.logger.Info("delaying mail delivery", slog.Int("attempt", attempt), slog.Duration("delay", delay))
				time.Sleep(delay)
			}

			if attempt == maxRetries {
				s.logger.Error("could not deliver mail", slog.String("error", err.Error()))
				msg.Ack(false)
			}

		case <-s.ctx.Done():
			s.logger.Info("stopping mail consumer due to context cancellation")
			return
		}
	}
}

func (s *MailService) Close() {
	s.cancel()
}
