package mailer

import (
	"context"
	"fmt"
	"sync"

	"github.com/dripflow/dripflow/pkg/models"
	mail "github.com/wneessen/go-mail"
)

// Transport dispatches a rendered message over an organization's SMTP config.
type Transport interface {
	Dispatch(ctx context.Context, config *models.SMTPConfig, password string, msg *Message) error
	Close() error
}

// Message is a fully rendered outbound email.
type Message struct {
	FromAddress string
	FromName    string
	To          string
	Subject     string
	BodyHTML    string
}

// TransportPool caches SMTP clients per configuration for the lifetime of the
// process. Constructed once and passed by reference into the scheduler; Close
// tears every cached client down on shutdown.
type TransportPool struct {
	mu      sync.Mutex
	clients map[string]*mail.Client
}

// NewTransportPool creates an empty pool.
func NewTransportPool() *TransportPool {
	return &TransportPool{clients: make(map[string]*mail.Client)}
}

// Dispatch sends the message through the cached client for the config,
// creating the client on first use.
func (p *TransportPool) Dispatch(ctx context.Context, config *models.SMTPConfig, password string, msg *Message) error {
	client, err := p.client(config, password)
	if err != nil {
		return err
	}

	message := mail.NewMsg()

	if msg.FromName != "" {
		err = message.FromFormat(msg.FromName, msg.FromAddress)
	} else {
		err = message.From(msg.FromAddress)
	}

	if err != nil {
		return fmt.Errorf("invalid from address %q: %w", msg.FromAddress, err)
	}

	err = message.To(msg.To)
	if err != nil {
		return fmt.Errorf("invalid recipient address %q: %w", msg.To, err)
	}

	message.Subject(msg.Subject)
	message.SetBodyString(mail.TypeTextHTML, msg.BodyHTML)

	err = client.DialAndSendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("smtp dispatch via %s:%d failed: %w", config.Host, config.Port, err)
	}

	return nil
}

// Close tears down all cached clients.
func (p *TransportPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error

	for id, client := range p.clients {
		err := client.Close()
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close transport %s: %w", id, err)
		}

		delete(p.clients, id)
	}

	return firstErr
}

// client returns the cached client for the config, keyed by config ID so a
// replaced configuration gets a fresh client.
func (p *TransportPool) client(config *models.SMTPConfig, password string) (*mail.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if client, ok := p.clients[config.ID]; ok {
		return client, nil
	}

	options := []mail.Option{
		mail.WithPort(config.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}

	if config.Username != "" {
		options = append(options,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(config.Username),
			mail.WithPassword(password),
		)
	}

	client, err := mail.NewClient(config.Host, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to create smtp client for %s: %w", config.Host, err)
	}

	p.clients[config.ID] = client

	return client, nil
}
