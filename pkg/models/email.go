package models

import "time"

// EmailTemplate is an organization-owned message template. Subject and body
// carry {{field}} placeholders substituted against contact fields at send time.
type EmailTemplate struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Name           string    `json:"name"    validate:"required"`
	Subject        string    `json:"subject" validate:"required"`
	BodyHTML       string    `json:"body_html"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// SMTPConfig is a per-organization outbound transport. Password holds the
// encrypted credential in the salt:iv:tag:ciphertext wire format (see
// pkg/secrets); legacy rows may hold it in the clear.
type SMTPConfig struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Host           string    `json:"host" validate:"required,hostname"`
	Port           int       `json:"port" validate:"required,min=1,max=65535"`
	Username       string    `json:"username"`
	Password       string    `json:"password"`
	FromAddress    string    `json:"from_address" validate:"required,email"`
	FromName       string    `json:"from_name"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
}

// EmailSendRecord is the durable log of one dispatched email, correlated by
// open-pixel and click-tracking callbacks. The interpreter creates it and
// never mutates it afterwards.
type EmailSendRecord struct {
	ID             string     `json:"id"`
	RunID          string     `json:"run_id"`
	ContactID      string     `json:"contact_id"`
	OrganizationID string     `json:"organization_id"`
	TemplateID     string     `json:"template_id"`
	Subject        string     `json:"subject"`
	SentAt         time.Time  `json:"sent_at"`
	OpenedAt       *time.Time `json:"opened_at,omitempty"`
	ClickedAt      *time.Time `json:"clicked_at,omitempty"`
}
