package models

import "time"

// Contact is a CRM contact record. Read-only input to the interpreter.
type Contact struct {
	ID             string         `json:"id"`
	OrganizationID string         `json:"organization_id"`
	FirstName      string         `json:"first_name"`
	LastName       string         `json:"last_name"`
	Email          string         `json:"email" validate:"required,email"`
	Fields         map[string]any `json:"fields,omitempty"` // Custom CRM attributes
	CreatedAt      time.Time      `json:"created_at"`
}

// TemplateFields flattens the contact into the placeholder namespace used by
// email template rendering. Custom fields never shadow the built-ins.
func (c *Contact) TemplateFields() map[string]string {
	fields := make(map[string]string, len(c.Fields)+3)

	for k, v := range c.Fields {
		if s, ok := v.(string); ok {
			fields[k] = s
		}
	}

	fields["first_name"] = c.FirstName
	fields["last_name"] = c.LastName
	fields["email"] = c.Email

	return fields
}

// Field returns a named contact attribute, checking built-ins before custom fields.
func (c *Contact) Field(name string) (any, bool) {
	switch name {
	case "first_name":
		return c.FirstName, true
	case "last_name":
		return c.LastName, true
	case "email":
		return c.Email, true
	}

	v, ok := c.Fields[name]

	return v, ok
}
