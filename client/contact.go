package client

import "github.com/vitalvas/contactsig/canonical"

// Wire field names of the registration payload.
const (
	FieldPhone     = "phone"
	FieldOSConsent = "os_consent"
	FieldFirstName = "first_name"
	FieldLastName  = "last_name"
	FieldEmail     = "email"
	FieldComment   = "comment"
)

// Contact is the registration record. Phone and OSConsent are always sent;
// the remaining fields are omitted when empty. No validation happens here,
// the remote service owns it.
type Contact struct {
	Phone     string
	OSConsent bool
	FirstName string
	LastName  string
	Email     string
	Comment   string
}

// Payload returns the contact as an ordered payload in wire order.
func (c Contact) Payload() *canonical.Payload {
	p := canonical.New(
		canonical.F(FieldPhone, c.Phone),
		canonical.F(FieldOSConsent, c.OSConsent),
	)

	optional := []canonical.Field{
		{Name: FieldFirstName, Value: c.FirstName},
		{Name: FieldLastName, Value: c.LastName},
		{Name: FieldEmail, Value: c.Email},
		{Name: FieldComment, Value: c.Comment},
	}

	for _, f := range optional {
		if f.Value != "" {
			p.Set(f.Name, f.Value)
		}
	}

	return p
}
