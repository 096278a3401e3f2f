package support

import "strings"

// Draft holds what the reporter typed. It is never persisted.
type Draft struct {
	Email   string `json:"email"`
	Message string `json:"message"`
}

// SetEmail replaces the contact address. Any value is accepted, including "".
func (d *Draft) SetEmail(v string) {
	d.Email = v
}

// SetMessage replaces the problem description.
func (d *Draft) SetMessage(v string) {
	d.Message = v
}

// Valid reports whether the draft may be submitted: the message must contain
// at least one non-whitespace character. The email is never checked.
func (d Draft) Valid() bool {
	return strings.TrimSpace(d.Message) != ""
}
