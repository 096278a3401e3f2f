package support

import "context"

// AccountContext is the read-only slice of account state the workflow needs.
type AccountContext struct {
	// AccountToken is empty when no account is logged in.
	AccountToken string `json:"-"`
}

// HasToken reports whether an account token is present.
func (a AccountContext) HasToken() bool {
	return a.AccountToken != ""
}

// AccountReader supplies the current account context.
type AccountReader interface {
	Account(ctx context.Context) (AccountContext, error)
}

// RedactionList returns the strings that must not appear verbatim in a
// collected log bundle. The list is handed to the collector untouched; this
// function does not redact anything itself.
func RedactionList(acct AccountContext) []string {
	tokens := []string{}
	if acct.HasToken() {
		tokens = append(tokens, acct.AccountToken)
	}
	return tokens
}
