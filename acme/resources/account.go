package resources

// Account is the wire-level ACME account object the server returns from
// newAccount/updateAccount/GET-as-POST account requests (RFC 8555 §7.1.2).
// It carries no private key material: the account's keypair and its
// server-assigned location URL (used as the JWS kid) live in acme/store's
// persisted Record, not here, since this struct is marshaled/unmarshaled
// directly against request and response bodies.
type Account struct {
	Status               AccountStatus `json:"status"`
	Contact              []string      `json:"contact,omitempty"`
	Orders               string        `json:"orders,omitempty"`
	TermsOfServiceAgreed bool          `json:"termsOfServiceAgreed,omitempty"`

	// Extra preserves any server-sent field this struct doesn't name.
	Extra Extra `json:"-"`
}

var accountKnownKeys = map[string]bool{
	"status": true, "contact": true, "orders": true, "termsOfServiceAgreed": true,
}

// MarshalJSON re-emits Extra's fields alongside the named ones.
func (a Account) MarshalJSON() ([]byte, error) {
	type alias Account
	return mergeKnownFields(alias(a), a.Extra)
}

// UnmarshalJSON populates the named fields and stashes anything else in Extra.
func (a *Account) UnmarshalJSON(data []byte) error {
	type alias Account
	extra, err := splitKnownFields(data, (*alias)(a), accountKnownKeys)
	if err != nil {
		return err
	}
	a.Extra = extra
	return nil
}

// ContactEmails builds the "mailto:" contact URIs newAccount/updateAccount
// expects from a list of bare email addresses, skipping any empty entries.
func ContactEmails(emails []string) []string {
	var contacts []string
	for _, e := range emails {
		if e == "" {
			continue
		}
		contacts = append(contacts, "mailto:"+e)
	}
	return contacts
}
