package resources

// Challenge is an action the client must perform to demonstrate control of
// an identifier (RFC 8555 §7.1.5, §8).
type Challenge struct {
	Type   ChallengeType   `json:"type"`
	URL    string          `json:"url"`
	Token  string          `json:"token"`
	Status ChallengeStatus `json:"status"`
	// Error is populated by the server when Status is "invalid".
	Error *Problem `json:"error,omitempty"`

	// Extra preserves any server-sent field this struct doesn't name.
	Extra Extra `json:"-"`
}

var challengeKnownKeys = map[string]bool{
	"type": true, "url": true, "token": true, "status": true, "error": true,
}

// MarshalJSON re-emits Extra's fields alongside the named ones.
func (c Challenge) MarshalJSON() ([]byte, error) {
	type alias Challenge
	return mergeKnownFields(alias(c), c.Extra)
}

// UnmarshalJSON populates the named fields and stashes anything else in Extra.
func (c *Challenge) UnmarshalJSON(data []byte) error {
	type alias Challenge
	extra, err := splitKnownFields(data, (*alias)(c), challengeKnownKeys)
	if err != nil {
		return err
	}
	c.Extra = extra
	return nil
}

// String returns the challenge's URL.
func (c Challenge) String() string {
	return c.URL
}
