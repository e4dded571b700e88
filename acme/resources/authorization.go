package resources

// Authorization represents an account's authorization to issue for a given
// identifier, established by completing one of its Challenges (RFC 8555
// §7.1.4). Its URL is not part of the JSON body the server returns for it;
// callers that fetched the Authorization know the URL they requested and
// should track it alongside this value (see acme/client.Engine).
type Authorization struct {
	Status     AuthorizationStatus `json:"status"`
	Identifier Identifier          `json:"identifier"`
	Challenges []Challenge         `json:"challenges"`
	Expires    string              `json:"expires,omitempty"`
	Wildcard   bool                `json:"wildcard,omitempty"`

	// Extra preserves any server-sent field this struct doesn't name.
	Extra Extra `json:"-"`
}

var authorizationKnownKeys = map[string]bool{
	"status": true, "identifier": true, "challenges": true,
	"expires": true, "wildcard": true,
}

// MarshalJSON re-emits Extra's fields alongside the named ones.
func (a Authorization) MarshalJSON() ([]byte, error) {
	type alias Authorization
	return mergeKnownFields(alias(a), a.Extra)
}

// UnmarshalJSON populates the named fields and stashes anything else in Extra.
func (a *Authorization) UnmarshalJSON(data []byte) error {
	type alias Authorization
	extra, err := splitKnownFields(data, (*alias)(a), authorizationKnownKeys)
	if err != nil {
		return err
	}
	a.Extra = extra
	return nil
}

// ChallengeByType returns the first challenge of the given type, or false if
// the authorization did not offer one.
func (a Authorization) ChallengeByType(t ChallengeType) (Challenge, bool) {
	for _, c := range a.Challenges {
		if c.Type == t {
			return c, true
		}
	}
	return Challenge{}, false
}
