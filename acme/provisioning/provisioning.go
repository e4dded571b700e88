// Package provisioning defines the boundary between the ACME protocol
// engine and whatever actually publishes challenge responses: a web
// server for http-01, a DNS zone for dns-01. The engine computes key
// authorizations and record values; it never provisions them itself.
package provisioning

import (
	"fmt"

	"github.com/tlsforge/acmecore/acme/resources"
)

// Provisioner publishes and retracts challenge responses on behalf of the
// engine. Implementations own whatever side effect makes a challenge
// observable to the ACME server: serving a file, publishing a DNS record,
// configuring a TLS listener.
type Provisioner interface {
	// Provision makes the challenge response for identifier observable:
	// keyAuthorization is the value to serve (http-01) or the material to
	// derive the TXT record value from (dns-01).
	Provision(challengeType resources.ChallengeType, identifier string, token string, keyAuthorization string) error

	// CleanUp retracts a previously provisioned challenge response. It is
	// called once validation has finished, win or lose, and must be safe
	// to call even if Provision was never called for that identifier.
	CleanUp(challengeType resources.ChallengeType, identifier string, token string) error
}

// ErrUnsupportedChallengeType is returned by a Provisioner that doesn't
// implement the requested challenge type.
func ErrUnsupportedChallengeType(challengeType resources.ChallengeType) error {
	return fmt.Errorf("provisioning: unsupported challenge type %q", challengeType)
}
