package provisioning

import (
	"fmt"
	"log"

	"github.com/letsencrypt/challtestsrv"

	"github.com/tlsforge/acmecore/acme/resources"
)

// ChallTestSrv adapts github.com/letsencrypt/challtestsrv to the
// Provisioner interface, for integration tests and the cmd/acmecli demo
// binary. It stands in for a real HTTP or DNS provisioner: challtestsrv
// serves http-01 responses and dns-01 TXT records over its own listeners,
// which the ACME server under test must be configured to query.
type ChallTestSrv struct {
	srv *challtestsrv.ChallengeTestSrv
}

// ChallTestSrvConfig configures the listener addresses the embedded
// challtestsrv binds. Ports are typically loopback-only, matching a local
// Pebble or Boulder integration setup.
type ChallTestSrvConfig struct {
	HTTPOneAddrs []string
	DNSOneAddrs  []string
}

// NewChallTestSrv constructs (but does not start) a ChallTestSrv.
func NewChallTestSrv(conf ChallTestSrvConfig) (*ChallTestSrv, error) {
	srv, err := challtestsrv.New(challtestsrv.Config{
		HTTPOneAddrs: conf.HTTPOneAddrs,
		DNSOneAddrs:  conf.DNSOneAddrs,
		Log:          log.Default(),
	})
	if err != nil {
		return nil, fmt.Errorf("provisioning: create challtestsrv: %w", err)
	}
	return &ChallTestSrv{srv: srv}, nil
}

// Run starts the embedded listeners in background goroutines. It returns
// immediately; call Shutdown to stop them.
func (c *ChallTestSrv) Run() {
	c.srv.Run()
}

// Shutdown stops the embedded listeners.
func (c *ChallTestSrv) Shutdown() {
	c.srv.Shutdown()
}

// Provision implements Provisioner by registering the challenge response
// with the embedded test server.
func (c *ChallTestSrv) Provision(challengeType resources.ChallengeType, identifier, token, keyAuthorization string) error {
	switch challengeType {
	case resources.ChallengeHTTP01:
		c.srv.AddHTTPOneChallenge(token, keyAuthorization)
		return nil
	case resources.ChallengeDNS01:
		rr := DNS01Record(identifier, keyAuthorization)
		c.srv.AddDNSOneChallenge(rr.Hdr.Name, rr.Txt[0])
		return nil
	default:
		return ErrUnsupportedChallengeType(challengeType)
	}
}

// CleanUp implements Provisioner by retracting a previously provisioned
// challenge response.
func (c *ChallTestSrv) CleanUp(challengeType resources.ChallengeType, identifier, token string) error {
	switch challengeType {
	case resources.ChallengeHTTP01:
		c.srv.DeleteHTTPOneChallenge(token)
		return nil
	case resources.ChallengeDNS01:
		c.srv.DeleteDNSOneChallenge(DNS01Record(identifier, "").Hdr.Name)
		return nil
	default:
		return ErrUnsupportedChallengeType(challengeType)
	}
}
