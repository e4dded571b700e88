// The acmecli command line tool drives the ACME engine through a complete
// certificate issuance against a directory URL, using an embedded
// challtestsrv instance to answer http-01 or dns-01 challenges. It exists
// to exercise the library end to end; it is not the invoking CLI the
// certificate management core itself is scoped to exclude.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	acmeclient "github.com/tlsforge/acmecore/acme/client"
	"github.com/tlsforge/acmecore/acme/keys"
	"github.com/tlsforge/acmecore/acme/provisioning"
	"github.com/tlsforge/acmecore/acme/resources"
	"github.com/tlsforge/acmecore/acme/store"
	"github.com/tlsforge/acmecore/acme/x509util"
	acmecmd "github.com/tlsforge/acmecore/cmd"
)

const (
	directoryDefault = "https://localhost:14000/dir"
	accountDefault   = "acmecli.account.json"
	domainsDefault   = ""
	contactDefault   = ""
	challengeDefault = "http-01"
	httpPortDefault  = 5002
	dnsPortDefault   = 5252
	certOutDefault   = "acmecli.cert.pem"
)

func main() {
	directory := flag.String("directory", directoryDefault, "Directory URL for ACME server")
	account := flag.String("account", accountDefault, "Path to the account store file")
	domains := flag.String("domains", domainsDefault, "Comma separated list of domains to request a certificate for")
	contact := flag.String("contact", contactDefault, "Optional contact email address for a new account")
	challengeType := flag.String("challenge", challengeDefault, "Challenge type to solve: http-01 or dns-01")
	httpPort := flag.Int("httpPort", httpPortDefault, "http-01 challenge listener port for the embedded challtestsrv")
	dnsPort := flag.Int("dnsPort", dnsPortDefault, "dns-01 challenge listener port for the embedded challtestsrv")
	certOut := flag.String("out", certOutDefault, "File to write the issued certificate chain to")
	insecure := flag.Bool("insecure", false, "Allow http:// directory and resource URLs (local test servers only)")
	flag.Parse()

	if *domains == "" {
		acmecmd.FailOnError(fmt.Errorf("at least one domain is required"), "-domains")
	}
	idents := strings.Split(*domains, ",")
	for i := range idents {
		idents[i] = strings.TrimSpace(idents[i])
	}

	opts := []acmeclient.EngineOption{}
	if *insecure {
		opts = append(opts, acmeclient.WithInsecureHTTP())
	}
	engine, err := acmeclient.NewEngine(*account, *directory, opts...)
	acmecmd.FailOnError(err, "create engine")

	if store.Exists(*account) {
		acmecmd.FailOnError(engine.Load(), "load account store")
	} else {
		meta, err := engine.Meta()
		acmecmd.FailOnError(err, "fetch directory metadata")

		var contacts []string
		if *contact != "" {
			contacts = []string{*contact}
		}
		acmecmd.FailOnError(engine.Init(keys.DefaultBits), "generate account key")
		_, err = engine.NewAccount(meta.TermsOfService, contacts...)
		acmecmd.FailOnError(err, "register account")
	}

	challSrv, err := provisioning.NewChallTestSrv(provisioning.ChallTestSrvConfig{
		HTTPOneAddrs: []string{fmt.Sprintf(":%d", *httpPort)},
		DNSOneAddrs:  []string{fmt.Sprintf(":%d", *dnsPort)},
	})
	acmecmd.FailOnError(err, "start challenge test server")
	challSrv.Run()
	defer challSrv.Shutdown()
	go acmecmd.CatchSignals(challSrv.Shutdown)

	orderURL, order, err := engine.NewOrder(idents...)
	acmecmd.FailOnError(err, "create order")

	authzs, err := engine.FetchAuthorizations(order)
	acmecmd.FailOnError(err, "fetch authorizations")

	signer, err := engine.AccountSigner()
	acmecmd.FailOnError(err, "load account signer")

	for i, authz := range authzs {
		authzURL := order.Authorizations[i]
		chall, ok := authz.ChallengeByType(resources.ChallengeType(*challengeType))
		if !ok {
			acmecmd.FailOnError(fmt.Errorf("authorization for %q has no %q challenge", authz.Identifier.Value, *challengeType), "select challenge")
		}

		keyAuth, err := keys.KeyAuthorization(&signer.PublicKey, chall.Token)
		acmecmd.FailOnError(err, "compute key authorization")

		err = challSrv.Provision(chall.Type, authz.Identifier.Value, chall.Token, keyAuth)
		acmecmd.FailOnError(err, "provision challenge")

		_, err = engine.RequestChallengeValidation(chall)
		acmecmd.FailOnError(err, "request challenge validation")

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		err = engine.PollUntil(ctx, func() (string, error) {
			updated, err := engine.GetAuthorization(authzURL)
			if err != nil {
				return "", err
			}
			return string(updated.Status), nil
		}, string(resources.AuthorizationValid))
		cancel()

		_ = challSrv.CleanUp(chall.Type, authz.Identifier.Value, chall.Token)
		acmecmd.FailOnError(err, "wait for authorization validation")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	err = engine.PollUntil(ctx, func() (string, error) {
		updated, err := engine.GetOrder(orderURL)
		if err != nil {
			return "", err
		}
		order = updated
		return string(updated.Status), nil
	}, string(resources.OrderReady))
	cancel()
	acmecmd.FailOnError(err, "wait for order ready")

	csrDER, _, _, err := x509util.NewCSR(idents, x509util.DistinguishedName{}, nil)
	acmecmd.FailOnError(err, "build CSR")

	order, err = engine.FinalizeOrder(order, csrDER)
	acmecmd.FailOnError(err, "finalize order")

	ctx, cancel = context.WithTimeout(context.Background(), 2*time.Minute)
	err = engine.PollUntil(ctx, func() (string, error) {
		updated, err := engine.GetOrder(orderURL)
		if err != nil {
			return "", err
		}
		order = updated
		return string(updated.Status), nil
	}, string(resources.OrderValid))
	cancel()
	acmecmd.FailOnError(err, "wait for order valid")

	certPEM, err := engine.GetCertificate(order)
	acmecmd.FailOnError(err, "download certificate")

	err = os.WriteFile(*certOut, certPEM, 0644)
	acmecmd.FailOnError(err, fmt.Sprintf("write %s", *certOut))

	info, err := x509util.Inspect(certPEM)
	acmecmd.FailOnError(err, "inspect issued certificate")
	fmt.Printf("issued certificate for %s\n", strings.Join(info.SANs, ", "))
	fmt.Printf("fingerprint: %s\n", info.Fingerprint)
	fmt.Printf("written to: %s\n", *certOut)
}
