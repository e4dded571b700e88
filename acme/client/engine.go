// Package client implements the ACME v2 protocol engine: directory
// discovery, nonce management, JWS-signed requests, and the account/order/
// authorization/challenge/certificate operations defined by RFC 8555.
package client

import (
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"

	"github.com/tlsforge/acmecore/acme/keys"
	"github.com/tlsforge/acmecore/acme/resources"
	"github.com/tlsforge/acmecore/acme/store"
	"github.com/tlsforge/acmecore/acmeerr"
	acmenet "github.com/tlsforge/acmecore/net"
)

// Engine drives the ACME protocol against a single directory on behalf of
// a single account. It is not safe for concurrent use by multiple
// goroutines issuing signed requests that mutate shared account state
// (order/account updates would race each other's writes). Read-only
// POST-as-GET fetches (FetchAuthorizations) are the exception — see that
// method's doc comment.
type Engine struct {
	directoryURL string
	storePath    string
	net          *acmenet.Client

	mu        sync.Mutex
	directory resources.Directory
	record    *store.Record
	nonce     string
}

// EngineOption configures an Engine at construction time.
type EngineOption func(*engineConfig)

type engineConfig struct {
	allowInsecureHTTP bool
	netConfig         acmenet.Config
}

// WithInsecureHTTP permits http:// directory and resource URLs for local
// testing against a Pebble-style ACME server that doesn't terminate TLS.
// Production engines must never set this.
func WithInsecureHTTP() EngineOption {
	return func(c *engineConfig) { c.allowInsecureHTTP = true }
}

// WithNetConfig overrides the underlying HTTPS client configuration, e.g.
// to inject a test transport.
func WithNetConfig(conf acmenet.Config) EngineOption {
	return func(c *engineConfig) { c.netConfig = conf }
}

// NewEngine constructs an Engine for the directory at directoryURL,
// persisting its account to storePath. Call Init then NewAccount to
// generate and register a fresh account, or Load to resume a previously
// stored one, before issuing any other request.
func NewEngine(storePath, directoryURL string, opts ...EngineOption) (*Engine, error) {
	directoryURL = strings.TrimSpace(directoryURL)
	storePath = strings.TrimSpace(storePath)
	if directoryURL == "" {
		return nil, fmt.Errorf("%w: directoryURL must not be empty", acmeerr.ConfigError)
	}
	if storePath == "" {
		return nil, fmt.Errorf("%w: storePath must not be empty", acmeerr.ConfigError)
	}
	if _, err := url.Parse(directoryURL); err != nil {
		return nil, fmt.Errorf("%w: directoryURL invalid: %s", acmeerr.ConfigError, err)
	}

	cfg := &engineConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.allowInsecureHTTP {
		cfg.netConfig.AllowInsecureHTTP = true
	}

	return &Engine{
		directoryURL: directoryURL,
		storePath:    storePath,
		net:          acmenet.New(cfg.netConfig),
	}, nil
}

// updateDirectory fetches and caches the ACME directory object.
func (e *Engine) updateDirectory() error {
	resp, err := e.net.Get(e.directoryURL)
	if err != nil {
		return fmt.Errorf("%w: fetch directory: %s", acmeerr.TransportError, err)
	}
	if resp.Response.StatusCode != 200 {
		return fmt.Errorf("%w: directory returned HTTP %d", acmeerr.TransportError, resp.Response.StatusCode)
	}

	var dir resources.Directory
	if err := json.Unmarshal(resp.Body, &dir); err != nil {
		return fmt.Errorf("%w: parse directory: %s", acmeerr.TransportError, err)
	}

	e.mu.Lock()
	e.directory = dir
	e.mu.Unlock()
	log.Printf("acme: updated directory from %s", e.directoryURL)
	return nil
}

func (e *Engine) directoryOrFetch() (resources.Directory, error) {
	e.mu.Lock()
	dir := e.directory
	e.mu.Unlock()
	if dir.NewAccount != "" {
		return dir, nil
	}
	if err := e.updateDirectory(); err != nil {
		return resources.Directory{}, err
	}
	e.mu.Lock()
	dir = e.directory
	e.mu.Unlock()
	return dir, nil
}

// Meta returns the directory's optional metadata object (terms of service
// URL, website, CAA identities), fetching the directory first if needed.
func (e *Engine) Meta() (resources.DirectoryMeta, error) {
	dir, err := e.directoryOrFetch()
	if err != nil {
		return resources.DirectoryMeta{}, err
	}
	return dir.Meta, nil
}

// Init generates a fresh RSA account key (bits defaults to keys.DefaultBits
// when 0) and durably persists it, unregistered, to the Engine's store
// path. It does not talk to the ACME server: call NewAccount afterward to
// register the persisted key. It returns acmeerr.StateError if a record
// already exists there.
func (e *Engine) Init(bits int) error {
	if store.Exists(e.storePath) {
		return fmt.Errorf("%w: a store already exists at %q; use Load instead", acmeerr.StateError, e.storePath)
	}
	signer, err := keys.NewRSAKey(bits)
	if err != nil {
		return fmt.Errorf("%w: generate account key: %s", acmeerr.CryptoError, err)
	}
	return e.save(&store.Record{KeyPEM: keys.RSAKeyToPEM(signer)})
}

// Load reads a previously persisted account record from the Engine's store
// path. It is idempotent: calling it again after a successful call is a
// no-op.
func (e *Engine) Load() error {
	e.mu.Lock()
	alreadyLoaded := e.record != nil
	e.mu.Unlock()
	if alreadyLoaded {
		return nil
	}

	rec, err := store.Load(e.storePath)
	if err != nil {
		return err
	}
	if rec.DirectoryURL != "" && rec.DirectoryURL != e.directoryURL {
		return fmt.Errorf("%w: store at %q was created for directory %q, not %q",
			acmeerr.ConfigError, e.storePath, rec.DirectoryURL, e.directoryURL)
	}

	e.mu.Lock()
	e.record = rec
	e.mu.Unlock()
	return nil
}

func (e *Engine) requireRecord() (*store.Record, error) {
	e.mu.Lock()
	rec := e.record
	e.mu.Unlock()
	if rec == nil {
		return nil, fmt.Errorf("%w: no account loaded; call Init then NewAccount, or Load, first", acmeerr.StateError)
	}
	return rec, nil
}

// AccountSigner returns the loaded account's private key, for callers that
// need to compute a key authorization (token.thumbprint) themselves, e.g.
// to hand to a Provisioner before calling RequestChallengeValidation.
func (e *Engine) AccountSigner() (*rsa.PrivateKey, error) {
	rec, err := e.requireRecord()
	if err != nil {
		return nil, err
	}
	return rec.Signer()
}

func (e *Engine) save(rec *store.Record) error {
	rec.DirectoryURL = e.directoryURL
	if err := store.Save(e.storePath, rec); err != nil {
		return err
	}
	e.mu.Lock()
	e.record = rec
	e.mu.Unlock()
	return nil
}
