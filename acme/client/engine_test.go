package client

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tlsforge/acmecore/acme/codec"
	"github.com/tlsforge/acmecore/acme/keys"
	"github.com/tlsforge/acmecore/acme/resources"
	"github.com/tlsforge/acmecore/acme/x509util"
	acmenet "github.com/tlsforge/acmecore/net"
)

// mockACME is a minimal in-memory ACME server exercising the request flow
// the Engine drives: directory, newNonce, newAccount, newOrder, authz,
// challenges, finalize, certificate download, revocation.
type mockACME struct {
	srv   *httptest.Server
	caKey *rsa.PrivateKey

	mu                sync.Mutex
	accounts          map[string]*resources.Account
	orders            map[string]*resources.Order
	authzs            map[string]*resources.Authorization
	certs             map[string][]byte
	revoked           []string
	nonceCounter      int64
	failFirstBadNonce bool
	badNonceUsed      bool
}

func newMockACME(t *testing.T) *mockACME {
	caKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	m := &mockACME{
		caKey:    caKey,
		accounts: map[string]*resources.Account{},
		orders:   map[string]*resources.Order{},
		authzs:   map[string]*resources.Authorization{},
		certs:    map[string][]byte{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/directory", m.handleDirectory)
	mux.HandleFunc("/new-nonce", m.handleNewNonce)
	mux.HandleFunc("/new-account", m.handleNewAccount)
	mux.HandleFunc("/new-order", m.handleNewOrder)
	mux.HandleFunc("/order/", m.handleOrder)
	mux.HandleFunc("/authz/", m.handleAuthz)
	mux.HandleFunc("/chall/", m.handleChallenge)
	mux.HandleFunc("/finalize/", m.handleFinalize)
	mux.HandleFunc("/cert/", m.handleCert)
	mux.HandleFunc("/revoke-cert", m.handleRevoke)
	m.srv = httptest.NewTLSServer(mux)
	t.Cleanup(m.srv.Close)
	return m
}

func (m *mockACME) url(path string) string { return m.srv.URL + path }

func (m *mockACME) newNonce() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nonceCounter++
	return fmt.Sprintf("nonce-%d", m.nonceCounter)
}

func (m *mockACME) stampNonce(w http.ResponseWriter) {
	w.Header().Set("Replay-Nonce", m.newNonce())
}

func (m *mockACME) handleDirectory(w http.ResponseWriter, r *http.Request) {
	dir := resources.Directory{
		NewNonce:   m.url("/new-nonce"),
		NewAccount: m.url("/new-account"),
		NewOrder:   m.url("/new-order"),
		RevokeCert: m.url("/revoke-cert"),
		Meta:       resources.DirectoryMeta{TermsOfService: m.url("/tos")},
	}
	m.stampNonce(w)
	json.NewEncoder(w).Encode(dir)
}

func (m *mockACME) handleNewNonce(w http.ResponseWriter, r *http.Request) {
	m.stampNonce(w)
	w.WriteHeader(http.StatusOK)
}

// jwsPayload extracts the unverified payload of a flattened-serialization
// JWS body; this mock trusts its own test client and skips signature
// verification entirely.
func jwsPayload(body []byte) ([]byte, error) {
	var env struct {
		Payload string `json:"payload"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}
	if env.Payload == "" {
		return []byte(""), nil
	}
	return codec.Base64URLDecode(env.Payload)
}

func readAll(r *http.Request) []byte {
	defer r.Body.Close()
	data, _ := io.ReadAll(r.Body)
	return data
}

// maybeBadNonce fails the request exactly once with HTTP 400 badNonce when
// the test has armed failFirstBadNonce, exercising the Engine's one-retry
// recovery (scenario E2).
func (m *mockACME) maybeBadNonce(w http.ResponseWriter) bool {
	m.mu.Lock()
	shouldFail := m.failFirstBadNonce && !m.badNonceUsed
	if shouldFail {
		m.badNonceUsed = true
	}
	m.mu.Unlock()

	if !shouldFail {
		m.stampNonce(w)
		return true
	}

	m.stampNonce(w)
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(resources.Problem{
		Type:   "urn:ietf:params:acme:error:badNonce",
		Detail: "bad nonce",
		Status: http.StatusBadRequest,
	})
	return false
}

func (m *mockACME) handleNewAccount(w http.ResponseWriter, r *http.Request) {
	body := readAll(r)
	if !m.maybeBadNonce(w) {
		return
	}

	payload, err := jwsPayload(body)
	if err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	var req struct {
		Contact              []string `json:"contact"`
		TermsOfServiceAgreed bool     `json:"termsOfServiceAgreed"`
	}
	json.Unmarshal(payload, &req)

	m.mu.Lock()
	id := fmt.Sprintf("%d", len(m.accounts)+1)
	acctURL := m.url("/acct/" + id)
	acct := &resources.Account{Status: resources.AccountValid, Contact: req.Contact}
	m.accounts[acctURL] = acct
	m.mu.Unlock()

	w.Header().Set("Location", acctURL)
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(acct)
}

func (m *mockACME) handleNewOrder(w http.ResponseWriter, r *http.Request) {
	body := readAll(r)
	if !m.maybeBadNonce(w) {
		return
	}

	payload, _ := jwsPayload(body)
	var req struct {
		Identifiers []resources.Identifier `json:"identifiers"`
	}
	json.Unmarshal(payload, &req)

	m.mu.Lock()
	id := fmt.Sprintf("%d", len(m.orders)+1)
	orderURL := m.url("/order/" + id)

	var authzURLs []string
	for i, ident := range req.Identifiers {
		authzID := fmt.Sprintf("%s-%d", id, i)
		authzURL := m.url("/authz/" + authzID)
		chall := resources.Challenge{
			Type:  resources.ChallengeDNS01,
			URL:   m.url("/chall/" + authzID),
			Token: "token-" + authzID,
		}
		chall.Status = resources.ChallengePending
		m.authzs[authzURL] = &resources.Authorization{
			Status:     resources.AuthorizationPending,
			Identifier: ident,
			Challenges: []resources.Challenge{chall},
		}
		authzURLs = append(authzURLs, authzURL)
	}

	order := &resources.Order{
		Status:         resources.OrderPending,
		Identifiers:    req.Identifiers,
		Authorizations: authzURLs,
		Finalize:       m.url("/finalize/" + id),
	}
	m.orders[orderURL] = order
	m.mu.Unlock()

	w.Header().Set("Location", orderURL)
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(order)
}

// handleOrder serves GetOrder, a signed POST-as-GET (RFC 8555 §6.3): a
// real CA rejects a plain GET on this authenticated resource with 405, so
// the mock does the same.
func (m *mockACME) handleOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	m.mu.Lock()
	order, ok := m.orders[m.url(r.URL.Path)]
	m.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	m.stampNonce(w)
	json.NewEncoder(w).Encode(order)
}

// handleAuthz serves both GetAuthorization (a signed POST-as-GET with an
// empty payload) and DeactivateAuthorization (a signed POST carrying
// {"status":"deactivated"}) — both arrive as POST; the payload tells them
// apart.
func (m *mockACME) handleAuthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	m.mu.Lock()
	authz, ok := m.authzs[m.url(r.URL.Path)]
	m.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}

	payload, _ := jwsPayload(readAll(r))
	var req struct {
		Status string `json:"status"`
	}
	json.Unmarshal(payload, &req)
	if req.Status == string(resources.AuthorizationDeactivated) {
		m.mu.Lock()
		authz.Status = resources.AuthorizationDeactivated
		m.mu.Unlock()
	}
	m.stampNonce(w)

	json.NewEncoder(w).Encode(authz)
}

func (m *mockACME) handleChallenge(w http.ResponseWriter, r *http.Request) {
	authzURL := m.url("/authz/" + r.URL.Path[len("/chall/"):])
	m.mu.Lock()
	authz, ok := m.authzs[authzURL]
	m.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}

	m.mu.Lock()
	authz.Status = resources.AuthorizationValid
	authz.Challenges[0].Status = resources.ChallengeValid
	chall := authz.Challenges[0]
	m.mu.Unlock()

	m.stampNonce(w)
	json.NewEncoder(w).Encode(chall)
}

func (m *mockACME) handleFinalize(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Path[len("/finalize/"):]
	orderURL := m.url("/order/" + id)
	m.mu.Lock()
	order, ok := m.orders[orderURL]
	m.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}

	payload, _ := jwsPayload(readAll(r))
	var req struct {
		CSR string `json:"csr"`
	}
	json.Unmarshal(payload, &req)
	csrDER, _ := codec.Base64URLDecode(req.CSR)

	certPEM, err := m.issueCert(csrDER)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}

	m.mu.Lock()
	certURL := m.url("/cert/" + id)
	m.certs[certURL] = certPEM
	order.Status = resources.OrderValid
	order.Certificate = certURL
	m.mu.Unlock()

	m.stampNonce(w)
	json.NewEncoder(w).Encode(order)
}

func (m *mockACME) handleCert(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	cert, ok := m.certs[m.url(r.URL.Path)]
	m.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	m.stampNonce(w)
	w.Write(cert)
}

func (m *mockACME) handleRevoke(w http.ResponseWriter, r *http.Request) {
	payload, _ := jwsPayload(readAll(r))
	var req struct {
		Certificate string `json:"certificate"`
	}
	json.Unmarshal(payload, &req)

	m.mu.Lock()
	m.revoked = append(m.revoked, req.Certificate)
	m.mu.Unlock()

	m.stampNonce(w)
	w.WriteHeader(http.StatusOK)
}

// issueCert signs csrDER's public key and names into a short-lived leaf
// certificate under the mock's own throwaway CA key.
func (m *mockACME) issueCert(csrDER []byte) ([]byte, error) {
	csr, err := x509.ParseCertificateRequest(csrDER)
	if err != nil {
		return nil, err
	}
	if err := csr.CheckSignature(); err != nil {
		return nil, err
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: csr.Subject.CommonName},
		DNSNames:     csr.DNSNames,
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(90 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, csr.PublicKey, m.caKey)
	if err != nil {
		return nil, err
	}
	return codec.DERToPEM(der, x509util.CertificatePEMLabel), nil
}

func newTestEngine(t *testing.T, m *mockACME) *Engine {
	t.Helper()
	storePath := filepath.Join(t.TempDir(), "account.json")
	e, err := NewEngine(storePath, m.url("/directory"), WithNetConfig(acmenet.Config{
		Transport: m.srv.Client().Transport,
	}))
	require.NoError(t, err)
	return e
}

func TestE1FirstTimeIssuanceTwoDomains(t *testing.T) {
	m := newMockACME(t)
	e := newTestEngine(t, m)

	meta, err := e.Meta()
	require.NoError(t, err)
	require.Equal(t, m.url("/tos"), meta.TermsOfService)

	require.NoError(t, e.Init(2048))
	acct, err := e.NewAccount(meta.TermsOfService, "admin@example.com")
	require.NoError(t, err)
	require.Equal(t, resources.AccountValid, acct.Status)

	orderURL, order, err := e.NewOrder("foo.example.com", "bar.example.com")
	require.NoError(t, err)
	require.NotEmpty(t, orderURL)
	require.Len(t, order.Authorizations, 2)

	authzs, err := e.FetchAuthorizations(order)
	require.NoError(t, err)
	require.Len(t, authzs, 2)

	for _, authz := range authzs {
		chall, ok := authz.ChallengeByType(resources.ChallengeDNS01)
		require.True(t, ok)
		_, err := e.RequestChallengeValidation(chall)
		require.NoError(t, err)
	}

	for _, authzURL := range order.Authorizations {
		fetched, err := e.GetAuthorization(authzURL)
		require.NoError(t, err)
		require.Equal(t, resources.AuthorizationValid, fetched.Status)
	}

	updatedOrder, err := e.GetOrder(orderURL)
	require.NoError(t, err)

	csrDER, _, _, err := x509util.NewCSR([]string{"foo.example.com", "bar.example.com"}, x509util.DistinguishedName{}, nil)
	require.NoError(t, err)

	finalized, err := e.FinalizeOrder(updatedOrder, csrDER)
	require.NoError(t, err)
	require.Equal(t, resources.OrderValid, finalized.Status)
	require.NotEmpty(t, finalized.Certificate)

	certPEM, err := e.GetCertificate(finalized)
	require.NoError(t, err)

	info, err := x509util.Inspect(certPEM)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"foo.example.com", "bar.example.com"}, info.SANs)
}

func TestE2BadNonceRecovery(t *testing.T) {
	m := newMockACME(t)
	m.failFirstBadNonce = true
	e := newTestEngine(t, m)

	require.NoError(t, e.Init(2048))
	acct, err := e.NewAccount("", "admin@example.com")
	require.NoError(t, err)
	require.Equal(t, resources.AccountValid, acct.Status)
	m.mu.Lock()
	used := m.badNonceUsed
	m.mu.Unlock()
	require.True(t, used)
}

func TestE3RenewalWithReusedKey(t *testing.T) {
	m := newMockACME(t)
	e := newTestEngine(t, m)
	require.NoError(t, e.Init(2048))
	_, err := e.NewAccount("", "admin@example.com")
	require.NoError(t, err)

	leafKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	orderURL, _, err := e.NewOrder("renew.example.com")
	require.NoError(t, err)
	order, err := e.GetOrder(orderURL)
	require.NoError(t, err)

	authzs, err := e.FetchAuthorizations(order)
	require.NoError(t, err)
	for _, authz := range authzs {
		chall, _ := authz.ChallengeByType(resources.ChallengeDNS01)
		_, err := e.RequestChallengeValidation(chall)
		require.NoError(t, err)
	}

	csrDER, _, _, err := x509util.NewCSR([]string{"renew.example.com"}, x509util.DistinguishedName{}, leafKey)
	require.NoError(t, err)

	finalized, err := e.FinalizeOrder(order, csrDER)
	require.NoError(t, err)

	certPEM, err := e.GetCertificate(finalized)
	require.NoError(t, err)

	require.NoError(t, x509util.MatchesKey(certPEM, keys.RSAKeyToPEM(leafKey)))
}

func TestE4RevocationByAccountKey(t *testing.T) {
	m := newMockACME(t)
	e := newTestEngine(t, m)
	require.NoError(t, e.Init(2048))
	_, err := e.NewAccount("", "admin@example.com")
	require.NoError(t, err)

	csrDER, _, _, err := x509util.NewCSR([]string{"revoke.example.com"}, x509util.DistinguishedName{}, nil)
	require.NoError(t, err)

	orderURL, _, err := e.NewOrder("revoke.example.com")
	require.NoError(t, err)
	order, err := e.GetOrder(orderURL)
	require.NoError(t, err)
	authzs, err := e.FetchAuthorizations(order)
	require.NoError(t, err)
	for _, authz := range authzs {
		chall, _ := authz.ChallengeByType(resources.ChallengeDNS01)
		_, err := e.RequestChallengeValidation(chall)
		require.NoError(t, err)
	}
	finalized, err := e.FinalizeOrder(order, csrDER)
	require.NoError(t, err)
	certPEM, err := e.GetCertificate(finalized)
	require.NoError(t, err)

	// RevokeCertificate accepts the PEM chain as returned by GetCertificate
	// directly; it converts the leading block to DER internally.
	err = e.RevokeCertificate(certPEM, 0)
	require.NoError(t, err)
	require.Len(t, m.revoked, 1)
}

func TestE5DeactivateAuthorization(t *testing.T) {
	m := newMockACME(t)
	e := newTestEngine(t, m)
	require.NoError(t, e.Init(2048))
	_, err := e.NewAccount("", "admin@example.com")
	require.NoError(t, err)

	orderURL, _, err := e.NewOrder("deactivate.example.com")
	require.NoError(t, err)
	order, err := e.GetOrder(orderURL)
	require.NoError(t, err)

	authz, err := e.DeactivateAuthorization(order.Authorizations[0])
	require.NoError(t, err)
	require.Equal(t, resources.AuthorizationDeactivated, authz.Status)
}

func TestE6ToSGating(t *testing.T) {
	m := newMockACME(t)
	e := newTestEngine(t, m)

	meta, err := e.Meta()
	require.NoError(t, err)
	require.NotEmpty(t, meta.TermsOfService)

	require.NoError(t, e.Init(2048))
	_, err = e.NewAccount(meta.TermsOfService, "admin@example.com")
	require.NoError(t, err)

	storePath := e.storePath
	e2, err := NewEngine(storePath, m.url("/directory"), WithNetConfig(acmenet.Config{
		Transport: m.srv.Client().Transport,
	}))
	require.NoError(t, err)
	require.NoError(t, e2.Load())

	rec, err := e2.requireRecord()
	require.NoError(t, err)
	require.Equal(t, meta.TermsOfService, rec.AcceptedTermsURL)
}
