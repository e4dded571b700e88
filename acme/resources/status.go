package resources

// OrderStatus is an RFC 8555 §7.1.6 order lifecycle state. It is a named
// string rather than a closed Go enum (iota) because the server is free to
// introduce new status values and this library must round-trip them rather
// than reject or mangle what it doesn't recognize.
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderReady      OrderStatus = "ready"
	OrderProcessing OrderStatus = "processing"
	OrderValid      OrderStatus = "valid"
	OrderInvalid    OrderStatus = "invalid"
)

// AuthorizationStatus is an RFC 8555 §7.1.6 authorization lifecycle state.
type AuthorizationStatus string

const (
	AuthorizationPending     AuthorizationStatus = "pending"
	AuthorizationValid       AuthorizationStatus = "valid"
	AuthorizationInvalid     AuthorizationStatus = "invalid"
	AuthorizationDeactivated AuthorizationStatus = "deactivated"
	AuthorizationExpired     AuthorizationStatus = "expired"
	AuthorizationRevoked     AuthorizationStatus = "revoked"
)

// ChallengeStatus is an RFC 8555 §7.1.6 challenge lifecycle state.
type ChallengeStatus string

const (
	ChallengePending    ChallengeStatus = "pending"
	ChallengeProcessing ChallengeStatus = "processing"
	ChallengeValid      ChallengeStatus = "valid"
	ChallengeInvalid    ChallengeStatus = "invalid"
)

// AccountStatus is an RFC 8555 §7.1.2 account lifecycle state.
type AccountStatus string

const (
	AccountValid       AccountStatus = "valid"
	AccountDeactivated AccountStatus = "deactivated"
	AccountRevoked     AccountStatus = "revoked"
)

// ChallengeType identifies the validation method a Challenge uses. Only
// http-01 and dns-01 are provisioned by this library (acme/provisioning's
// ChallTestSrv rejects tls-alpn-01), but the type is open so a
// server-offered tls-alpn-01 challenge still deserializes cleanly.
type ChallengeType string

const (
	ChallengeHTTP01 ChallengeType = "http-01"
	ChallengeDNS01  ChallengeType = "dns-01"
)

// IdentifierType is the type discriminator of an Identifier. RFC 8555
// currently defines only "dns".
type IdentifierType string

const (
	IdentifierDNS IdentifierType = "dns"
)
