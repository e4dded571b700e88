package acmeerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tlsforge/acmecore/acme/resources"
)

func TestSentinelWrappingMatchesErrorsIs(t *testing.T) {
	err := fmt.Errorf("%w: storePath must not be empty", ConfigError)
	require.True(t, errors.Is(err, ConfigError))
	require.False(t, errors.Is(err, TransportError))
}

func TestProtocolErrorMatchesProtocolSentinel(t *testing.T) {
	err := NewProtocolError(400, resources.Problem{Type: "urn:ietf:params:acme:error:malformed", Detail: "bad request"})
	require.True(t, errors.Is(err, Protocol))

	var perr *ProtocolError
	require.True(t, errors.As(err, &perr))
	require.Equal(t, 400, perr.StatusCode)
	require.Contains(t, perr.Error(), "malformed")
	require.Contains(t, perr.Error(), "bad request")
}

func TestProtocolErrorWithoutProblemDocument(t *testing.T) {
	err := NewProtocolError(503, resources.Problem{})
	require.Equal(t, "acme: protocol error: server returned HTTP 503", err.Error())
}

func TestIsBadNonceProblem(t *testing.T) {
	require.True(t, IsBadNonceProblem(resources.Problem{Type: "urn:ietf:params:acme:error:badNonce"}))
	require.False(t, IsBadNonceProblem(resources.Problem{Type: "urn:ietf:params:acme:error:malformed"}))
	require.False(t, IsBadNonceProblem(resources.Problem{}))
}

func TestProtocolErrorWrappedStillMatchesAs(t *testing.T) {
	inner := NewProtocolError(400, resources.Problem{Type: "urn:ietf:params:acme:error:badNonce"})
	wrapped := fmt.Errorf("sendSigned: %w", inner)

	var perr *ProtocolError
	require.True(t, errors.As(wrapped, &perr))
	require.True(t, IsBadNonceProblem(perr.Problem))
	require.True(t, errors.Is(wrapped, Protocol))
}
