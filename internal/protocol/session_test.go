package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A CANC command carries no symbol argument, so the owning session
// must remember which symbol each of its own orders belongs to.
func TestSessionOrderRoutingRememberAndForget(t *testing.T) {
	s := &session{}

	s.rememberOrder(1, "BTC-USD")
	s.rememberOrder(2, "ETH-USD")

	symbol, ok := s.lookupOrder(1)
	require.True(t, ok)
	assert.Equal(t, "BTC-USD", symbol)

	symbol, ok = s.lookupOrder(2)
	require.True(t, ok)
	assert.Equal(t, "ETH-USD", symbol)

	s.forgetOrder(1)
	_, ok = s.lookupOrder(1)
	assert.False(t, ok, "cancelled order should no longer route")

	symbol, ok = s.lookupOrder(2)
	require.True(t, ok, "unrelated order must survive another order's cancel")
	assert.Equal(t, "ETH-USD", symbol)
}

func TestSessionLookupUnknownOrder(t *testing.T) {
	s := &session{}
	_, ok := s.lookupOrder(999)
	assert.False(t, ok)
}

func TestSessionCurrentClientIDEmptyBeforeBind(t *testing.T) {
	s := &session{}
	assert.Equal(t, "", s.currentClientID())
}
