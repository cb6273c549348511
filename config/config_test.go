package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sand/storefront/backend/internal/core/ports"
)

func TestValidateAddress(t *testing.T) {
	assert.NoError(t, ValidateAddress(NetworkTron, "TQn9Y2khEsLJW1ChVWFMSMeRDow5KcbLSE"))
	assert.NoError(t, ValidateAddress(NetworkTron, "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"))
	assert.Error(t, ValidateAddress(NetworkTron, "TQn9Y2khEsLJW1ChVWFMSMeRDow5KcbLS"))
	assert.Error(t, ValidateAddress(NetworkTron, "0x55d398326f99059fF775485246999027B3197955"))

	assert.NoError(t, ValidateAddress(NetworkBSC, "0x55d398326f99059fF775485246999027B3197955"))
	assert.Error(t, ValidateAddress(NetworkBSC, "TQn9Y2khEsLJW1ChVWFMSMeRDow5KcbLSE"))

	assert.NoError(t, ValidateAddress(NetworkSolana, "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"))
	assert.Error(t, ValidateAddress(NetworkSolana, "not-a-key"))

	assert.Error(t, ValidateAddress("dogecoin", "D8"))
}

func TestNormalizeAppliesFloors(t *testing.T) {
	c := &Config{}
	c.Network = " TRON "
	c.PollIntervalSeconds = 1
	c.TronScanEndpoints = []string{" https://a ", "", "https://b"}
	c.Normalize()

	assert.Equal(t, NetworkTron, c.Network)
	assert.Equal(t, ports.MinPollInterval, c.PollInterval())
	assert.Equal(t, ports.DefaultOrderTTL, c.OrderTTL())
	assert.Equal(t, ports.DefaultSweepBatchSize, c.BatchSize)
	assert.Equal(t, ports.DefaultFingerprintRetries, c.MaxAttempts)
	assert.Equal(t, ports.DefaultCodeWidth, c.CodeWidth)
	assert.Equal(t, []string{"https://a", "https://b"}, c.TronScanEndpoints)
	assert.Equal(t, ports.DefaultLedgerCacheTTL, c.LedgerCacheTTL())
}

func TestNormalizePinsCodeWidth(t *testing.T) {
	for _, width := range []int{-1, 0, 1, 2, 3, 5, 6, 7} {
		c := &Config{}
		c.CodeWidth = width
		c.Normalize()
		assert.Equal(t, ports.DefaultCodeWidth, c.CodeWidth, "width %d", width)
	}
}

func TestNormalizeFloorsCacheTTL(t *testing.T) {
	for _, seconds := range []int{-5, 0} {
		c := &Config{}
		c.CacheTTLSeconds = seconds
		c.Normalize()
		assert.Equal(t, ports.DefaultLedgerCacheTTL, c.LedgerCacheTTL(), "ttl %d", seconds)
	}

	c := &Config{}
	c.CacheTTLSeconds = 30
	c.Normalize()
	assert.Equal(t, 30*time.Second, c.LedgerCacheTTL())
}

func TestValidate(t *testing.T) {
	c := &Config{}
	c.Network = NetworkTron
	c.MinAmount = "10"
	c.DefaultMarkup = "0.2"
	require.Error(t, c.Validate())

	c.ReceivingAddress = "TQn9Y2khEsLJW1ChVWFMSMeRDow5KcbLSE"
	require.NoError(t, c.Validate())

	c.MinAmount = "ten"
	assert.Error(t, c.Validate())
}
