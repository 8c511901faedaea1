package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderQR_NonTerminal(t *testing.T) {
	var buf bytes.Buffer

	err := RenderQR(&buf, "0x742d35Cc6634C0532925a3b844Bc9e7595f8b2E0")

	require.NoError(t, err)
	assert.Empty(t, buf.String(), "no output should be produced for non-terminal")
}

func TestRenderQR_NilWriter(t *testing.T) {
	require.NoError(t, RenderQR(nil, "data"))
}
