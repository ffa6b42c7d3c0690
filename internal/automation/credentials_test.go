package automation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueGeneratesDistinctIdentities(t *testing.T) {
	issuer := NewCredentialIssuer()

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		creds, err := issuer.Issue()
		require.NoError(t, err)

		assert.True(t, strings.HasPrefix(creds.ExternalID, "EXT-"))
		assert.True(t, strings.HasPrefix(creds.Login, "user_"))
		assert.Len(t, creds.Login, len("user_")+loginLength)
		assert.Len(t, creds.Password, passwordLength)

		assert.False(t, seen[creds.Login], "duplicate login %s", creds.Login)
		seen[creds.Login] = true
	}
}

func TestIssuePasswordUsesFullAlphabet(t *testing.T) {
	issuer := NewCredentialIssuer()

	creds, err := issuer.Issue()
	require.NoError(t, err)
	for _, r := range creds.Password {
		assert.Contains(t, passwordAlphabet, string(r))
	}
}
