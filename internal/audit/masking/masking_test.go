package masking

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSuffix(t *testing.T) {
	require.Equal(t, "pi_****WXYZ", Suffix("pi_3NabcdWXYZ"))
	require.Equal(t, "mock_txn_****7654", Suffix("mock_txn_987654"))
	require.Equal(t, "****", Suffix("abc"))
	require.Equal(t, "", Suffix("  "))
}

func TestEmail(t *testing.T) {
	require.Equal(t, "s****@example.com", Email("someone@example.com"))
	require.Equal(t, redacted, Email("not-an-email"))
	require.Equal(t, redacted, Email("@example.com"))
}

func TestMetadataAppliesRulesByKey(t *testing.T) {
	in := map[string]any{
		"event_id":              "123",
		"transaction_id":        "mock_txn_987654",
		"stripe_webhook_secret": "whsec_abc",
		" ":                     "dropped",
		"nested": map[string]any{
			"email": "someone@example.com",
			"seats": 2,
		},
		"contact_email": []any{"a@b.io", "c@d.io"},
	}

	out := Metadata(in)

	require.Equal(t, "123", out["event_id"])
	require.Equal(t, "mock_txn_****7654", out["transaction_id"])
	require.Equal(t, redacted, out["stripe_webhook_secret"])
	require.NotContains(t, out, " ")
	require.Equal(t, map[string]any{"email": "s****@example.com", "seats": 2}, out["nested"])
	require.Equal(t, []any{"a****@b.io", "c****@d.io"}, out["contact_email"])

	// input untouched
	require.Equal(t, "whsec_abc", in["stripe_webhook_secret"])
}

func TestMetadataNil(t *testing.T) {
	require.Nil(t, Metadata(nil))
}
