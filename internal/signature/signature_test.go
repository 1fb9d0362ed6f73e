package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test_key_secret"

func reference(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestComputeMatchesReferenceHMAC(t *testing.T) {
	sig, err := Compute(testSecret, "order_1", "pay_1")
	require.NoError(t, err)

	assert.Equal(t, reference(testSecret, "order_1|pay_1"), sig)
	assert.Len(t, sig, 64)
	assert.Equal(t, strings.ToLower(sig), sig)
}

func TestComputeIsDeterministic(t *testing.T) {
	first, err := Compute(testSecret, "order_1", "pay_1")
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		again, err := Compute(testSecret, "order_1", "pay_1")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestComputeRequiresSecret(t *testing.T) {
	_, err := Compute("", "order_1", "pay_1")
	assert.ErrorIs(t, err, ErrMissingSecret)

	ok, err := Verify("", "order_1", "pay_1", "anything")
	assert.ErrorIs(t, err, ErrMissingSecret)
	assert.False(t, ok)
}

func TestVerify(t *testing.T) {
	valid, err := Compute(testSecret, "order_1", "pay_1")
	require.NoError(t, err)

	ok, err := Verify(testSecret, "order_1", "pay_1", valid)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Verify("other_secret", "order_1", "pay_1", valid)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyRejectsEverySingleCharacterMutation(t *testing.T) {
	valid, err := Compute(testSecret, "order_1", "pay_1")
	require.NoError(t, err)

	for i := range valid {
		mutated := []byte(valid)
		if mutated[i] == '0' {
			mutated[i] = '1'
		} else {
			mutated[i] = '0'
		}

		ok, err := Verify(testSecret, "order_1", "pay_1", string(mutated))
		require.NoError(t, err)
		assert.False(t, ok, "mutation at index %d accepted", i)
	}
}

func TestVerifyIsCaseSensitive(t *testing.T) {
	valid, err := Compute(testSecret, "order_abc", "pay_xyz")
	require.NoError(t, err)

	ok, err := Verify(testSecret, "order_abc", "pay_xyz", strings.ToUpper(valid))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyRejectsSwappedPayload(t *testing.T) {
	valid, err := Compute(testSecret, "order_1", "pay_1")
	require.NoError(t, err)

	ok, err := Verify(testSecret, "pay_1", "order_1", valid)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NotEqual(t, reference(testSecret, "pay_1|order_1"), valid)
}

func TestVerifyRejectsTruncatedAndPaddedSignatures(t *testing.T) {
	valid, err := Compute(testSecret, "order_1", "pay_1")
	require.NoError(t, err)

	for _, sig := range []string{valid[:63], valid + "0", "", "deadbeef"} {
		ok, err := Verify(testSecret, "order_1", "pay_1", sig)
		require.NoError(t, err)
		assert.False(t, ok, sig)
	}
}

func TestVerifyBody(t *testing.T) {
	body := []byte(`{"event":"payment.captured"}`)
	valid := reference(testSecret, string(body))

	assert.True(t, VerifyBody(testSecret, body, valid))
	assert.False(t, VerifyBody(testSecret, body, strings.ToUpper(valid)))
	assert.False(t, VerifyBody(testSecret, body, valid[:63]))
	assert.False(t, VerifyBody(testSecret, []byte(`{"event":"order.paid"}`), valid))
	assert.False(t, VerifyBody("", body, reference("", string(body))))
}
