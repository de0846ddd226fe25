package channel

import (
	"log/slog"
	"net/http"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestVerifyHMAC_Valid(t *testing.T) {
	body := []byte(`{"content":"hello"}`)
	if !verifyHMAC(body, "test-secret", Sign(body, "test-secret")) {
		t.Error("valid HMAC should verify")
	}
}

func TestVerifyHMAC_Invalid(t *testing.T) {
	if verifyHMAC([]byte("body"), "secret", "sha256=invalid") {
		t.Error("invalid HMAC should not verify")
	}
}

func TestVerifyHMAC_Empty(t *testing.T) {
	if verifyHMAC([]byte("body"), "secret", "") {
		t.Error("empty signature should not verify")
	}
}

func TestAuthenticator_HMAC(t *testing.T) {
	a, err := NewAuthenticator(AuthConfig{Mode: AuthHMAC, Secret: "s3cret"})
	require.NoError(t, err)
	body := []byte(`{"event":"message_created"}`)

	h := http.Header{}
	assert.False(t, a.Verify(h, body), "missing header")

	h.Set(DefaultSignatureHeader, Sign(body, "other"))
	assert.False(t, a.Verify(h, body), "wrong secret")

	h.Set(DefaultSignatureHeader, Sign(body, "s3cret"))
	assert.True(t, a.Verify(h, body))
	assert.False(t, a.Verify(h, append(body, ' ')), "body changed")
}

func TestAuthenticator_Token(t *testing.T) {
	a, err := NewAuthenticator(AuthConfig{Mode: AuthToken, Secret: "tok", TokenHeader: "X-Desk-Token"})
	require.NoError(t, err)

	h := http.Header{}
	h.Set(DefaultTokenHeader, "tok")
	assert.False(t, a.Verify(h, nil), "default header ignored when a custom one is set")

	h.Set("X-Desk-Token", "tokx")
	assert.False(t, a.Verify(h, nil))
	h.Set("X-Desk-Token", "tok")
	assert.True(t, a.Verify(h, nil))
}

func TestAuthenticator_None(t *testing.T) {
	a, err := NewAuthenticator(AuthConfig{Mode: AuthNone})
	require.NoError(t, err)
	assert.True(t, a.Verify(http.Header{}, []byte("anything")))
}

func TestNewAuthenticator_Errors(t *testing.T) {
	_, err := NewAuthenticator(AuthConfig{Mode: AuthHMAC})
	assert.Error(t, err)
	_, err = NewAuthenticator(AuthConfig{Mode: "ip"})
	assert.Error(t, err)
}

func TestSplitMessage_Short(t *testing.T) {
	chunks := splitMessage("short message", 100)
	if len(chunks) != 1 {
		t.Errorf("expected 1 chunk, got %d", len(chunks))
	}
}

func TestSplitMessage_Long(t *testing.T) {
	long := strings.Repeat("word ", 100)
	chunks := splitMessage(long, 50)
	if len(chunks) < 2 {
		t.Errorf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > 50 {
			t.Errorf("chunk %d too long: %d", i, len(c))
		}
	}
	assert.Equal(t, long, strings.Join(chunks, ""))
}

func TestSplitMessage_PrefersNewlines(t *testing.T) {
	text := strings.Repeat("a", 30) + "\n" + strings.Repeat("b", 30)
	chunks := splitMessage(text, 40)
	require.Len(t, chunks, 2)
	assert.Equal(t, strings.Repeat("a", 30)+"\n", chunks[0])
	assert.Equal(t, strings.Repeat("b", 30), chunks[1])
}

func TestSplitMessage_KeepsRunesWhole(t *testing.T) {
	text := strings.Repeat("é", 30) // 60 bytes
	for _, c := range splitMessage(text, 25) {
		assert.True(t, len(c) <= 25)
		assert.Equal(t, strings.Count(c, "é")*2, len(c))
	}
}

func TestSplitMessage_Empty(t *testing.T) {
	chunks := splitMessage("", 100)
	if len(chunks) != 1 {
		t.Errorf("expected 1 chunk for empty, got %d", len(chunks))
	}
}

func TestFlexID(t *testing.T) {
	var p struct {
		A FlexID `json:"a"`
		B FlexID `json:"b"`
		C FlexID `json:"c"`
		D FlexID `json:"d"`
	}
	require.NoError(t, jsonUnmarshal(`{"a":42,"b":"43","c":null,"d":4.0}`, &p))
	assert.Equal(t, FlexID("42"), p.A)
	assert.Equal(t, FlexID("43"), p.B)
	assert.Equal(t, FlexID(""), p.C)
	assert.Equal(t, FlexID("4"), p.D)
}
