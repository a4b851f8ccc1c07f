package mail

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerificationEmail(t *testing.T) {
	msg, err := VerificationEmail("alice@x.com", "alice", "https://app.test/verify-email?token=abc")
	require.NoError(t, err)

	assert.Equal(t, "alice@x.com", msg.To)
	assert.Equal(t, "Verify your email address", msg.Subject)
	assert.Contains(t, msg.HTML, "Hello alice,")
	assert.Contains(t, msg.HTML, `href="https://app.test/verify-email?token=abc"`)
}

func TestPasswordResetEmail_EscapesInput(t *testing.T) {
	msg, err := PasswordResetEmail("bob@x.com", "<script>bob</script>", "https://app.test/reset-password?token=t")
	require.NoError(t, err)

	assert.Equal(t, "Reset your password", msg.Subject)
	assert.NotContains(t, msg.HTML, "<script>")
	assert.Contains(t, msg.HTML, "&lt;script&gt;bob&lt;/script&gt;")
	assert.Contains(t, msg.HTML, "one hour")
}

func TestLogSender(t *testing.T) {
	s := NewLogSender()
	require.NoError(t, s.Send(context.Background(), Message{To: "a@x.com", Subject: "one"}))
	require.NoError(t, s.Send(context.Background(), Message{To: "b@x.com", Subject: "two"}))

	sent := s.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "two", sent[1].Subject)

	sent[0].Subject = "changed"
	assert.Equal(t, "one", s.Sent()[0].Subject)
}

func TestResendSender(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/emails", r.URL.Path)
		assert.Equal(t, "Bearer re_test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"email_1"}`))
	}))
	defer srv.Close()

	s := NewResendSender("re_test", "Bookmarks <noreply@app.test>")
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	s.client.BaseURL = base

	err = s.Send(context.Background(), Message{To: "alice@x.com", Subject: "Hi", HTML: "<p>hi</p>"})
	require.NoError(t, err)
	assert.Equal(t, "Bookmarks <noreply@app.test>", got["from"])
	assert.Equal(t, []any{"alice@x.com"}, got["to"])
	assert.Equal(t, "<p>hi</p>", got["html"])
}

func TestResendSender_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"statusCode":422,"name":"validation_error","message":"bad from"}`))
	}))
	defer srv.Close()

	s := NewResendSender("re_test", "nope")
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	s.client.BaseURL = base

	assert.Error(t, s.Send(context.Background(), Message{To: "alice@x.com", Subject: "Hi", HTML: "x"}))
}
