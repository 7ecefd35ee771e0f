package mailer

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailgunMailer(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	t.Run("Posts Form To Domain Endpoint", func(t *testing.T) {
		var gotPath, gotTo, gotFrom, gotUser string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			gotUser, _, _ = r.BasicAuth()
			_ = r.ParseForm()
			gotTo = r.PostForm.Get("to")
			gotFrom = r.PostForm.Get("from")
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"<123@mg>","message":"Queued"}`))
		}))
		defer srv.Close()

		m := NewMailgunMailer(srv.URL, "key-123", "mg.example", "AnonHost <no-reply@example>", logger)
		err := m.Send(context.Background(), Message{To: "a@b.c", Subject: "hi", Text: "body"})
		require.NoError(t, err)

		assert.Equal(t, "/v3/mg.example/messages", gotPath)
		assert.Equal(t, "api", gotUser)
		assert.Equal(t, "a@b.c", gotTo)
		assert.Equal(t, "AnonHost <no-reply@example>", gotFrom)
	})

	t.Run("Provider Error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte("Forbidden"))
		}))
		defer srv.Close()

		m := NewMailgunMailer(srv.URL, "bad", "mg.example", "x@y", logger)
		err := m.Send(context.Background(), Message{To: "a@b.c"})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "401")
	})
}

func TestLogMailer(t *testing.T) {
	m := NewLogMailer(slog.Default())
	assert.NoError(t, m.Send(context.Background(), Message{To: "a@b.c"}))
}

func TestVerificationEmail(t *testing.T) {
	msg, err := VerificationEmail("123456", "a@b.c", "login")
	require.NoError(t, err)
	assert.Equal(t, "a@b.c", msg.To)
	assert.Contains(t, msg.Text, "123456")
	assert.Contains(t, msg.HTML, "123456")

	msg, err = VerificationEmail("654321", "new@b.c", "email-change")
	require.NoError(t, err)
	assert.Contains(t, msg.Subject, "Confirm your new email")
}

func TestWelcomeEmail(t *testing.T) {
	msg, err := WelcomeEmail("new@example.com", "")
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", msg.To)
	assert.Contains(t, msg.Text, "Hi there!")
	assert.Contains(t, msg.HTML, "Welcome to AnonHost!")

	msg, err = WelcomeEmail("new@example.com", "<b>ann</b>")
	require.NoError(t, err)
	assert.Contains(t, msg.HTML, "&lt;b&gt;ann&lt;/b&gt;")
}

func TestPlainEmail(t *testing.T) {
	msg := PlainEmail("a@b.c", "Maintenance", "Line one\n<script>x</script>")
	assert.Equal(t, "Line one\n<script>x</script>", msg.Text)
	assert.Equal(t, "Line one<br>&lt;script&gt;x&lt;/script&gt;", msg.HTML)
}
