package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSignatureVerifier(t *testing.T) {
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	verifier := NewSignatureVerifier("wh_secret", 5*time.Minute)
	verifier.now = func() time.Time { return now }

	body := []byte(`{"name":"transaction.approved"}`)
	valid := verifier.Sign(body, now.Add(-time.Minute))

	other := NewSignatureVerifier("other_secret", 5*time.Minute)

	tests := []struct {
		name   string
		header string
		body   []byte
		want   error
	}{
		{name: "valid", header: valid, body: body, want: nil},
		{name: "missing", header: "", body: body, want: ErrSignatureMissing},
		{name: "no signature part", header: "t=123", body: body, want: ErrSignatureMalformed},
		{name: "tampered body", header: valid, body: []byte(`{"name":"transaction.declined"}`), want: ErrSignatureMismatch},
		{name: "wrong secret", header: other.Sign(body, now), body: body, want: ErrSignatureMismatch},
		{name: "too old", header: verifier.Sign(body, now.Add(-10*time.Minute)), body: body, want: ErrSignatureExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := verifier.Verify(tt.header, tt.body)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
