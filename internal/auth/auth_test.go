package auth

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/danmuck/peersync/internal/testutil/testlog"
)

func TestStaticTokenValidate(t *testing.T) {
	testlog.Start(t)
	tests := []struct {
		name    string
		stored  string
		input   string
		wantErr error
	}{
		{name: "empty token denied", stored: "", input: "abc", wantErr: ErrUnauthorized},
		{name: "mismatched token denied", stored: "abc", input: "xyz", wantErr: ErrUnauthorized},
		{name: "matching token accepted", stored: "abc", input: "abc", wantErr: nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := (StaticToken{Token: tc.stored}).Validate(tc.input)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected err %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestCheckReadsBearerAndHeader(t *testing.T) {
	testlog.Start(t)
	v := StaticToken{Token: "s3cret"}

	req := httptest.NewRequest("POST", "/actions/host", nil)
	if err := Check(v, req); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("missing token should be unauthorized, got %v", err)
	}

	req.Header.Set("Authorization", "Bearer s3cret")
	if err := Check(v, req); err != nil {
		t.Fatalf("bearer token: %v", err)
	}

	req = httptest.NewRequest("POST", "/actions/host", nil)
	req.Header.Set(HeaderToken, "s3cret")
	if err := Check(v, req); err != nil {
		t.Fatalf("header token: %v", err)
	}

	req.Header.Set("Authorization", "Basic s3cret")
	if got := FromRequest(req); got != "s3cret" {
		t.Fatalf("non-bearer authorization should fall back to header, got %q", got)
	}
}
