package utils

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRealClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.9:5123"
	if got := RealClientIP(req); got != "10.0.0.9" {
		t.Fatalf("expected socket address, got %q", got)
	}

	req.Header.Set("X-Real-IP", "198.51.100.4")
	if got := RealClientIP(req); got != "198.51.100.4" {
		t.Fatalf("expected X-Real-IP, got %q", got)
	}

	req.Header.Set("X-Forwarded-For", " 203.0.113.7 , 10.0.0.1")
	if got := RealClientIP(req); got != "203.0.113.7" {
		t.Fatalf("expected first forwarded hop, got %q", got)
	}
}

func TestTokensAreDistinctAndTyped(t *testing.T) {
	a, b := NewSessionToken(), NewSessionToken()
	if a == b || len(a) != 64 {
		t.Fatalf("unexpected session tokens %q %q", a, b)
	}
	if !strings.HasPrefix(NewRefreshToken(), "rt_") {
		t.Fatal("refresh tokens carry the rt_ prefix")
	}
	if id := NewTempID(); !IsTempID(id) {
		t.Fatalf("%q should be a temp id", id)
	}
	if IsTempID("0b6f0c1e-1111-4a4a-9999-000000000000") {
		t.Fatal("server ids are not temp ids")
	}
}
