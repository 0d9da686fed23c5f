package utils

import (
	"testing"
	"time"
)

const testSecret = "test-secret-key-for-testing"

func init() {
	SetJWTSecret(testSecret)
}

func TestToken_RoundTrip(t *testing.T) {
	tests := []struct {
		id       uint
		username string
		role     string
	}{
		{1, "admin", "admin"},
		{7, "hr-lead", "hr_manager"},
		{42, "warehouse", "wms_manager"},
	}
	for _, tt := range tests {
		t.Run(tt.username, func(t *testing.T) {
			token, err := GenerateToken(tt.id, tt.username, tt.role, 1)
			if err != nil {
				t.Fatalf("GenerateToken: %v", err)
			}
			claims, err := ParseToken(token)
			if err != nil {
				t.Fatalf("ParseToken: %v", err)
			}
			if claims.UserID != tt.id || claims.Username != tt.username || claims.Role != tt.role {
				t.Errorf("claims = %+v", claims)
			}
			if claims.Issuer != "erpsettings" {
				t.Errorf("Issuer = %q", claims.Issuer)
			}
			if d := time.Until(claims.ExpiresAt.Time) - time.Hour; d < -time.Minute || d > time.Minute {
				t.Errorf("expiry off by %v", d)
			}
		})
	}
}

func TestParseToken_Rejects(t *testing.T) {
	expired, _ := GenerateToken(1, "user", "manager", -1)

	SetJWTSecret("other-secret")
	foreign, _ := GenerateToken(1, "user", "admin", 1)
	SetJWTSecret(testSecret)

	for name, token := range map[string]string{
		"empty":        "",
		"garbage":      "not.a.token",
		"bad segments": "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.invalid.signature",
		"expired":      expired,
		"other secret": foreign,
	} {
		if _, err := ParseToken(token); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
}
