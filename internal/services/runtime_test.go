package services

import (
	"errors"
	"testing"

	"github.com/huangang/erpsettings/pkg/logger"
)

func TestLoadTimezone(t *testing.T) {
	for _, name := range []string{"UTC", "Europe/Berlin", "America/New_York"} {
		if _, err := LoadTimezone(name); err != nil {
			t.Errorf("LoadTimezone(%q): %v", name, err)
		}
	}
	for _, name := range []string{"", "Local", "Mars/Olympus", "not a zone"} {
		_, err := LoadTimezone(name)
		var ce *ConfigurationError
		if !errors.As(err, &ce) || ce.Field != "default_timezone" {
			t.Errorf("LoadTimezone(%q) = %v, expected ConfigurationError", name, err)
		}
	}
}

func TestAppRuntime_SetTimezone(t *testing.T) {
	defer logger.SetLocation(logger.Location())
	r := NewAppRuntime()
	if r.Location().String() != "UTC" {
		t.Fatalf("default location = %s", r.Location())
	}

	if err := r.SetTimezone("Asia/Kolkata"); err != nil {
		t.Fatalf("SetTimezone: %v", err)
	}
	if r.Now().Location().String() != "Asia/Kolkata" {
		t.Errorf("Now() location = %s", r.Now().Location())
	}

	if err := r.SetTimezone("Nowhere"); err == nil {
		t.Error("expected an error")
	}
	if r.Location().String() != "Asia/Kolkata" {
		t.Error("a failed switch must keep the previous zone")
	}
}

func TestCurrencySymbol(t *testing.T) {
	tests := []struct {
		code string
		want string
		ok   bool
	}{
		{"USD", "$", true},
		{"eur", "€", true},
		{" NGN ", "₦", true},
		{"XYZ", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := CurrencySymbol(tt.code)
		if got != tt.want || ok != tt.ok {
			t.Errorf("CurrencySymbol(%q) = %q, %v; expected %q, %v", tt.code, got, ok, tt.want, tt.ok)
		}
	}
}
