package config

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("IDENTITY_BASE_URL", "https://auth.example.com")
	t.Setenv("OTP_FIXED_CODE", "123456")

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Fatalf("expected default listen addr, got %q", cfg.ListenAddr)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Fatalf("expected 30s request timeout, got %s", cfg.RequestTimeout)
	}
	if cfg.RealtimeHealthPeriod != 10*time.Second || cfg.RealtimeRenewalPeriod != 60*time.Second {
		t.Fatalf("unexpected realtime periods: %s / %s", cfg.RealtimeHealthPeriod, cfg.RealtimeRenewalPeriod)
	}
	if !cfg.UsesFixedOTP() {
		t.Fatal("expected fixed OTP provider to be selected")
	}
}

func TestValidateRejectsMissingIdentityURL(t *testing.T) {
	cfg := &Config{
		DatabaseDriver:        "sqlite",
		OTPFixedCode:          "123456",
		RequestTimeout:        time.Second,
		RealtimeHealthPeriod:  time.Second,
		RealtimeRenewalPeriod: time.Second,
	}
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "IDENTITY_BASE_URL") {
		t.Fatalf("expected identity URL validation error, got %v", err)
	}
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	cfg := &Config{
		DatabaseDriver:        "oracle",
		IdentityBaseURL:       "https://auth.example.com",
		OTPFixedCode:          "123456",
		RequestTimeout:        time.Second,
		RealtimeHealthPeriod:  time.Second,
		RealtimeRenewalPeriod: time.Second,
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected driver validation error")
	}
}

func TestValidateRequiresSomeOTPProvider(t *testing.T) {
	cfg := &Config{
		DatabaseDriver:        "postgres",
		IdentityBaseURL:       "https://auth.example.com",
		RequestTimeout:        time.Second,
		RealtimeHealthPeriod:  time.Second,
		RealtimeRenewalPeriod: time.Second,
	}
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "OTP_PROVIDER_BASE_URL") {
		t.Fatalf("expected OTP provider validation error, got %v", err)
	}
}
