package main

import (
	"testing"

	"kasirledger/internal/config"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "short", ManagerPIN: "123456"})
	if err == nil {
		t.Fatalf("expected weak security config to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", ManagerPIN: "739154"})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestValidatePINStrength(t *testing.T) {
	weak := []string{"123456", "987654", "444444", "112233"}
	for _, pin := range weak {
		if err := validatePINStrength(pin); err == nil {
			t.Fatalf("expected %s to be rejected", pin)
		}
	}
	if err := validatePINStrength("739154"); err != nil {
		t.Fatalf("expected 739154 to pass, got %v", err)
	}
}

func TestBuildLogger(t *testing.T) {
	logger, err := buildLogger("debug", "console")
	if err != nil {
		t.Fatalf("build console logger: %v", err)
	}
	if !logger.Core().Enabled(-1) {
		t.Fatalf("expected debug level enabled")
	}

	if _, err := buildLogger("loud", "json"); err == nil {
		t.Fatalf("expected unknown level to be rejected")
	}
}
