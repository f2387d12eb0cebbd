package certstore

import (
	"encoding/base64"
	"testing"
)

func TestInstallFromEnvNoopWhenUnset(t *testing.T) {
	installed, err := InstallFromEnv(func(string) (string, bool) { return "", false })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if installed {
		t.Fatal("expected no-op when CERTIFICATE is unset")
	}
}

func TestInstallFromEnvRejectsInvalidBase64(t *testing.T) {
	_, err := InstallFromEnv(func(string) (string, bool) { return "not-base64!!", true })
	if err == nil {
		t.Fatal("expected an error for invalid base64 payload")
	}
}

func TestInstallFromEnvRejectsNonPEMPayload(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte("not a certificate"))
	_, err := InstallFromEnv(func(string) (string, bool) { return encoded, true })
	if err == nil {
		t.Fatal("expected an error for a payload with no valid PEM certificate")
	}
}
