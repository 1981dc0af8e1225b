package main

import (
	"testing"
)

func TestDoctorOffline(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"doctor", "--offline"}, env.configPath)
	if err != nil {
		t.Fatalf("doctor: %v\n%s", err, out)
	}
	requireContains(t, out, "Output directory:")
	requireContains(t, out, "Artifact database:")
	requireContains(t, out, "[OK]")
}

func TestDoctorReportsServiceChecks(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"doctor"}, env.configPath)
	if err != nil {
		t.Fatalf("doctor: %v\n%s", err, out)
	}
	requireContains(t, out, "LLM API:")
	requireContains(t, out, "Speech API:")
}
