package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeEnvFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadEnvFile(t *testing.T) {
	t.Setenv("WROLPI_ENV_A", "")
	os.Unsetenv("WROLPI_ENV_A")
	t.Setenv("WROLPI_ENV_B", "")
	os.Unsetenv("WROLPI_ENV_B")

	path := writeEnvFile(t, "WROLPI_ENV_A=one\n# a comment\n\nWROLPI_ENV_B='two words'\nBROKEN LINE\n")
	if err := LoadEnvFile(path); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("WROLPI_ENV_A"); got != "one" {
		t.Errorf("WROLPI_ENV_A = %q", got)
	}
	if got := os.Getenv("WROLPI_ENV_B"); got != "two words" {
		t.Errorf("WROLPI_ENV_B = %q", got)
	}
}

func TestLoadEnvFile_environmentWins(t *testing.T) {
	t.Setenv("WROLPI_ENV_SET", "from_env")
	path := writeEnvFile(t, "WROLPI_ENV_SET=from_file\n")
	if err := LoadEnvFile(path); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("WROLPI_ENV_SET"); got != "from_env" {
		t.Errorf("WROLPI_ENV_SET = %q, want the pre-set value", got)
	}
}

func TestLoadEnvFile_missingIsNoop(t *testing.T) {
	if err := LoadEnvFile(filepath.Join(t.TempDir(), "absent")); err != nil {
		t.Fatalf("missing file: %v", err)
	}
}
