package credential

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestLoadCatalog_Default(t *testing.T) {
	c, err := LoadCatalog("")
	if err != nil {
		t.Fatalf("LoadCatalog(\"\") error = %v", err)
	}
	if !reflect.DeepEqual(c, DefaultCatalog()) {
		t.Error("empty path should return the default catalog")
	}
	if err := c.Validate(); err != nil {
		t.Errorf("default catalog invalid: %v", err)
	}
}

func TestLoadCatalog_Override(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	content := "programs: [BSc, BA]\nstatuses:\n  - verified\n  - revoked\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	c, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("LoadCatalog() error = %v", err)
	}
	if !reflect.DeepEqual(c.Programs, []string{"BSc", "BA"}) {
		t.Errorf("Programs = %v", c.Programs)
	}
	if !reflect.DeepEqual(c.Statuses, []string{"verified", "revoked"}) {
		t.Errorf("Statuses = %v", c.Statuses)
	}
	// Untouched sections keep their defaults.
	if !reflect.DeepEqual(c.Genders, DefaultCatalog().Genders) {
		t.Errorf("Genders = %v, want defaults", c.Genders)
	}

	v := NewValidator(c)
	res := v.ValidateRow(withValue(withValue(validRow(2, "X"), ColProgram, "ba"), ColStatus, "REVOKED"))
	if !res.OK() {
		t.Fatalf("row against override catalog: %v", res.Err)
	}
	if res.Record.Program != "BA" || res.Record.Status != "revoked" {
		t.Errorf("Program, Status = %q, %q", res.Record.Program, res.Record.Status)
	}
}

func TestLoadCatalog_Errors(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadCatalog(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("programs: [unterminated"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadCatalog(bad); err == nil {
		t.Error("expected error for malformed YAML")
	}

	blank := filepath.Join(dir, "blank.yaml")
	if err := os.WriteFile(blank, []byte("genders: [\"male\", \" \"]\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := LoadCatalog(blank)
	if err == nil || !strings.Contains(err.Error(), "genders contains a blank value") {
		t.Errorf("LoadCatalog(blank) error = %v", err)
	}
}
