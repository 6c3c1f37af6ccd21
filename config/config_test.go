package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultMatchesDocumentDefaults(t *testing.T) {
	c := Default()
	if c.SignatureHexCapacity != 11742 {
		t.Errorf("Default().SignatureHexCapacity = %d, want 11742", c.SignatureHexCapacity)
	}
	if c.ByteRangeCapacity != 68 {
		t.Errorf("Default().ByteRangeCapacity = %d, want 68", c.ByteRangeCapacity)
	}
	if c.Producer == "" {
		t.Error("Default().Producer is empty")
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.conf"))
	if err == nil {
		t.Fatal("Load() on a missing file returned nil error")
	}
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pdfseal.conf")
	content := `producer = "Acme Signer"
byte_range_capacity = 80
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.Producer != "Acme Signer" {
		t.Errorf("Producer = %q, want %q", c.Producer, "Acme Signer")
	}
	if c.ByteRangeCapacity != 80 {
		t.Errorf("ByteRangeCapacity = %d, want 80 (overridden)", c.ByteRangeCapacity)
	}
	if c.SignatureHexCapacity != 11742 {
		t.Errorf("SignatureHexCapacity = %d, want 11742 (left at default, not overridden)", c.SignatureHexCapacity)
	}
}

func TestDocumentConfigConversion(t *testing.T) {
	c := Default()
	dc := c.DocumentConfig()
	if dc.SignatureHexCapacity != c.SignatureHexCapacity {
		t.Errorf("DocumentConfig().SignatureHexCapacity = %d, want %d", dc.SignatureHexCapacity, c.SignatureHexCapacity)
	}
	if dc.Producer != c.Producer {
		t.Errorf("DocumentConfig().Producer = %q, want %q", dc.Producer, c.Producer)
	}
}
