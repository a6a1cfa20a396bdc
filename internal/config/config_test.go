package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestParseHostsFile(t *testing.T) {
	path := writeTemp(t, "hosts.txt", "1 127.0.0.1 11001\n2 127.0.0.1 11002\n3 127.0.0.1 11003\n")
	table, err := ParseHostsFile(path)
	if err != nil {
		t.Fatalf("ParseHostsFile: %v", err)
	}
	if table.N() != 3 {
		t.Fatalf("N() = %d, want 3", table.N())
	}
	self, ok := table.Self(2)
	if !ok || self.Port != 11002 {
		t.Fatalf("Self(2) = %+v, ok=%v", self, ok)
	}
	peers := table.Peers(2)
	if len(peers) != 2 {
		t.Fatalf("Peers(2) = %v, want 2 entries", peers)
	}
	for _, p := range peers {
		if p.ID == 2 {
			t.Fatalf("Peers(2) included self")
		}
	}
}

func TestParseHostsFileSkipsBlankLines(t *testing.T) {
	path := writeTemp(t, "hosts.txt", "1 127.0.0.1 11001\n\n2 127.0.0.1 11002\n")
	table, err := ParseHostsFile(path)
	if err != nil {
		t.Fatalf("ParseHostsFile: %v", err)
	}
	if table.N() != 2 {
		t.Fatalf("N() = %d, want 2", table.N())
	}
}

func TestParseHostsFileRejectsMalformedLine(t *testing.T) {
	path := writeTemp(t, "hosts.txt", "1 127.0.0.1\n")
	if _, err := ParseHostsFile(path); err == nil {
		t.Fatalf("expected error for malformed line")
	}
}

func TestParseHostsFileRejectsDuplicateID(t *testing.T) {
	path := writeTemp(t, "hosts.txt", "1 127.0.0.1 11001\n1 127.0.0.1 11002\n")
	if _, err := ParseHostsFile(path); err == nil {
		t.Fatalf("expected error for duplicate id")
	}
}

func TestParseConfigFileURBMode(t *testing.T) {
	path := writeTemp(t, "config.txt", "100\n")
	rc, err := ParseConfigFile(path)
	if err != nil {
		t.Fatalf("ParseConfigFile: %v", err)
	}
	if rc.Mode != ModeURB || rc.TotalMessages != 100 {
		t.Fatalf("got %+v, want URB mode with TotalMessages=100", rc)
	}
}

func TestParseConfigFileLAMode(t *testing.T) {
	path := writeTemp(t, "config.txt", "2 3 10\n1 2 3\n4 5\n")
	rc, err := ParseConfigFile(path)
	if err != nil {
		t.Fatalf("ParseConfigFile: %v", err)
	}
	if rc.Mode != ModeLA || rc.Shots != 2 || rc.MaxVS != 3 || rc.MaxDS != 10 {
		t.Fatalf("got %+v", rc)
	}
	if len(rc.Proposals) != 2 {
		t.Fatalf("Proposals = %v, want 2 shots", rc.Proposals)
	}
	if len(rc.Proposals[0]) != 3 || len(rc.Proposals[1]) != 2 {
		t.Fatalf("Proposals = %v, want shot sizes [3 2]", rc.Proposals)
	}
}

func TestParseConfigFileLARejectsOversizedShot(t *testing.T) {
	path := writeTemp(t, "config.txt", "1 2 10\n1 2 3\n")
	if _, err := ParseConfigFile(path); err == nil {
		t.Fatalf("expected error: shot of 3 values exceeds vs=2")
	}
}

func TestParseConfigFileLARejectsTooManyDistinctValues(t *testing.T) {
	path := writeTemp(t, "config.txt", "2 2 2\n1 2\n3 4\n")
	if _, err := ParseConfigFile(path); err == nil {
		t.Fatalf("expected error: 4 distinct values exceeds ds=2")
	}
}

func TestParseConfigFileRejectsUnknownShape(t *testing.T) {
	path := writeTemp(t, "config.txt", "1 2\n")
	if _, err := ParseConfigFile(path); err == nil {
		t.Fatalf("expected error for 2-field header")
	}
}
