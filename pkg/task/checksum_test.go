package task

import (
	"strings"
	"testing"
)

func TestChecksumDeterministic(t *testing.T) {
	a := Checksum("arvo:10400", "agent-1", "salt")
	b := Checksum("arvo:10400", "agent-1", "salt")
	if a != b {
		t.Fatalf("checksum not deterministic: %q vs %q", a, b)
	}
	if len(a) != 64 {
		t.Errorf("checksum length = %d, want 64 hex chars", len(a))
	}
	if a != strings.ToLower(a) {
		t.Errorf("checksum %q not lowercase", a)
	}
}

func TestChecksumInputsMatter(t *testing.T) {
	base := Checksum("arvo:10400", "agent-1", "salt")
	if Checksum("arvo:10401", "agent-1", "salt") == base {
		t.Error("different task produced same checksum")
	}
	if Checksum("arvo:10400", "agent-2", "salt") == base {
		t.Error("different agent produced same checksum")
	}
	if Checksum("arvo:10400", "agent-1", "other") == base {
		t.Error("different salt produced same checksum")
	}
}

func TestVerify(t *testing.T) {
	sum := Checksum("oss-fuzz:7", "agent-9", "salt")

	if !Verify("oss-fuzz:7", "agent-9", sum, "salt") {
		t.Error("valid checksum rejected")
	}
	if !Verify("oss-fuzz:7", "agent-9", strings.ToUpper(sum), "salt") {
		t.Error("uppercase hex rejected")
	}
	if Verify("oss-fuzz:7", "agent-9", sum, "wrong-salt") {
		t.Error("checksum accepted under wrong salt")
	}
	if Verify("oss-fuzz:7", "agent-8", sum, "salt") {
		t.Error("checksum accepted for wrong agent")
	}
	if Verify("oss-fuzz:7", "agent-9", "", "salt") {
		t.Error("empty checksum accepted")
	}
	if Verify("oss-fuzz:7", "agent-9", "not-hex", "salt") {
		t.Error("garbage checksum accepted")
	}
}
