package model

import "testing"

func TestFingerprintIgnoresCaseAndSpacing(t *testing.T) {
	t.Parallel()

	a := Fingerprint("Data Analyst", "Acme ApS", "Copenhagen")
	b := Fingerprint("  data   analyst ", "ACME APS", "copenhagen ")
	if a != b {
		t.Fatalf("expected equal fingerprints, got %s and %s", a, b)
	}

	if c := Fingerprint("Data Analyst", "Acme ApS", "Aarhus"); c == a {
		t.Fatalf("expected location to change the fingerprint")
	}
}

func TestEnsureFingerprintKeepsExisting(t *testing.T) {
	t.Parallel()

	p := &Posting{Title: "Go Developer", Company: "Acme", Location: "Berlin"}
	fp := p.EnsureFingerprint()
	if fp != Fingerprint("Go Developer", "Acme", "Berlin") {
		t.Fatalf("unexpected fingerprint %s", fp)
	}

	p.Fingerprint = "fixed"
	if got := p.EnsureFingerprint(); got != "fixed" {
		t.Fatalf("expected existing fingerprint to be kept, got %s", got)
	}
}

func TestNormalizeList(t *testing.T) {
	t.Parallel()

	got := NormalizeList([]string{" Python", "SQL", "python ", "", "Machine   Learning"})
	want := []string{"python", "sql", "machine learning"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}
