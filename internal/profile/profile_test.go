package profile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleYAML = `
id: anna
name: Anna
skills: [Python, SQL, python, " Tableau "]
target-roles: [Data Analyst]
locations: [Copenhagen]
remote: true
job-types: [fulltime]
experience: 3-5 years
work-history:
  - job-title: Junior Analyst
    company: Acme
    years: 2
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	return path
}

func TestLoadNormalisesProfile(t *testing.T) {
	p, err := Load(writeFile(t, "profile.yaml", sampleYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	want := []string{"python", "sql", "tableau"}
	if strings.Join(p.Skills, ",") != strings.Join(want, ",") {
		t.Fatalf("expected skills %v, got %v", want, p.Skills)
	}
	if len(p.TargetRoles) != 1 || p.TargetRoles[0] != "data analyst" {
		t.Fatalf("unexpected roles %v", p.TargetRoles)
	}
	if !p.Remote {
		t.Fatalf("expected remote flag")
	}
	if len(p.WorkHistory) != 1 || p.WorkHistory[0].Years != 2 {
		t.Fatalf("unexpected work history %+v", p.WorkHistory)
	}
}

func TestLoadRejectsProfileWithoutID(t *testing.T) {
	_, err := Load(writeFile(t, "profile.yaml", "skills: [go]\n"))
	if err == nil {
		t.Fatal("expected validation error")
	}
}

func TestValidateRequiresSkillsOrRoles(t *testing.T) {
	t.Parallel()

	p := &Profile{ID: "x"}
	if err := p.Validate(); err == nil {
		t.Fatal("expected error for empty profile")
	}

	p.TargetRoles = []string{"engineer"}
	if err := p.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFingerprintStableUnderNormalisation(t *testing.T) {
	t.Parallel()

	a := &Profile{ID: "x", Skills: []string{"Go", "SQL"}, TargetRoles: []string{"Backend Engineer"}}
	b := &Profile{ID: "x", Skills: []string{"go", "sql", "GO"}, TargetRoles: []string{"backend  engineer"}}
	a.Normalize()
	b.Normalize()

	if a.Fingerprint() != b.Fingerprint() {
		t.Fatal("expected equal fingerprints")
	}

	b.Remote = true
	if a.Fingerprint() == b.Fingerprint() {
		t.Fatal("expected remote flag to change the fingerprint")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	t.Parallel()

	p := &Profile{ID: "x", Skills: []string{"go"}}
	c := p.Clone()
	c.Skills[0] = "rust"

	if p.Skills[0] != "go" {
		t.Fatalf("clone shares skills slice")
	}
}
