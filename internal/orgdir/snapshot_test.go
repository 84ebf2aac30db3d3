package orgdir

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/TTS1976/alcohol-check-engine/model"
)

func testSnapshot() Snapshot {
	return Snapshot{
		SafetyManagers: []string{"u9"},
		People: []Person{
			{OrgNode: model.OrgNode{ID: "u1", DisplayName: "Taro Yamada", Mail: "taro.yamada@example.co.jp", JobLevel: 3, Department: "Sales"}, ManagerID: "u4"},
			{OrgNode: model.OrgNode{ID: "u2", DisplayName: "Hanako Sato", Mail: "hanako.sato@example.co.jp", JobLevel: 3, Department: "Sales"}, ManagerID: "u4"},
			{OrgNode: model.OrgNode{ID: "u4", DisplayName: "Jiro Tanaka", Mail: "jiro.tanaka@example.co.jp", JobLevel: 4, Department: "Sales"}, ManagerID: "u5"},
			{OrgNode: model.OrgNode{ID: "u5", DisplayName: "Saburo Kato", Mail: "saburo.kato@example.co.jp", JobLevel: 5, Department: "Sales"}},
			{OrgNode: model.OrgNode{ID: "u9", DisplayName: "Shiro Mori", Mail: "shiro.mori@example.co.jp", JobLevel: 4, Department: "Safety"}},
		},
	}
}

func TestMemory_Profile(t *testing.T) {
	dir := NewMemory(testSnapshot())
	ctx := context.Background()

	p, err := dir.Profile(ctx, "u4")
	if err != nil {
		t.Fatalf("Profile() error = %v", err)
	}
	if p.Node.DisplayName != "Jiro Tanaka" {
		t.Errorf("Node = %q, want Jiro Tanaka", p.Node.DisplayName)
	}
	if p.Manager == nil || p.Manager.ID != "u5" {
		t.Errorf("Manager = %v, want u5", p.Manager)
	}
	if len(p.DirectReports) != 2 {
		t.Fatalf("DirectReports = %d entries, want 2", len(p.DirectReports))
	}
	// Peers share the department and exclude the person themselves.
	wantPeers := []string{"u1", "u2", "u5"}
	if len(p.DepartmentPeers) != len(wantPeers) {
		t.Fatalf("DepartmentPeers = %d entries, want %d", len(p.DepartmentPeers), len(wantPeers))
	}
	for i, want := range wantPeers {
		if p.DepartmentPeers[i].ID != want {
			t.Errorf("DepartmentPeers[%d] = %q, want %q", i, p.DepartmentPeers[i].ID, want)
		}
	}
}

func TestMemory_ProfileWithoutManager(t *testing.T) {
	dir := NewMemory(testSnapshot())

	p, err := dir.Profile(context.Background(), "u5")
	if err != nil {
		t.Fatalf("Profile() error = %v", err)
	}
	if p.Manager != nil {
		t.Errorf("Manager = %v, want nil at the top of the hierarchy", p.Manager)
	}
}

func TestMemory_ProfileNotFound(t *testing.T) {
	dir := NewMemory(testSnapshot())

	_, err := dir.Profile(context.Background(), "nobody")
	var envelope *model.ErrorEnvelope
	if !errors.As(err, &envelope) || envelope.Code != model.ErrNotFound {
		t.Fatalf("Profile() error = %v, want NOT_FOUND envelope", err)
	}
}

func TestMemory_SafetyManagers(t *testing.T) {
	dir := NewMemory(testSnapshot())

	managers, err := dir.SafetyManagers(context.Background())
	if err != nil {
		t.Fatalf("SafetyManagers() error = %v", err)
	}
	if len(managers) != 1 || managers[0].ID != "u9" {
		t.Errorf("SafetyManagers() = %v, want [u9]", managers)
	}
}

func TestLoadSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "org.yaml")
	content := `safety_managers:
  - u9
people:
  - id: u1
    display_name: Taro Yamada
    mail: taro.yamada@example.co.jp
    job_level: 3
    department: Sales
    manager: u9
  - id: u9
    display_name: Shiro Mori
    mail: shiro.mori@example.co.jp
    job_level: 4
    department: Safety
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	dir, err := LoadSnapshot(path)
	if err != nil {
		t.Fatalf("LoadSnapshot() error = %v", err)
	}
	if dir.Checksum == "" || dir.SourceFile != path {
		t.Errorf("Checksum = %q, SourceFile = %q, want recorded provenance", dir.Checksum, dir.SourceFile)
	}

	roster, err := dir.Roster(context.Background())
	if err != nil {
		t.Fatalf("Roster() error = %v", err)
	}
	if len(roster) != 2 {
		t.Errorf("Roster() = %d entries, want 2", len(roster))
	}

	p, err := dir.Profile(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Profile() error = %v", err)
	}
	if p.Manager == nil || p.Manager.ID != "u9" {
		t.Errorf("Manager = %v, want u9", p.Manager)
	}
}

func TestLoadSnapshot_missingFile(t *testing.T) {
	if _, err := LoadSnapshot(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("LoadSnapshot() error = nil for a missing file")
	}
}

func TestLoadSnapshot_malformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("people: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSnapshot(path); err == nil {
		t.Error("LoadSnapshot() error = nil for malformed YAML")
	}
}

func TestMemory_HealthCheck(t *testing.T) {
	if err := NewMemory(testSnapshot()).HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v for a populated snapshot", err)
	}
	if err := NewMemory(Snapshot{}).HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() error = nil for an empty snapshot")
	}
}
