package orgdir

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/TTS1976/alcohol-check-engine/model"
)

// Person is one snapshot entry: an OrgNode plus its manager edge.
type Person struct {
	model.OrgNode `yaml:",inline"`
	ManagerID     string `yaml:"manager"`
}

// Snapshot is the YAML schema of an org-directory export.
type Snapshot struct {
	SafetyManagers []string `yaml:"safety_managers"`
	People         []Person `yaml:"people"`
}

// Memory is an in-memory Provider over a Snapshot. It indexes manager and
// report edges once at construction; all reads afterwards are lock-free
// because the snapshot is never mutated.
type Memory struct {
	roster    []model.OrgNode
	byID      map[string]model.OrgNode
	managerOf map[string]string
	reportsOf map[string][]model.OrgNode
	safety    []model.OrgNode

	// Checksum and SourceFile identify the loaded snapshot in logs and
	// readiness output. Empty for programmatically built providers.
	Checksum   string
	SourceFile string
}

// NewMemory builds a Provider from an in-memory snapshot.
func NewMemory(snap Snapshot) *Memory {
	m := &Memory{
		byID:      make(map[string]model.OrgNode, len(snap.People)),
		managerOf: make(map[string]string, len(snap.People)),
		reportsOf: make(map[string][]model.OrgNode),
	}
	for _, p := range snap.People {
		m.roster = append(m.roster, p.OrgNode)
		m.byID[p.ID] = p.OrgNode
		if p.ManagerID != "" {
			m.managerOf[p.ID] = p.ManagerID
		}
	}
	for _, p := range snap.People {
		if p.ManagerID != "" {
			m.reportsOf[p.ManagerID] = append(m.reportsOf[p.ManagerID], p.OrgNode)
		}
	}
	for _, id := range snap.SafetyManagers {
		if node, ok := m.byID[id]; ok {
			m.safety = append(m.safety, node)
		}
	}
	return m
}

// LoadSnapshot reads a YAML snapshot file and builds a Provider from it. The
// SHA-256 checksum of the raw file is recorded for readiness reporting.
func LoadSnapshot(path string) (*Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var snap Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	m := NewMemory(snap)
	m.Checksum = fmt.Sprintf("%x", sha256.Sum256(data))
	m.SourceFile = path
	return m, nil
}

// Roster returns every person in the snapshot.
func (m *Memory) Roster(_ context.Context) ([]model.OrgNode, error) {
	out := make([]model.OrgNode, len(m.roster))
	copy(out, m.roster)
	return out, nil
}

// SafetyManagers returns the designated safety managers.
func (m *Memory) SafetyManagers(_ context.Context) ([]model.OrgNode, error) {
	out := make([]model.OrgNode, len(m.safety))
	copy(out, m.safety)
	return out, nil
}

// Profile resolves one person by directory id.
func (m *Memory) Profile(_ context.Context, id string) (Profile, error) {
	node, ok := m.byID[id]
	if !ok {
		return Profile{}, model.NewNotFoundError(fmt.Sprintf("org node %q not found", id))
	}

	p := Profile{Node: node}
	if managerID, ok := m.managerOf[id]; ok {
		if manager, ok := m.byID[managerID]; ok {
			p.Manager = &manager
		}
	}
	p.DirectReports = append(p.DirectReports, m.reportsOf[id]...)
	for _, other := range m.roster {
		if other.ID != id && other.Department != "" && other.Department == node.Department {
			p.DepartmentPeers = append(p.DepartmentPeers, other)
		}
	}
	sort.Slice(p.DepartmentPeers, func(i, j int) bool { return p.DepartmentPeers[i].ID < p.DepartmentPeers[j].ID })
	return p, nil
}

// HealthCheck reports whether the snapshot is usable: an empty roster means
// no approval set can ever be resolved.
func (m *Memory) HealthCheck(_ context.Context) error {
	if len(m.roster) == 0 {
		return fmt.Errorf("org snapshot is empty")
	}
	return nil
}
