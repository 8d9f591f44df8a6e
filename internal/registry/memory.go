package registry

import (
	"sort"
	"sync"

	"hospitalops/queue-service/internal/models"
)

// Memory is a static department registry seeded at construction. It serves
// tests and single-process deployments without a database.
type Memory struct {
	mu          sync.RWMutex
	departments map[string]models.Department
}

func NewMemory(departments []models.Department) *Memory {
	byID := make(map[string]models.Department, len(departments))
	for _, dept := range departments {
		byID[dept.DepartmentID] = dept
	}
	return &Memory{departments: byID}
}

func (m *Memory) Department(departmentID string) (models.Department, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	dept, ok := m.departments[departmentID]
	return dept, ok
}

func (m *Memory) ListDepartments() []models.Department {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]models.Department, 0, len(m.departments))
	for _, dept := range m.departments {
		result = append(result, dept)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].DepartmentID < result[j].DepartmentID })
	return result
}

func (m *Memory) Put(dept models.Department) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.departments[dept.DepartmentID] = dept
}
