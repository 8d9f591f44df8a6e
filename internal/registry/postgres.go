package registry

import (
	"context"
	"database/sql"
	"sort"
	"sync"

	"hospitalops/queue-service/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres reads department configuration from the hospital's departments
// table. Lookups answer from an in-memory snapshot so the engine never
// touches the database while holding a queue lock; Refresh reloads the
// snapshot and is meant to run on a background ticker.
type Postgres struct {
	pool *pgxpool.Pool

	mu          sync.RWMutex
	departments map[string]models.Department
}

func NewPostgres(ctx context.Context, pool *pgxpool.Pool) (*Postgres, error) {
	r := &Postgres{
		pool:        pool,
		departments: make(map[string]models.Department),
	}
	if err := r.Refresh(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Postgres) Refresh(ctx context.Context) error {
	rows, err := r.pool.Query(ctx, `
		SELECT department_id, name, group_id, group_name, avg_consultation_minutes, capacity
		FROM departments
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	departments := make(map[string]models.Department)
	for rows.Next() {
		var dept models.Department
		var groupID, groupName sql.NullString
		if err := rows.Scan(&dept.DepartmentID, &dept.Name, &groupID, &groupName, &dept.AvgConsultationMinutes, &dept.Capacity); err != nil {
			return err
		}
		if groupID.Valid {
			dept.GroupID = groupID.String
		}
		if groupName.Valid {
			dept.GroupName = groupName.String
		}
		departments[dept.DepartmentID] = dept
	}
	if err := rows.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	r.departments = departments
	r.mu.Unlock()
	return nil
}

func (r *Postgres) Department(departmentID string) (models.Department, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dept, ok := r.departments[departmentID]
	return dept, ok
}

func (r *Postgres) ListDepartments() []models.Department {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]models.Department, 0, len(r.departments))
	for _, dept := range r.departments {
		result = append(result, dept)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].DepartmentID < result[j].DepartmentID })
	return result
}
