package domain

import (
	"fmt"
	"math"
	"time"
)

// WIPWarningThreshold is the utilization at which manual assignment requires
// an explicit override.
const WIPWarningThreshold = 0.9

// Worker models a staff member that can own work items.
type Worker struct {
	ID        string
	Name      string
	Email     string
	Role      Role
	TeamID    *string
	WIPLimit  int
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// WorkerLoad is the derived load of a worker at assignment time.
type WorkerLoad struct {
	WorkerID    string
	WIPLimit    int
	ActiveCount int
	Utilization float64
}

// NewWorkerLoad validates inputs and computes utilization.
func NewWorkerLoad(workerID string, wipLimit, activeCount int) (WorkerLoad, error) {
	if wipLimit < 0 {
		return WorkerLoad{}, fmt.Errorf("worker %s: negative wip limit %d", workerID, wipLimit)
	}
	if activeCount < 0 {
		activeCount = 0
	}
	return WorkerLoad{
		WorkerID:    workerID,
		WIPLimit:    wipLimit,
		ActiveCount: activeCount,
		Utilization: Utilization(activeCount, wipLimit),
	}, nil
}

// Utilization returns active/limit. A zero limit means the worker can never
// take work and yields +Inf.
func Utilization(activeCount, wipLimit int) float64 {
	if wipLimit <= 0 {
		return math.Inf(1)
	}
	if activeCount < 0 {
		activeCount = 0
	}
	return float64(activeCount) / float64(wipLimit)
}

// Assignable reports whether the worker can receive automatic assignments.
func (l WorkerLoad) Assignable() bool {
	return !math.IsInf(l.Utilization, 1)
}

// OverWarning reports whether manual assignment needs an override.
func (l WorkerLoad) OverWarning() bool {
	return l.Utilization >= WIPWarningThreshold
}
