// Package dashboard implements read-only aggregate endpoints over the
// task store for operator visibility.
package dashboard

import (
	"net/http"
	"strconv"
	"time"

	"github.com/vmeassist/opsd/internal/httputil"
	"github.com/vmeassist/opsd/internal/store"
	"github.com/vmeassist/opsd/internal/task"
)

// statsWindow bounds how many recent tasks feed the aggregate counts.
const statsWindow = 500

type Dashboard struct {
	store *store.Store
}

type Stats struct {
	TotalTasks     int       `json:"total_tasks"`
	QueuedTasks    int       `json:"queued_tasks"`
	RunningTasks   int       `json:"running_tasks"`
	SuccessTasks   int       `json:"success_tasks"`
	FailedTasks    int       `json:"failed_tasks"`
	CancelledTasks int       `json:"cancelled_tasks"`
	LastUpdated    time.Time `json:"last_updated"`
}

func NewDashboard(s *store.Store) *Dashboard {
	return &Dashboard{store: s}
}

func (d *Dashboard) GetStats(w http.ResponseWriter, r *http.Request) {
	tasks := d.store.List(r.Context(), statsWindow)

	stats := Stats{
		TotalTasks:  len(tasks),
		LastUpdated: time.Now(),
	}

	for _, t := range tasks {
		switch t.Status {
		case task.StatusQueued:
			stats.QueuedTasks++
		case task.StatusRunning:
			stats.RunningTasks++
		case task.StatusSuccess:
			stats.SuccessTasks++
		case task.StatusFailed:
			stats.FailedTasks++
		case task.StatusCancelled:
			stats.CancelledTasks++
		}
	}

	httputil.WriteJSON(w, http.StatusOK, stats)
}

func (d *Dashboard) GetRecentTasks(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	items := d.store.List(r.Context(), limit)
	if items == nil {
		items = []*task.Task{}
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}
