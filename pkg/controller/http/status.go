package http

import (
	"net/http"
	"sync"

	"github.com/m-mizutani/lookout/pkg/domain/model"
)

// ReportRecorder keeps the most recent cycle report for the status endpoint.
type ReportRecorder struct {
	mu   sync.RWMutex
	last *model.CycleReport
}

func NewReportRecorder() *ReportRecorder {
	return &ReportRecorder{}
}

// Record replaces the stored report with the latest one.
func (x *ReportRecorder) Record(r *model.CycleReport) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.last = r
}

// Last returns the most recently recorded report, or nil before the
// first cycle completes.
func (x *ReportRecorder) Last() *model.CycleReport {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.last
}

func handleStatus(reports *ReportRecorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		last := reports.Last()
		if last == nil {
			writeJSON(w, r, http.StatusOK, map[string]any{
				"status": "waiting",
			})
			return
		}
		writeJSON(w, r, http.StatusOK, last)
	}
}
