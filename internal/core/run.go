package core

import (
	"log/slog"
	"net/http"
	"time"
)

// HandleRun triggers one dispatch cycle and returns its report as the
// response body. A cycle that could not start (the due-item queries failed)
// produces a 500 with the standard error envelope; per-item failures are
// reported inside the 200 body instead.
//
// Mounted at POST /run behind SharedSecretAuth.
func (s *Server) HandleRun(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	report, err := s.Dispatcher.RunCycle(r.Context())
	duration := time.Since(start)

	if err != nil {
		s.Logger.ErrorContext(r.Context(), "dispatch cycle failed to start",
			slog.Any("error", err),
			slog.Duration("duration", duration))
		RunError(w, err.Error())
		return
	}

	if s.Metrics != nil {
		s.Metrics.RecordCycle(r.Context(), report, duration)
	}

	JSON(w, http.StatusOK, report)
}
