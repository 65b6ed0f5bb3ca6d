package server

import (
	"context"
	"time"
)

const schedulerInterval = time.Minute

// runScheduler ticks on a fixed cadence, starting scheduled scans when
// they come due and sweeping downloads stuck in their search phase.
// The tick is a trigger only: if the scanner is busy the due scan just
// waits for the next tick.
func (s *Server) runScheduler(ctx context.Context) {
	ticker := time.NewTicker(schedulerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkScheduledScan()
			if s.acquisition != nil {
				s.acquisition.SweepStuck()
			}
		}
	}
}

func (s *Server) checkScheduledScan() {
	schedule, err := s.db.GetOrCreateScanSchedule()
	if err != nil {
		s.logger.WithError(err).Error("Failed to read scan schedule")
		return
	}
	if !schedule.Enabled {
		return
	}

	now := time.Now()
	if schedule.NextScanAt == nil {
		// Fresh schedule; anchor the first run one interval out.
		next := now.Add(time.Duration(schedule.IntervalHours) * time.Hour)
		schedule.NextScanAt = &next
		if err := s.db.UpdateScanSchedule(schedule); err != nil {
			s.logger.WithError(err).Error("Failed to update scan schedule")
		}
		return
	}
	if now.Before(*schedule.NextScanAt) {
		return
	}

	if err := s.scanner.StartScan(false); err != nil {
		// Busy; retry on a later tick without moving the due time.
		return
	}

	schedule.LastScanAt = &now
	next := now.Add(time.Duration(schedule.IntervalHours) * time.Hour)
	schedule.NextScanAt = &next
	if err := s.db.UpdateScanSchedule(schedule); err != nil {
		s.logger.WithError(err).Error("Failed to update scan schedule")
	}
	s.logger.Info("Scheduled library scan started")
}
