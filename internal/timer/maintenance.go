package timer

import (
	"errors"
	"strings"
	"time"

	logx "alertd/pkg/logx"
)

// AddMaintenance registers (or replaces, by name) a recurring job.
//
// Supported spec formats are those of robfig/cron with optional seconds:
// "*/5 * * * *", "0 */10 * * * *", "@hourly", "@every 30m".
func (s *Service) AddMaintenance(name, spec string, job Job) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("name required")
	}
	if job == nil {
		return errors.New("job required")
	}
	spec = strings.TrimSpace(spec)
	if _, err := s.parser.Parse(spec); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)
	s.defs = append(s.defs, maintenanceDef{name: name, spec: spec, job: job})
	if s.c == nil {
		// registered on Start
		return nil
	}
	d := &s.defs[len(s.defs)-1]
	if err := s.addCronLocked(d); err != nil {
		return err
	}
	s.log.Debug("schedule registered", logx.String("name", name), logx.String("spec", spec), logx.Time("next", s.c.Entry(d.entryID).Next))
	return nil
}

// RemoveMaintenance unregisters a job. It reports whether it existed.
func (s *Service) RemoveMaintenance(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(name)
}

// Schedules lists registered maintenance jobs.
func (s *Service) Schedules() []ScheduleInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ScheduleInfo, 0, len(s.defs))
	for _, d := range s.defs {
		it := ScheduleInfo{Name: d.name, Spec: d.spec}
		if s.c != nil && d.entryID != 0 {
			e := s.c.Entry(d.entryID)
			it.Next = e.Next
			it.Prev = e.Prev
		}
		out = append(out, it)
	}
	return out
}

func (s *Service) removeLocked(name string) bool {
	for i := range s.defs {
		if s.defs[i].name != name {
			continue
		}
		if s.c != nil && s.defs[i].entryID != 0 {
			s.c.Remove(s.defs[i].entryID)
		}
		s.defs = append(s.defs[:i], s.defs[i+1:]...)
		return true
	}
	return false
}

func (s *Service) addCronLocked(d *maintenanceDef) error {
	name, job := d.name, d.job
	ctx := s.baseCtx
	eid, err := s.c.AddFunc(d.spec, func() {
		start := time.Now()
		if err := job(ctx); err != nil {
			s.log.Warn("maintenance failed", logx.String("name", name), logx.Err(err), logx.Duration("took", time.Since(start)))
			return
		}
		s.log.Debug("maintenance done", logx.String("name", name), logx.Duration("took", time.Since(start)))
	})
	if err != nil {
		return err
	}
	d.entryID = eid
	return nil
}
