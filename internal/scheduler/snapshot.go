package scheduler

func (s *Service) countSkip() {
	s.smu.Lock()
	s.totals.Skipped++
	s.smu.Unlock()
}

func (s *Service) record(rep *Report, err error) {
	s.smu.Lock()
	defer s.smu.Unlock()
	s.totals.Ticks++
	if rep != nil {
		cp := *rep
		cp.Errors = nil
		s.last = &cp
		s.totals.Fired += uint64(rep.Fired)
		s.totals.Failed += uint64(rep.Failed)
		s.totals.PublishFailed += uint64(rep.PublishFailed)
	}
	if err != nil {
		s.totals.Errors++
		s.lastErr = err.Error()
	} else {
		s.lastErr = ""
	}
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		Enabled:  s.cfg.Enabled,
		Running:  s.c != nil,
		Timezone: s.loc.String(),
		Tick:     s.tick.CronSpec(),
	}
	if s.c != nil && s.entryID != 0 {
		e := s.c.Entry(s.entryID)
		snap.Next, snap.Prev = e.Next, e.Prev
	}
	s.mu.Unlock()

	s.smu.Lock()
	if s.last != nil {
		cp := *s.last
		snap.Last = &cp
	}
	snap.LastError = s.lastErr
	snap.Totals = s.totals
	s.smu.Unlock()
	return snap
}
