// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package submission

// Jobs returns count of registered reveal jobs.
func (s *RevealScheduler) Jobs() int {
	return s.scheduler.Len()
}
