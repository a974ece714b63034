package workpool

import (
	log "github.com/sirupsen/logrus"
)

// supervisor is the single goroutine that owns Signals. It multiplexes
// three events: the kill switch, worker replies, and handing the queue head
// to an idle worker. No other goroutine writes to Signals.
type supervisor struct {
	signals  *Signals
	work     chan<- Item
	replies  <-chan Result
	kill     *killSwitch
	finalize FinalizeFunc
}

func (s *supervisor) run() {
	killed := false
	for {
		if killed {
			// Externally killed: stop dispatching but keep draining
			// replies until every in-flight item has landed.
			if s.signals.inFlightCount() == 0 {
				return
			}
			s.drainReply(<-s.replies)
			continue
		}

		if s.signals.quiescent() {
			s.kill.Close()
			return
		}

		// Only arm the dispatch case when there is work to hand out. An
		// unbuffered work channel means the send completes only when a
		// worker is actually idle, which bounds in-flight at workerCount.
		var work chan<- Item
		var head Item
		if it, ok := s.signals.peekPending(); ok {
			work = s.work
			head = it
		}

		select {
		case <-s.kill.Done():
			killed = true
			s.signals.cancelPending()
		case res := <-s.replies:
			if !s.handleReply(res) {
				return
			}
		case work <- head:
			s.signals.dispatched()
		}
	}
}

// handleReply books the reply and applies the finalize policy. It returns
// false when finalize reports an unrecoverable condition, in which case the
// pool is killed without draining in-flight work.
func (s *supervisor) handleReply(res Result) bool {
	s.signals.landedReply()
	followUps, ok := s.finalize(res, s.signals)
	if !ok {
		log.WithField("job", res.Item.Job).Error("unrecoverable condition reported by finalize, winding down pool")
		s.signals.cancelPending()
		s.kill.Close()
		return false
	}
	if res.Status == StatusError && len(followUps) == 0 {
		log.WithError(res.Err).WithField("job", res.Item.Job).Warn("work item failed terminally")
		s.signals.appendFailed(res.Item)
	}
	s.signals.appendPending(followUps)
	return true
}

// drainReply books a reply received after an external kill. Finalize is not
// consulted: no new work may be dispatched, so follow-ups would only be
// silently dropped. Terminal bookkeeping still applies.
func (s *supervisor) drainReply(res Result) {
	s.signals.landedReply()
	if res.Status != StatusSuccess {
		s.signals.appendFailed(res.Item)
	}
}
