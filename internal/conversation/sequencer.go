package conversation

import (
	"context"
	"errors"
	"sync"
	"time"

	apperrors "ai-video-cutter/pkg/errors"
)

// ErrTurnPending reports that an earlier chat turn of the same video has not
// finished yet.
var ErrTurnPending = errors.New("earlier chat turn still pending")

// Sequencer hands out per-video tickets at submission time and lets the
// holder of the lowest outstanding ticket run. Turns of one video therefore
// apply in submission order while different videos proceed in parallel.
// Tickets of a video keep increasing for the life of the sequencer, so a
// stale ticket never matches one handed out later.
type Sequencer struct {
	mu    sync.Mutex
	lanes map[string]*lane
}

type lane struct {
	next    uint64
	serving uint64
	// released holds tickets finished out of turn, e.g. after their wait
	// was canceled. They are skipped once serving reaches them.
	released map[uint64]struct{}
	// changed is closed and replaced every time serving advances.
	changed chan struct{}
}

func NewSequencer() *Sequencer {
	return &Sequencer{lanes: make(map[string]*lane)}
}

func (s *Sequencer) laneFor(videoID string) *lane {
	l, ok := s.lanes[videoID]
	if !ok {
		l = &lane{
			released: make(map[uint64]struct{}),
			changed:  make(chan struct{}),
		}
		s.lanes[videoID] = l
	}
	return l
}

// Ticket reserves the next position for videoID.
func (s *Sequencer) Ticket(videoID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.laneFor(videoID)
	t := l.next
	l.next++
	return t
}

// Ready reports whether ticket may run now.
func (s *Sequencer) Ready(videoID string, ticket uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lanes[videoID]
	return ok && l.serving == ticket
}

// Wait blocks until ticket may run or ctx ends. A canceled wait does not
// release the ticket; the caller must still call Done.
func (s *Sequencer) Wait(ctx context.Context, videoID string, ticket uint64) error {
	return s.WaitWithin(ctx, videoID, ticket, 0)
}

// WaitWithin is Wait that also gives up with a Timeout error when no earlier
// turn finishes for stall. Zero stall waits as long as ctx allows.
func (s *Sequencer) WaitWithin(ctx context.Context, videoID string, ticket uint64, stall time.Duration) error {
	for {
		s.mu.Lock()
		l, ok := s.lanes[videoID]
		if ok && l.serving == ticket {
			s.mu.Unlock()
			return nil
		}
		if !ok || l.serving > ticket {
			s.mu.Unlock()
			return apperrors.New(apperrors.CodeInvalidTransition, "chat turn ticket already served")
		}
		changed := l.changed
		s.mu.Unlock()

		var stalled <-chan time.Time
		var timer *time.Timer
		if stall > 0 {
			timer = time.NewTimer(stall)
			stalled = timer.C
		}
		select {
		case <-ctx.Done():
			stopTimer(timer)
			return apperrors.FromContext(ctx, "waiting for earlier chat turns")
		case <-stalled:
			return apperrors.New(apperrors.CodeTimeout, "earlier chat turn made no progress")
		case <-changed:
			stopTimer(timer)
		}
	}
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}

// Done releases ticket. Releasing the serving ticket lets the next one run;
// releasing a later ticket marks it to be skipped. Releasing twice is a no-op.
func (s *Sequencer) Done(videoID string, ticket uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lanes[videoID]
	if !ok || ticket < l.serving || ticket >= l.next {
		return
	}
	if ticket > l.serving {
		l.released[ticket] = struct{}{}
		return
	}

	l.serving++
	for {
		if _, ok := l.released[l.serving]; !ok {
			break
		}
		delete(l.released, l.serving)
		l.serving++
	}
	close(l.changed)
	l.changed = make(chan struct{})
}

// Pending returns how many tickets of videoID are not yet released.
func (s *Sequencer) Pending(videoID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lanes[videoID]
	if !ok {
		return 0
	}
	return int(l.next-l.serving) - len(l.released)
}
