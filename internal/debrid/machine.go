package debrid

import (
	"fmt"

	apperrors "github.com/amaumene/rdstream/internal/errors"
)

// step is where a resolution stands. The driver performs the effect of the
// step and reports back an event.
type step int

const (
	stepLookup step = iota
	stepSubmit
	stepSelectFiles
	stepPoll
	stepFinalize
	stepDone
)

func (s step) String() string {
	return [...]string{"lookup", "submit", "select_files", "poll", "finalize", "done"}[s]
}

// event is what the driver observed after performing a step.
type event struct {
	found    bool // lookup only: the provider already tracks the hash
	status   Status
	label    string
	links    int
	progress float64
}

// limits are the per-call knobs the transition depends on.
type limits struct {
	polls               int // polls performed so far
	maxPolls            int
	selections          int // file selections performed so far
	returnOnDownloading bool
}

// decision tells the driver what to do next.
type decision struct {
	next step
	wait bool // sleep one poll interval first
	err  *apperrors.StreamError
}

// transition is the resolver state machine. It has no side effects.
func transition(cur step, ev event, lim limits) decision {
	switch cur {
	case stepLookup:
		if !ev.found {
			return decision{next: stepSubmit}
		}
		if ev.status == StatusDownloaded && ev.links > 0 {
			return decision{next: stepFinalize}
		}
		return decision{next: stepPoll}

	case stepSubmit:
		return decision{next: stepPoll}

	case stepSelectFiles:
		// Poll right away after the first selection; a provider that keeps
		// asking for files gets the regular interval.
		return decision{next: stepPoll, wait: lim.selections > 1}

	case stepPoll:
		return afterPoll(ev, lim)

	case stepFinalize:
		return decision{next: stepDone}
	}
	return decision{next: stepDone}
}

func afterPoll(ev event, lim limits) decision {
	switch ev.status.Bucket() {
	case BucketSuccess:
		if ev.links > 0 {
			return decision{next: stepFinalize}
		}
		// Downloaded without links yet; keep polling.
	case BucketFailure:
		return decision{next: stepDone, err: apperrors.NewProviderTerminalError(
			fmt.Sprintf("provider reported status %q", ev.label), nil)}
	}

	if ev.status == StatusDownloading && lim.returnOnDownloading {
		return decision{next: stepDone, err: apperrors.NewInProgressError(
			fmt.Sprintf("downloading on provider (%.0f%%)", ev.progress))}
	}

	if lim.polls >= lim.maxPolls {
		return decision{next: stepDone, err: apperrors.NewTimeoutError(
			fmt.Sprintf("job still %s after %d polls", ev.status, lim.polls))}
	}

	if ev.status == StatusAwaitingFileSelection {
		return decision{next: stepSelectFiles}
	}
	return decision{next: stepPoll, wait: true}
}
