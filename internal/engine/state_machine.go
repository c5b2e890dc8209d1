package engine

import (
	"fmt"
	"time"

	"github.com/nurpe/weighbridge-allocations/internal/model"
)

type Event string

const (
	EventCheckIn       Event = "check_in"
	EventBeginWeigh    Event = "begin_weigh"
	EventWeighComplete Event = "weigh_complete"
	EventDispatch      Event = "dispatch"
	EventCancel        Event = "cancel"
)

// ParseEvent maps a wire-format event name to an Event.
func ParseEvent(raw string) (Event, error) {
	switch Event(raw) {
	case EventCheckIn, EventBeginWeigh, EventWeighComplete, EventDispatch, EventCancel:
		return Event(raw), nil
	default:
		return "", fmt.Errorf("%w: unknown event %q", ErrInvalidInput, raw)
	}
}

// TransitionContext describes where and when an event happened. Site, when
// set, must match the allocation's current route site; the state machine
// rejects events reported from the wrong site. A zero At means now.
type TransitionContext struct {
	Site  string
	Actor string
	At    time.Time
}

type stateMachine struct {
	cfg Config
}

// apply mutates the allocation in place on success and appends the journey
// entry. On failure the allocation is untouched. Callers hold the record
// lock.
func (m stateMachine) apply(a *model.Allocation, event Event, ctx TransitionContext) error {
	now := ctx.At
	if now.IsZero() {
		now = time.Now()
	}
	if a.SiteIndex < 0 || a.SiteIndex >= len(m.cfg.Route) {
		return fmt.Errorf("%w: allocation %s references site index %d outside the configured route", ErrInvalidInput, a.ID, a.SiteIndex)
	}
	site := m.cfg.Route[a.SiteIndex]

	if a.Status.Terminal() {
		if event == EventDispatch && a.Status == model.StatusCompleted {
			return illegal(a.Status, event, "vehicle has already departed")
		}
		return illegal(a.Status, event, fmt.Sprintf("allocation is %s and no further events apply", a.Status))
	}

	switch event {
	case EventCancel:
		a.Status = model.StatusCancelled

	case EventCheckIn:
		if a.Status != model.StatusScheduled && !(a.Status == model.StatusInTransit && a.Phase == model.PhaseInTransit) {
			return illegal(a.Status, event, "check-in is only valid while scheduled or in transit")
		}
		if ctx.Site != "" && ctx.Site != site {
			return illegal(a.Status, event, fmt.Sprintf("vehicle is expected at %s, not %s", site, ctx.Site))
		}
		a.Status = model.StatusArrived
		a.Phase = model.PhaseArrived
		visit := ensureVisit(a, site)
		if visit.ArrivedAt == nil {
			at := now
			visit.ArrivedAt = &at
		}

	case EventBeginWeigh:
		if a.Status != model.StatusArrived {
			return illegal(a.Status, event, "weighing can only begin after arrival")
		}
		a.Status = model.StatusWeighing

	case EventWeighComplete:
		if a.Status != model.StatusWeighing {
			return illegal(a.Status, event, "no weigh in progress")
		}
		if a.MeasurementAt(site) == nil {
			return fmt.Errorf("%w: %s", ErrMissingMeasurement, site)
		}
		a.Status = model.StatusReadyForDispatch

	case EventDispatch:
		// Driver readiness is checked first so the operator sees the
		// verification hold, not a generic state complaint.
		if reason, ok := dispatchHold(a.DriverStatus); !ok {
			return illegal(a.Status, event, reason)
		}
		if a.Status != model.StatusReadyForDispatch {
			return illegal(a.Status, event, "weighing must complete before dispatch")
		}
		visit := ensureVisit(a, site)
		at := now
		visit.DepartedAt = &at
		if a.SiteIndex == len(m.cfg.Route)-1 {
			a.Status = model.StatusCompleted
		} else {
			a.SiteIndex++
			a.Phase = model.PhaseInTransit
			a.Status = model.StatusInTransit
		}

	default:
		return illegal(a.Status, event, "unknown event")
	}

	a.Journey = append(a.Journey, model.JourneyEntry{
		Site:   site,
		Status: a.Status,
		At:     now,
	})
	return nil
}

// dispatchHold translates the external driver-verification state into an
// operator-facing reason when the gate must hold the vehicle. The reasons
// are distinct on purpose: "pending permit" and "pending verification" get
// resolved by different desks.
func dispatchHold(ds model.DriverStatus) (string, bool) {
	switch ds {
	case model.DriverReadyForDispatch:
		return "", true
	case model.DriverPendingPermit:
		return "driver is pending permit issuance", false
	case model.DriverVerified:
		return "driver is verified but not yet cleared for dispatch", false
	default:
		return "driver is pending verification", false
	}
}

func ensureVisit(a *model.Allocation, site string) *model.SiteVisit {
	if v := a.VisitAt(site); v != nil {
		return v
	}
	a.Visits = append(a.Visits, model.SiteVisit{Site: site})
	return &a.Visits[len(a.Visits)-1]
}
