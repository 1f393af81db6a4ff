package domain

// StatusEvent names an action that may advance a ticket's status.
type StatusEvent string

const (
	EventAssign         StatusEvent = "assign"
	EventStartProgress  StatusEvent = "start_progress"
	EventWaitCustomer   StatusEvent = "wait_customer"
	EventWaitThirdParty StatusEvent = "wait_third_party"
	EventResolve        StatusEvent = "resolve"
	EventClose          StatusEvent = "close"
)

var transitions = map[TicketStatus]map[StatusEvent]TicketStatus{
	TicketStatusNew: {
		EventAssign:        TicketStatusAssigned,
		EventStartProgress: TicketStatusInProgress,
		EventResolve:       TicketStatusResolved,
		EventClose:         TicketStatusClosed,
	},
	TicketStatusAssigned: {
		EventStartProgress: TicketStatusInProgress,
		EventResolve:       TicketStatusResolved,
		EventClose:         TicketStatusClosed,
	},
	TicketStatusInProgress: {
		EventWaitCustomer:   TicketStatusWaitingCustomer,
		EventWaitThirdParty: TicketStatusWaitingThirdParty,
		EventResolve:        TicketStatusResolved,
		EventClose:          TicketStatusClosed,
	},
	TicketStatusWaitingCustomer: {
		EventStartProgress: TicketStatusInProgress,
		EventResolve:       TicketStatusResolved,
		EventClose:         TicketStatusClosed,
	},
	TicketStatusWaitingThirdParty: {
		EventStartProgress: TicketStatusInProgress,
		EventResolve:       TicketStatusResolved,
		EventClose:         TicketStatusClosed,
	},
	TicketStatusResolved: {
		EventClose: TicketStatusClosed,
	},
	TicketStatusClosed: {},
}

// NextStatus returns the status an event leads to from the current one.
// The second return value is false when the transition is not allowed;
// callers must reject such requests rather than coerce them.
func NextStatus(current TicketStatus, event StatusEvent) (TicketStatus, bool) {
	next, ok := transitions[current][event]
	return next, ok
}

// CanTransition reports whether event is valid from the current status.
func CanTransition(current TicketStatus, event StatusEvent) bool {
	_, ok := NextStatus(current, event)
	return ok
}
