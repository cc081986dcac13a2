package agent

// nextPhase is the transition table evaluated once per turn. It is a
// pure function of the current phase, the accumulated ticket fields,
// and the question count.
//
// Note the forced-ticket valve: once questionCount reaches forcedAt the
// conversation is supposed to stop asking and generate, but the check
// sits behind the required-fields gate, so a conversation missing the
// requester's email keeps gathering past the limit. That matches the
// deployed behavior and callers depend on it; see the routing tests.
func nextPhase(phase Phase, fields TicketFields, questionCount, forcedAt int) Phase {
	switch phase {
	case PhaseInitialAssessment:
		return PhaseGatheringDetails
	case PhaseGatheringDetails:
		if !requiredFieldsPresent(fields) {
			return PhaseGatheringDetails
		}
		if questionCount >= 3 || len(fields.Description) > 100 {
			return PhaseGeneratingTicket
		}
		if forcedAt > 0 && questionCount >= forcedAt {
			return PhaseGeneratingTicket
		}
		return PhaseGatheringDetails
	case PhaseGeneratingTicket:
		return PhaseComplete
	case PhaseComplete:
		return PhaseComplete
	default:
		return phase
	}
}
