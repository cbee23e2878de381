package signalling

// NegotiationState is where a PeerProxy stands in the offer/answer exchange.
//
//	offerer:  New → OfferSent → AnswerReceived → ICEExchanging → Connected
//	answerer: New → AnswerSent → ICEExchanging → Connected
//
// Data channel readiness is tracked separately.
type NegotiationState int

const (
	StateNew NegotiationState = iota
	StateOfferSent
	StateAnswerSent
	StateAnswerReceived
	StateICEExchanging
	StateConnected
)

// String returns the state name used in logs.
func (s NegotiationState) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateOfferSent:
		return "OFFER_SENT"
	case StateAnswerSent:
		return "ANSWER_SENT"
	case StateAnswerReceived:
		return "ANSWER_RECEIVED"
	case StateICEExchanging:
		return "ICE_EXCHANGING"
	case StateConnected:
		return "CONNECTED"
	default:
		return "UNKNOWN"
	}
}

type negotiationEvent int

const (
	evOfferSent negotiationEvent = iota
	evAnswerSent
	evAnswerReceived
	evCandidateAdded
	evICEConnected
)

func (e negotiationEvent) String() string {
	switch e {
	case evOfferSent:
		return "offer_sent"
	case evAnswerSent:
		return "answer_sent"
	case evAnswerReceived:
		return "answer_received"
	case evCandidateAdded:
		return "candidate_added"
	case evICEConnected:
		return "ice_connected"
	default:
		return "unknown"
	}
}

// transition is the whole state machine. ok is false when ev is not valid in
// s; callers treat that as a no-op.
func transition(s NegotiationState, ev negotiationEvent) (next NegotiationState, ok bool) {
	switch s {
	case StateNew:
		switch ev {
		case evOfferSent:
			return StateOfferSent, true
		case evAnswerSent:
			return StateAnswerSent, true
		}

	case StateOfferSent:
		switch ev {
		case evAnswerReceived:
			return StateAnswerReceived, true
		}

	case StateAnswerSent, StateAnswerReceived, StateICEExchanging:
		switch ev {
		case evCandidateAdded:
			return StateICEExchanging, true
		case evICEConnected:
			return StateConnected, true
		}

	case StateConnected:
	}
	return s, false
}
