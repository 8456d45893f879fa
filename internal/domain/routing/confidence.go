package routing

// Outcome is the result of validating a responder's confidence score.
type Outcome string

const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeEscalate Outcome = "escalate"
)

// FullConfidence is assigned to answers finalized by a human reviewer.
const FullConfidence = 100

// Validate decides whether an answer with the given confidence is trustworthy
// enough to act on. Pure function, no I/O. The boundary is inclusive:
// confidence equal to the threshold is accepted.
func Validate(confidence, threshold int) Outcome {
	if confidence >= threshold {
		return OutcomeAccepted
	}
	return OutcomeEscalate
}
