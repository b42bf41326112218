package domain

import "fmt"

// Outcome is one bucket of the mutually exclusive price-movement
// classification a market settles into. The numeric values mirror the
// PredictionMarket contract enum and must never be reordered.
type Outcome uint8

const (
	OutcomePump     Outcome = 0 // 10-50% up
	OutcomeDump     Outcome = 1 // 10-50% down
	OutcomeNoChange Outcome = 2 // within ±10%
	OutcomeRug      Outcome = 3 // more than 50% down
	OutcomeMoon     Outcome = 4 // more than 50% up
)

// Outcomes lists every outcome in contract-enum order.
var Outcomes = [5]Outcome{OutcomePump, OutcomeDump, OutcomeNoChange, OutcomeRug, OutcomeMoon}

// NumOutcomes is the size of the outcome enumeration.
const NumOutcomes = len(Outcomes)

var outcomeNames = [NumOutcomes]string{"PUMP", "DUMP", "NO_CHANGE", "RUG", "MOON"}

// String returns the canonical upper-case name of the outcome.
func (o Outcome) String() string {
	if !o.Valid() {
		return fmt.Sprintf("OUTCOME(%d)", uint8(o))
	}
	return outcomeNames[o]
}

// Valid reports whether o is one of the five contract outcomes.
func (o Outcome) Valid() bool {
	return int(o) < NumOutcomes
}

// ParseOutcome converts a canonical outcome name to its enum value.
func ParseOutcome(s string) (Outcome, error) {
	for i, name := range outcomeNames {
		if s == name {
			return Outcome(i), nil
		}
	}
	return 0, fmt.Errorf("domain: unknown outcome %q", s)
}
