package ledger

import (
	"crypto/rand"
	"errors"
	"math/big"
)

// Stage names a point inside an atomic unit where a fault can be injected
type Stage string

const (
	StageAfterClaims  Stage = "after_claims"
	StageAfterDebit   Stage = "after_debit"
	StageAfterCredit  Stage = "after_credit"
	StageBeforeCommit Stage = "before_commit"
)

// ErrFaultInjected is returned when a fault injector aborts a unit
var ErrFaultInjected = errors.New("injected storage fault")

// FaultInjector may abort a unit at a stage by returning an error. The unit
// rolls back.
type FaultInjector interface {
	Inject(stage Stage, unit *Unit) error
}

// FaultFunc adapts a function to a FaultInjector
type FaultFunc func(stage Stage, unit *Unit) error

// Inject calls f
func (f FaultFunc) Inject(stage Stage, unit *Unit) error {
	return f(stage, unit)
}

// FailAt aborts every unit when it reaches stage
func FailAt(stage Stage) FaultInjector {
	return FaultFunc(func(s Stage, _ *Unit) error {
		if s == stage {
			return ErrFaultInjected
		}
		return nil
	})
}

type randomFaults struct {
	rate float64
}

// RandomFaults aborts units before commit with probability rate
func RandomFaults(rate float64) FaultInjector {
	return &randomFaults{rate: rate}
}

func (r *randomFaults) Inject(stage Stage, _ *Unit) error {
	if stage != StageBeforeCommit {
		return nil
	}
	if shouldInjectFailure(r.rate) {
		return ErrFaultInjected
	}
	return nil
}

func shouldInjectFailure(failureRate float64) bool {
	if failureRate <= 0 {
		return false
	}
	if failureRate >= 1 {
		return true
	}

	const precision = 1000000
	randomNum, err := rand.Int(rand.Reader, big.NewInt(precision))
	if err != nil {
		return false
	}

	threshold := int64(failureRate * precision)
	return randomNum.Int64() < threshold
}

func inject(f FaultInjector, stage Stage, unit *Unit) error {
	if f == nil {
		return nil
	}
	return f.Inject(stage, unit)
}

// stageAfter returns the stage reached once the posting has applied
func stageAfter(p Posting) Stage {
	if p.Delta() < 0 {
		return StageAfterDebit
	}
	return StageAfterCredit
}
