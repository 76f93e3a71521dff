package recognition

import "github.com/your-org/attendance/internal/config"

type Tier string

const (
	TierHigh       Tier = "High"
	TierMedium     Tier = "Medium"
	TierAcceptable Tier = "Acceptable"
	TierReject     Tier = "Reject"
)

// Policy turns a raw distance into an accept decision. Thresholds are
// exclusive upper bounds and must be ascending.
type Policy struct {
	HighBelow       float64
	MediumBelow     float64
	AcceptableBelow float64
}

func DefaultPolicy() Policy {
	return Policy{HighBelow: 40, MediumBelow: 70, AcceptableBelow: 100}
}

func NewPolicy(cfg config.RecognitionConfig) Policy {
	return Policy{
		HighBelow:       cfg.HighBelow,
		MediumBelow:     cfg.MediumBelow,
		AcceptableBelow: cfg.AcceptableBelow,
	}
}

// Decision carries the tier and a display confidence of 100 − distance,
// clamped to [0, 100]. Confidence is a UX hint, not a probability.
type Decision struct {
	Accepted   bool
	Confidence float64
	Tier       Tier
}

func (p Policy) Evaluate(distance float64) Decision {
	conf := 100 - distance
	if conf < 0 {
		conf = 0
	}
	if conf > 100 {
		conf = 100
	}

	d := Decision{Accepted: true, Confidence: conf}
	switch {
	case distance < p.HighBelow:
		d.Tier = TierHigh
	case distance < p.MediumBelow:
		d.Tier = TierMedium
	case distance < p.AcceptableBelow:
		d.Tier = TierAcceptable
	default:
		d.Tier = TierReject
		d.Accepted = false
	}
	return d
}
