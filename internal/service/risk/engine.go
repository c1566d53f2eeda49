package risk

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// ErrInvalidInput is returned when the engine is called with values outside
// its domain. Callers are expected to validate before calling.
var ErrInvalidInput = errors.New("invalid risk input")

const (
	// MaxRiskPct is the absolute ceiling on the final risk percentage.
	MaxRiskPct = 2.9

	// SplitThresholdPct is the risk above which the position is split.
	SplitThresholdPct = 0.8

	maxDrawdownPct  = 10.0
	profitReinvest  = 0.4
	winPayoutFactor = 0.82
	lossCostFactor  = 1.05
	recoveryEpsilon = 0.00001

	FixRuleWide   = "Step 0.5 RR (1.0→1.5→2.0)"
	FixRuleNarrow = "Step 0.25 RR (1.0→1.25→1.5)"
)

type Engine struct {
	catalog Catalog
}

func NewEngine(catalog Catalog) *Engine {
	return &Engine{catalog: catalog}
}

func (e *Engine) Catalog() Catalog {
	return e.catalog
}

// Calculate runs the full multi-factor formula. It holds no state and is safe
// for concurrent use.
func (e *Engine) Calculate(in Input) (Result, error) {
	if err := validate(in); err != nil {
		return Result{}, err
	}
	growth := orDefault(in.GrowthCoefficient)
	efficiency := orDefault(in.Efficiency)
	volatility := float64(in.Volatility)

	setup, _ := e.catalog.Lookup(in.SetupID)

	f := balancePct(in.Balance, in.InitialDeposit)
	g := baseRisk(f, in.Phase)
	k := setup.WinRate
	l := drawdown(in.Balance, in.InitialDeposit)
	m := k / (1 + l)
	j := rewardRisk(f, in.Volatility)
	y := bufferFactor(f)
	z := cycleFactor(f, in.CycleDay)
	r := adaptationFactor(f, l, maxDrawdownPct)

	base := g * m * growth * in.Confidence * r * efficiency * y * z * volatility
	bonus := 0.0
	if in.PreviousProfit > 0 {
		bonus = in.PreviousProfit * profitReinvest / in.Balance * 100
	}
	raw := base + bonus
	if math.IsNaN(raw) {
		return Result{}, fmt.Errorf("%w: risk is undefined for these factors", ErrInvalidInput)
	}
	riskPct := math.Min(MaxRiskPct, raw)
	riskUSD := percentOf(in.InitialDeposit, riskPct)

	entryCount := 1
	if riskPct > SplitThresholdPct {
		entryCount = 2
	}

	fixRule := FixRuleNarrow
	if f < 94 {
		fixRule = FixRuleWide
	}

	return Result{
		Input:            in,
		Setup:            setup,
		BalancePct:       f,
		BaseRisk:         g,
		WinRate:          k,
		Drawdown:         l,
		AdjustedWinRate:  m,
		RewardRisk:       j,
		BufferFactor:     y,
		CycleFactor:      z,
		AdaptationFactor: r,
		Growth:           growth,
		Efficiency:       efficiency,
		ProfitBonus:      bonus,
		RiskPct:          riskPct,
		RiskUSD:          riskUSD,
		EntryCount:       entryCount,
		Entries:          distribute(riskUSD, entryCount),
		FixRule:          fixRule,
		Recovery:         recoveryEstimate(f, k, riskPct, j),
		RecoveryMode:     f < 100,
	}, nil
}

func validate(in Input) error {
	switch {
	case in.Balance <= 0 || !finite(in.Balance):
		return fmt.Errorf("%w: balance must be positive, got %v", ErrInvalidInput, in.Balance)
	case in.InitialDeposit <= 0 || !finite(in.InitialDeposit):
		return fmt.Errorf("%w: initial deposit must be positive, got %v", ErrInvalidInput, in.InitialDeposit)
	case in.CycleDay < 1:
		return fmt.Errorf("%w: cycle day must be at least 1, got %d", ErrInvalidInput, in.CycleDay)
	case in.PreviousProfit < 0 || !finite(in.PreviousProfit):
		return fmt.Errorf("%w: previous profit must be a non-negative number, got %v", ErrInvalidInput, in.PreviousProfit)
	case in.Confidence <= 0 || !finite(in.Confidence):
		return fmt.Errorf("%w: confidence must be positive, got %v", ErrInvalidInput, in.Confidence)
	case in.Volatility <= 0 || !finite(float64(in.Volatility)):
		return fmt.Errorf("%w: volatility must be positive, got %v", ErrInvalidInput, in.Volatility)
	case in.GrowthCoefficient < 0 || !finite(in.GrowthCoefficient):
		return fmt.Errorf("%w: growth coefficient must be a non-negative number, got %v", ErrInvalidInput, in.GrowthCoefficient)
	case in.Efficiency < 0 || !finite(in.Efficiency):
		return fmt.Errorf("%w: efficiency must be a non-negative number, got %v", ErrInvalidInput, in.Efficiency)
	}
	switch in.Phase {
	case PhaseChallenge, PhaseVerification, PhaseFunded:
	default:
		return fmt.Errorf("%w: unknown phase %q", ErrInvalidInput, in.Phase)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func orDefault(v float64) float64 {
	if v == 0 {
		return 1.0
	}
	return v
}

// balancePct multiplies before dividing so whole-number percentages land
// exactly on band edges. Near the float64 limit the product overflows, so
// the ratio is taken first there.
func balancePct(balance, initial float64) float64 {
	if f := balance * 100 / initial; finite(f) {
		return f
	}
	return balance / initial * 100
}

// percentOf returns pct percent of amount without overflowing for huge amounts.
func percentOf(amount, pct float64) float64 {
	if v := amount * pct / 100; finite(v) {
		return v
	}
	return amount / 100 * pct
}

func baseRisk(f float64, phase Phase) float64 {
	var base float64
	switch {
	case f < 93:
		base = 1.25
	case f < 95:
		base = 1.50
	case f < 97:
		base = 1.75
	case f < 100:
		base = 2.00
	case f < 102:
		base = 2.20
	case f < 105:
		base = 2.00
	case f < 107:
		base = 1.75
	default:
		base = 1.50
	}
	return base + phaseBonus(phase)
}

func phaseBonus(phase Phase) float64 {
	switch phase {
	case PhaseChallenge:
		return 2.0
	case PhaseVerification:
		return 1.0
	default:
		return 0.0
	}
}

func drawdown(balance, initial float64) float64 {
	if balance > initial {
		return 0
	}
	return (1 - balance/initial) * 10
}

func rewardRisk(f float64, v Volatility) float64 {
	var base float64
	switch {
	case f < 93:
		base = 3.00
	case f < 95:
		base = 2.50
	case f < 97:
		base = 2.20
	case f < 100:
		base = 1.50
	case f < 102:
		base = 1.75
	case f < 105:
		base = 2.00
	case f < 107:
		base = 1.50
	default:
		base = 1.25
	}
	return base * v.rrMultiplier()
}

func bufferFactor(f float64) float64 {
	switch {
	case f < 97:
		return 1.2
	case f <= 100.5:
		return 0.6
	default:
		return 1.0
	}
}

// cycleFactor throttles risk late in a trading cycle once targets are met.
func cycleFactor(f float64, day int) float64 {
	if f < 93 {
		return 1.0
	}
	switch {
	case day <= 5:
		if f > 102 {
			return 1.2
		}
		return 1.0
	case day <= 10:
		if f < 100 {
			return 1.1
		}
		return 0.5
	case day <= 13:
		switch {
		case f < 97:
			return 1.2
		case f < 100:
			return 1.5
		case f > 102:
			return 0.1
		default:
			return 0.5
		}
	default:
		if f < 100 {
			return 1.0
		}
		return 0.0
	}
}

// adaptationFactor shrinks risk as drawdown approaches maxDD percent. Far below
// par the square root makes the reduction steeper.
func adaptationFactor(f, l, maxDD float64) float64 {
	ratio := 1.0
	if maxDD > 0 {
		ratio = 1 - (l*10)/maxDD
	}
	if f > 96 {
		return math.Max(0, ratio)
	}
	return math.Max(0, math.Sqrt(math.Max(0, ratio)))
}

func distribute(riskUSD float64, entryCount int) []Entry {
	total := decimal.NewFromFloat(riskUSD)
	if entryCount == 1 {
		return []Entry{{Label: "Single entry", Amount: total.Round(2)}}
	}
	part := total.DivRound(decimal.NewFromInt(3), 2)
	return []Entry{
		{Label: "Entry #1", Amount: part},
		{Label: "Entry #2", Amount: part},
		{Label: "Reserve", Amount: part, Unused: true},
	}
}

func recoveryEstimate(f, winRate, riskPct, rr float64) Recovery {
	if f >= 100 {
		return Recovery{Status: RecoveryDone}
	}
	out := Recovery{Status: RecoveryNotComputable, Deep: f < 98}

	frac := riskPct / 100
	win := winRate * math.Log(1+frac*rr*winPayoutFactor)
	loss := (1 - winRate) * math.Log(math.Max(recoveryEpsilon, 1-frac*lossCostFactor))
	denom := win + loss
	if math.IsNaN(denom) || math.IsInf(denom, 0) || denom <= 0 || f <= 0 {
		return out
	}
	trades := math.Ceil(math.Log(100/f)/denom*10) / 10
	if math.IsNaN(trades) || math.IsInf(trades, 0) {
		return out
	}
	out.Status = RecoveryEstimated
	out.Trades = trades
	return out
}
