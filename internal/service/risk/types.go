package risk

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

type Phase string

const (
	PhaseChallenge    Phase = "challenge"
	PhaseVerification Phase = "verification"
	PhaseFunded       Phase = "funded"
)

// ParsePhase accepts the canonical names and the short 1ph/2ph aliases.
func ParsePhase(raw string) (Phase, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "challenge", "1ph", "1":
		return PhaseChallenge, nil
	case "verification", "2ph", "2":
		return PhaseVerification, nil
	case "funded", "3":
		return PhaseFunded, nil
	default:
		return "", fmt.Errorf("unknown phase %q", raw)
	}
}

func (p Phase) Label() string {
	switch p {
	case PhaseChallenge:
		return "Challenge (1ph)"
	case PhaseVerification:
		return "Verification (2ph)"
	case PhaseFunded:
		return "Funded"
	default:
		return string(p)
	}
}

// Volatility is the market regime multiplier applied to risk.
type Volatility float64

const (
	VolatilityShock   Volatility = 0.5
	VolatilityFlat    Volatility = 0.7
	VolatilityNormal  Volatility = 1.0
	VolatilityImpulse Volatility = 1.2
)

var volatilityNames = map[string]Volatility{
	"shock":   VolatilityShock,
	"flat":    VolatilityFlat,
	"normal":  VolatilityNormal,
	"impulse": VolatilityImpulse,
}

// ParseVolatility accepts a regime name or its multiplier value.
func ParseVolatility(raw string) (Volatility, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if v, ok := volatilityNames[key]; ok {
		return v, nil
	}
	if f, err := strconv.ParseFloat(key, 64); err == nil {
		for _, v := range volatilityNames {
			if math.Abs(f-float64(v)) < 1e-9 {
				return v, nil
			}
		}
	}
	return 0, fmt.Errorf("unknown volatility regime %q", raw)
}

func (v Volatility) String() string {
	return strconv.FormatFloat(float64(v), 'f', -1, 64)
}

func (v Volatility) Label() string {
	switch v {
	case VolatilityShock:
		return "Shock (extreme volatility)"
	case VolatilityFlat:
		return "Flat (low activity)"
	case VolatilityNormal:
		return "Normal"
	case VolatilityImpulse:
		return "Impulse (high activity)"
	default:
		return ""
	}
}

// rrMultiplier scales the reward-to-risk target. Values outside the known
// regimes fall back to 1.0.
func (v Volatility) rrMultiplier() float64 {
	switch v {
	case VolatilityShock:
		return 0.6
	case VolatilityFlat:
		return 0.8
	case VolatilityImpulse:
		return 1.2
	default:
		return 1.0
	}
}

// Confidence values offered to the trader. The engine itself accepts any
// positive multiplier.
var ConfidenceLevels = []float64{0.5, 0.7, 1.0, 1.5}

type Input struct {
	Balance        float64    `json:"balance"`
	InitialDeposit float64    `json:"initial_deposit"`
	Phase          Phase      `json:"phase"`
	SetupID        int        `json:"setup_id"`
	Volatility     Volatility `json:"volatility"`
	Confidence     float64    `json:"confidence"`
	CycleDay       int        `json:"cycle_day"`
	PreviousProfit float64    `json:"previous_profit,omitempty"`
	// Zero means 1.0.
	GrowthCoefficient float64 `json:"growth_coefficient,omitempty"`
	// Smoothed win/loss efficiency maintained outside the engine. Zero means 1.0.
	Efficiency float64 `json:"efficiency,omitempty"`
}

type RecoveryStatus string

const (
	RecoveryDone          RecoveryStatus = "recovered"
	RecoveryEstimated     RecoveryStatus = "estimated"
	RecoveryNotComputable RecoveryStatus = "not_computable"
)

type Recovery struct {
	Status RecoveryStatus `json:"status"`
	Trades float64        `json:"trades,omitempty"`
	// Deep is set below 98% of the initial deposit.
	Deep bool `json:"deep,omitempty"`
}

func (r Recovery) String() string {
	prefix := ""
	if r.Deep {
		prefix = "RECOVERY: "
	}
	switch r.Status {
	case RecoveryDone:
		return "DONE"
	case RecoveryEstimated:
		return fmt.Sprintf("%s%.1f", prefix, r.Trades)
	default:
		return prefix + "N/A"
	}
}

type Entry struct {
	Label  string          `json:"label"`
	Amount decimal.Decimal `json:"amount"`
	Unused bool            `json:"unused,omitempty"`
}

type Result struct {
	Input Input `json:"input"`
	Setup Setup `json:"setup"`

	BalancePct       float64 `json:"balance_pct"`
	BaseRisk         float64 `json:"base_risk"`
	WinRate          float64 `json:"win_rate"`
	Drawdown         float64 `json:"drawdown"`
	AdjustedWinRate  float64 `json:"adjusted_win_rate"`
	RewardRisk       float64 `json:"reward_risk"`
	BufferFactor     float64 `json:"buffer_factor"`
	CycleFactor      float64 `json:"cycle_factor"`
	AdaptationFactor float64 `json:"adaptation_factor"`
	Growth           float64 `json:"growth"`
	Efficiency       float64 `json:"efficiency"`
	ProfitBonus      float64 `json:"profit_bonus"`

	RiskPct      float64  `json:"risk_pct"`
	RiskUSD      float64  `json:"risk_usd"`
	EntryCount   int      `json:"entry_count"`
	Entries      []Entry  `json:"entries"`
	FixRule      string   `json:"fix_rule"`
	Recovery     Recovery `json:"recovery"`
	RecoveryMode bool     `json:"recovery_mode"`
}
