package calculator

import (
	"errors"
	"fmt"
	"html"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"strategybot/internal/domain"
	"strategybot/internal/service/risk"
)

// ButtonPrefix marks callback data that belongs to the calculator.
const ButtonPrefix = "calc:"

// CancelValue aborts the session when sent as an answer.
const CancelValue = "cancel"

// ValidationError reports an answer that does not fit the current step.
type ValidationError struct {
	Step   domain.CalcStep
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid answer for %s: %s", e.Step, e.Reason)
}

// Outcome is the state after one step together with what to send back.
// Result is set only on the step that completes the session.
type Outcome struct {
	Session domain.CalcSession
	Reply   domain.Reply
	Result  *risk.Result
}

type Controller struct {
	engine *risk.Engine
	now    func() time.Time
}

func NewController(engine *risk.Engine) *Controller {
	return &Controller{engine: engine, now: time.Now}
}

// Begin starts a fresh session at the balance step.
func (c *Controller) Begin() Outcome {
	s := domain.CalcSession{
		ID:        uuid.NewString(),
		Step:      domain.StepBalance,
		StartedAt: c.now().UTC(),
	}
	return Outcome{Session: s, Reply: c.prompt(s.Step)}
}

// Cancel discards a session without computing anything.
func (c *Controller) Cancel() Outcome {
	return Outcome{
		Session: domain.CalcSession{Step: domain.StepIdle},
		Reply:   domain.Reply{Text: "❌ Calculation cancelled."},
	}
}

// Advance applies one answer. An invalid answer returns the unchanged session,
// a re-prompt, and a *ValidationError. The answer for the last step runs the
// engine and returns an idle session.
func (c *Controller) Advance(s domain.CalcSession, answer string) (Outcome, error) {
	answer = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(answer), ButtonPrefix))
	if strings.EqualFold(answer, CancelValue) {
		return c.Cancel(), nil
	}
	if !s.Active() {
		return Outcome{Session: s}, errors.New("no active calculator session")
	}

	next, err := c.apply(s, answer)
	if err != nil {
		var verr *ValidationError
		if !errors.As(err, &verr) {
			verr = &ValidationError{Step: s.Step, Reason: err.Error()}
		}
		reply := c.prompt(s.Step)
		reply.Text = "⚠️ " + verr.Reason + "\n\n" + reply.Text
		return Outcome{Session: s, Reply: reply}, verr
	}

	if next.Step != domain.StepComplete {
		return Outcome{Session: next, Reply: c.prompt(next.Step)}, nil
	}

	idle := domain.CalcSession{Step: domain.StepIdle}
	result, err := c.engine.Calculate(Input(next))
	if err != nil {
		return Outcome{
			Session: idle,
			Reply:   domain.Reply{Text: "⚠️ These values cannot be calculated. Start again with /calc."},
		}, err
	}
	return Outcome{
		Session: idle,
		Reply:   domain.Reply{Text: FormatResult(result), ParseMode: domain.ParseHTML},
		Result:  &result,
	}, nil
}

// Input assembles engine input from a finished session. Growth and efficiency
// are not asked for and keep their defaults.
func Input(s domain.CalcSession) risk.Input {
	return risk.Input{
		Balance:        s.Balance,
		InitialDeposit: s.Deposit,
		Phase:          risk.Phase(s.Phase),
		SetupID:        s.SetupID,
		Volatility:     risk.Volatility(s.Volatility),
		Confidence:     s.Confidence,
		CycleDay:       s.CycleDay,
		PreviousProfit: s.PreviousProfit,
	}
}

func (c *Controller) apply(s domain.CalcSession, answer string) (domain.CalcSession, error) {
	switch s.Step {
	case domain.StepBalance:
		v, err := parsePositive(answer)
		if err != nil {
			return s, err
		}
		s.Balance = v
		s.Step = domain.StepDeposit
	case domain.StepDeposit:
		v, err := parsePositive(answer)
		if err != nil {
			return s, err
		}
		s.Deposit = v
		s.Step = domain.StepPhase
	case domain.StepPhase:
		p, err := risk.ParsePhase(answer)
		if err != nil {
			return s, &ValidationError{Step: s.Step, Reason: "choose challenge, verification or funded"}
		}
		s.Phase = string(p)
		s.Step = domain.StepSetup
	case domain.StepSetup:
		id, err := strconv.Atoi(strings.TrimPrefix(answer, "#"))
		if err != nil || !c.engine.Catalog().Contains(id) {
			return s, &ValidationError{Step: s.Step, Reason: fmt.Sprintf("enter a setup number from 1 to %d", c.engine.Catalog().Len())}
		}
		s.SetupID = id
		s.Step = domain.StepVolatility
	case domain.StepVolatility:
		v, err := risk.ParseVolatility(answer)
		if err != nil {
			return s, &ValidationError{Step: s.Step, Reason: "choose shock, flat, normal or impulse"}
		}
		s.Volatility = float64(v)
		s.Step = domain.StepConfidence
	case domain.StepConfidence:
		v, err := parseConfidence(answer)
		if err != nil {
			return s, err
		}
		s.Confidence = v
		s.Step = domain.StepCycleDay
	case domain.StepCycleDay:
		day, err := strconv.Atoi(answer)
		if err != nil || day < 1 {
			return s, &ValidationError{Step: s.Step, Reason: "enter the cycle day as a whole number from 1"}
		}
		s.CycleDay = day
		s.Step = domain.StepPreviousProfit
	case domain.StepPreviousProfit:
		v, err := parseNumber(answer)
		if err != nil || v < 0 {
			return s, &ValidationError{Step: s.Step, Reason: "enter the previous trade profit as 0 or a positive amount"}
		}
		s.PreviousProfit = v
		s.Step = domain.StepComplete
	default:
		return s, fmt.Errorf("unexpected step %q", s.Step)
	}
	return s, nil
}

func parsePositive(raw string) (float64, error) {
	v, err := parseNumber(raw)
	if err != nil || v <= 0 {
		return 0, errors.New("enter a positive amount in USD, e.g. 48500")
	}
	return v, nil
}

func parseConfidence(raw string) (float64, error) {
	v, err := parseNumber(raw)
	if err == nil {
		for _, level := range risk.ConfidenceLevels {
			if math.Abs(v-level) < 1e-9 {
				return level, nil
			}
		}
	}
	return 0, errors.New("choose one of the offered confidence levels")
}

// parseNumber accepts "$48 500", "48,500", "1,5" and "1.5". A single comma
// followed by exactly three digits is a thousands separator, otherwise a
// decimal point.
func parseNumber(raw string) (float64, error) {
	s := strings.NewReplacer(" ", "", "\u00a0", "", "$", "", "_", "").Replace(strings.TrimSpace(raw))
	switch strings.Count(s, ",") {
	case 0:
	case 1:
		idx := strings.Index(s, ",")
		if strings.Contains(s, ".") || len(s)-idx-1 == 3 {
			s = strings.Replace(s, ",", "", 1)
		} else {
			s = strings.Replace(s, ",", ".", 1)
		}
	default:
		s = strings.ReplaceAll(s, ",", "")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("number out of range: %q", raw)
	}
	return v, nil
}

func (c *Controller) prompt(step domain.CalcStep) domain.Reply {
	cancel := []domain.Button{{Text: "✖ Cancel", Data: ButtonPrefix + CancelValue}}
	switch step {
	case domain.StepBalance:
		return domain.Reply{Text: "💰 Step 1/8. Enter your current balance in USD:", Buttons: [][]domain.Button{cancel}}
	case domain.StepDeposit:
		return domain.Reply{Text: "🏦 Step 2/8. Enter the initial deposit in USD:", Buttons: [][]domain.Button{cancel}}
	case domain.StepPhase:
		return domain.Reply{
			Text: "📋 Step 3/8. Choose the account phase:",
			Buttons: [][]domain.Button{
				{
					{Text: risk.PhaseChallenge.Label(), Data: ButtonPrefix + string(risk.PhaseChallenge)},
					{Text: risk.PhaseVerification.Label(), Data: ButtonPrefix + string(risk.PhaseVerification)},
				},
				{{Text: risk.PhaseFunded.Label(), Data: ButtonPrefix + string(risk.PhaseFunded)}},
				cancel,
			},
		}
	case domain.StepSetup:
		return c.setupPrompt(cancel)
	case domain.StepVolatility:
		vols := []risk.Volatility{risk.VolatilityShock, risk.VolatilityFlat, risk.VolatilityNormal, risk.VolatilityImpulse}
		rows := make([][]domain.Button, 0, len(vols)+1)
		for _, v := range vols {
			rows = append(rows, []domain.Button{{Text: v.Label(), Data: ButtonPrefix + v.String()}})
		}
		return domain.Reply{Text: "📡 Step 5/8. Choose the volatility regime:", Buttons: append(rows, cancel)}
	case domain.StepConfidence:
		row := make([]domain.Button, 0, len(risk.ConfidenceLevels))
		for _, level := range risk.ConfidenceLevels {
			v := strconv.FormatFloat(level, 'f', -1, 64)
			row = append(row, domain.Button{Text: v, Data: ButtonPrefix + v})
		}
		return domain.Reply{
			Text:    "🧠 Step 6/8. Rate your confidence (0.5 tilted, 0.7 uncertain, 1.0 calm, 1.5 in the zone):",
			Buttons: [][]domain.Button{row, cancel},
		}
	case domain.StepCycleDay:
		return domain.Reply{Text: "📅 Step 7/8. Enter the current day of the trading cycle (1, 2, ...):", Buttons: [][]domain.Button{cancel}}
	case domain.StepPreviousProfit:
		return domain.Reply{
			Text:    "💵 Step 8/8. Enter the profit of the previous trade in USD (0 if none):",
			Buttons: [][]domain.Button{{{Text: "No profit", Data: ButtonPrefix + "0"}}, cancel},
		}
	default:
		return domain.Reply{}
	}
}

func (c *Controller) setupPrompt(cancel []domain.Button) domain.Reply {
	var b strings.Builder
	b.WriteString("🎯 Step 4/8. Choose the setup number:\n")
	setups := c.engine.Catalog().Setups()
	rows := make([][]domain.Button, 0, len(setups)/4+2)
	var row []domain.Button
	for _, s := range setups {
		b.WriteString(fmt.Sprintf("%d. %s (%.0f%%)\n", s.ID, html.EscapeString(s.Name), s.WinRate*100))
		id := strconv.Itoa(s.ID)
		row = append(row, domain.Button{Text: id, Data: ButtonPrefix + id})
		if len(row) == 4 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return domain.Reply{Text: b.String(), ParseMode: domain.ParseHTML, Buttons: append(rows, cancel)}
}
