package domain

import "time"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry of a user's conversation with the assistant.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type CalcStep string

const (
	StepIdle           CalcStep = "idle"
	StepBalance        CalcStep = "awaiting_balance"
	StepDeposit        CalcStep = "awaiting_deposit"
	StepPhase          CalcStep = "awaiting_phase"
	StepSetup          CalcStep = "awaiting_setup"
	StepVolatility     CalcStep = "awaiting_volatility"
	StepConfidence     CalcStep = "awaiting_confidence"
	StepCycleDay       CalcStep = "awaiting_cycle_day"
	StepPreviousProfit CalcStep = "awaiting_previous_profit"
	StepComplete       CalcStep = "complete"
)

// CalcSession holds the calculator answers collected so far. Fields are
// only meaningful once their step has been passed.
type CalcSession struct {
	ID             string    `json:"id"`
	Step           CalcStep  `json:"step"`
	Balance        float64   `json:"balance,omitempty"`
	Deposit        float64   `json:"deposit,omitempty"`
	Phase          string    `json:"phase,omitempty"`
	SetupID        int       `json:"setup_id,omitempty"`
	Volatility     float64   `json:"volatility,omitempty"`
	Confidence     float64   `json:"confidence,omitempty"`
	CycleDay       int       `json:"cycle_day,omitempty"`
	PreviousProfit float64   `json:"previous_profit,omitempty"`
	StartedAt      time.Time `json:"started_at"`
}

func (s CalcSession) Active() bool {
	return s.Step != "" && s.Step != StepIdle && s.Step != StepComplete
}

// Message is a transport-neutral inbound update: either typed text or a
// button press carrying Data.
type Message struct {
	UserID     int64  `json:"user_id"`
	ChatID     int64  `json:"chat_id"`
	FirstName  string `json:"first_name,omitempty"`
	Text       string `json:"text,omitempty"`
	CallbackID string `json:"callback_id,omitempty"`
	Data       string `json:"data,omitempty"`
}

func (m Message) IsCallback() bool {
	return m.CallbackID != ""
}

// Button is an inline keyboard button. Exactly one of Data or URL is set.
type Button struct {
	Text string `json:"text"`
	Data string `json:"callback_data,omitempty"`
	URL  string `json:"url,omitempty"`
}

type ParseMode string

const (
	ParsePlain    ParseMode = ""
	ParseHTML     ParseMode = "HTML"
	ParseMarkdown ParseMode = "Markdown"
)

type Reply struct {
	Text      string
	ParseMode ParseMode
	Buttons   [][]Button
}

type Photo struct {
	Path    string
	Caption string
}
