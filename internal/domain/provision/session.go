package provision

// State identifies the wizard step a conversation is waiting on.
type State string

// Wizard states. Each prompt-and-reply round advances one step; invalid
// input keeps the session in the same state.
const (
	StateAwaitingUsername  State = "awaiting_username"
	StateAwaitingDataLimit State = "awaiting_data_limit"
	StateAwaitingDays      State = "awaiting_days"
	StateDone              State = "done"
)

// Session is the conversation state of one in-flight account wizard.
// It is a value: transitions return a new Session.
type Session struct {
	state        State
	username     string
	dataLimitGiB float64
	validityDays int
}

// NewSession starts a wizard at the first step.
func NewSession() Session {
	return Session{state: StateAwaitingUsername}
}

// Reconstruct rebuilds a session from persisted fields.
func Reconstruct(state State, username string, dataLimitGiB float64, validityDays int) Session {
	return Session{
		state:        state,
		username:     username,
		dataLimitGiB: dataLimitGiB,
		validityDays: validityDays,
	}
}

// State returns the step the session is waiting on.
func (s Session) State() State { return s.state }

// Username returns the collected account name.
func (s Session) Username() string { return s.username }

// DataLimitGiB returns the collected traffic limit (0 = unlimited).
func (s Session) DataLimitGiB() float64 { return s.dataLimitGiB }

// ValidityDays returns the collected validity window.
func (s Session) ValidityDays() int { return s.validityDays }

// WithUsername records the account name and moves to the data limit step.
func (s Session) WithUsername(username string) Session {
	s.username = username
	s.state = StateAwaitingDataLimit
	return s
}

// WithDataLimit records the traffic limit and moves to the validity step.
func (s Session) WithDataLimit(gib float64) Session {
	s.dataLimitGiB = gib
	s.state = StateAwaitingDays
	return s
}

// WithDays records the validity window and completes the wizard.
func (s Session) WithDays(days int) Session {
	s.validityDays = days
	s.state = StateDone
	return s
}
