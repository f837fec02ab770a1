package domain

// Stage is a named point in the conversation's happy path. Each stage that
// asks a blocking question carries a configured follow-up delay window;
// terminal stages carry a zero window and never schedule follow-ups.
type Stage string

const (
	StageGreeting       Stage = "greeting"
	StageAskName        Stage = "ask_name"
	StageAskProductType Stage = "ask_product_type"
	StageAskCapacityOK  Stage = "ask_capacity_ok"
	StageAskGenres      Stage = "ask_genres"
	StageAskArtists     Stage = "ask_artists"
	StageAskVideos      Stage = "ask_videos"
	StageAskAddress     Stage = "ask_address"
	StagePayment        Stage = "payment"
	StageOrderConfirmed Stage = "order_confirmed"
	StageDone           Stage = "done"
)

// terminalStages are the conversation stages after which no follow-up makes
// sense: the sale either closed or the user is mid-checkout.
var terminalStages = map[Stage]bool{
	StagePayment:        true,
	StageOrderConfirmed: true,
	StageDone:           true,
}

// IsTerminal returns true if the stage ends the blocking-question lifecycle.
func (s Stage) IsTerminal() bool { return terminalStages[s] }

// AnswerType describes the kind of reply a blocking question expects.
type AnswerType string

const (
	AnswerYesNo     AnswerType = "yes_no"
	AnswerFreeText  AnswerType = "free_text"
	AnswerSelection AnswerType = "selection"
	AnswerAddress   AnswerType = "address"
)
