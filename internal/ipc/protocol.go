package ipc

// Request is one control command sent to the session daemon. Text carries
// the utterance for the "text" command and is ignored elsewhere.
type Request struct {
	Command string `json:"command"`
	Text    string `json:"text,omitempty"`
}

// Progress summarizes record completion for status responses.
type Progress struct {
	Completed  int `json:"completed"`
	Total      int `json:"total"`
	Percentage int `json:"percentage"`
}

// Response is the daemon's reply to one Request.
type Response struct {
	OK       bool      `json:"ok"`
	State    string    `json:"state,omitempty"`
	Message  string    `json:"message,omitempty"`
	Error    string    `json:"error,omitempty"`
	Progress *Progress `json:"progress,omitempty"`
	Score    int       `json:"score,omitempty"`
	Grade    string    `json:"grade,omitempty"`
}
