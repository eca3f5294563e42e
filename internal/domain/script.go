package domain

// Script is the pre-authored reference text a speaker reads from.
type Script struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}
