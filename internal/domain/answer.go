package domain

// Answer is the result of a question against an ingested repository.
// Sources lists the distinct file paths of the retrieved chunks in
// first-seen order.
type Answer struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
}
