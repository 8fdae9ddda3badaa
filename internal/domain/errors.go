package domain

import "errors"

var (
	// ErrSessionNotFound is returned when no session exists for the user and period.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrIncompletePayload indicates the bootstrap returned fewer questions than required.
	ErrIncompletePayload = errors.New("incomplete question payload")
	// ErrMalformedQuestion indicates a question record violates the option contract.
	ErrMalformedQuestion = errors.New("malformed question")
	// ErrQuestionNotFound indicates a question ID in a sequence is unknown to the bank.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrNotEnoughQuestions indicates the bank cannot fill a session's sequence.
	ErrNotEnoughQuestions = errors.New("question bank too small")
	// ErrRoundNotFound indicates the round ID is unknown.
	ErrRoundNotFound = errors.New("round not found")
	// ErrRoundClosed indicates a join was attempted after the round closed.
	ErrRoundClosed = errors.New("round closed")
	// ErrInvalidUser indicates a request without a usable user identity.
	ErrInvalidUser = errors.New("invalid user id")
	// ErrInvalidProgress indicates a progress update with an unknown phase or negative index.
	ErrInvalidProgress = errors.New("invalid progress update")
	// ErrInvalidAmount indicates a non-positive credit grant.
	ErrInvalidAmount = errors.New("credit amount must be positive")
)
