package stages

import "errors"

var (
	// ErrNoTextFound indicates extraction produced no usable text, so
	// downstream stages cannot run. Never retried.
	ErrNoTextFound = errors.New("no text found for book")

	// ErrNoVocabularyFound indicates the vocabulary artifact is empty,
	// so audio generation has nothing to speak. Never retried.
	ErrNoVocabularyFound = errors.New("no vocabulary found for book")

	// ErrInvalidModuleDefinition indicates a manual module definition
	// file exists but cannot be used. Never retried.
	ErrInvalidModuleDefinition = errors.New("invalid module definition")
)
