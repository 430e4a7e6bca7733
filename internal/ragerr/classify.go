package ragerr

import "errors"

// detailer is implemented by every error kind in this package.
type detailer interface {
	Details() map[string]any
}

// CodeOf classifies err into its taxonomy code. Unrecognised errors
// (including nil-wrapped unknowns) classify as CodeInternal.
func CodeOf(err error) Code {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return CodeValidation
	}
	var ee *EmbeddingProviderUnavailableError
	if errors.As(err, &ee) {
		return CodeEmbeddingProvider
	}
	var se *VectorStoreUnavailableError
	if errors.As(err, &se) {
		return CodeVectorStore
	}
	var le *LLMProviderUnavailableError
	if errors.As(err, &le) {
		return CodeLLMProvider
	}
	return CodeInternal
}

// DetailsOf returns the structured details of a taxonomy error, or nil
// for unclassified errors. Internal errors deliberately expose no
// details to the client.
func DetailsOf(err error) map[string]any {
	var d detailer
	if errors.As(err, &d) {
		return d.Details()
	}
	return nil
}
