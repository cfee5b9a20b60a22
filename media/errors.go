package media

import "fmt"

// ValidationError reports bad input shape. Callers may retry with better input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// DetectionError reports that an image did not contain a usable face.
type DetectionError struct {
	Diagnostic Diagnostic
}

func (e *DetectionError) Error() string {
	return "face detection: " + e.Diagnostic.String()
}

// EncodingError reports that the embedding model failed on one crop.
type EncodingError struct {
	Reason string
	Err    error
}

func (e *EncodingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("encoding failed: %s: %v", e.Reason, e.Err)
	}
	return "encoding failed: " + e.Reason
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}
