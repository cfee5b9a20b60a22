package media

// Reason is a short, user-facing explanation of why an image yielded no usable face.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonInvalidImage    Reason = "invalid image"
	ReasonLowResolution   Reason = "low resolution"
	ReasonNoFace          Reason = "no face found"
	ReasonMultipleFaces   Reason = "multiple faces found"
	ReasonLowConfidence   Reason = "low confidence"
	ReasonDetectorFailure Reason = "detector failure"
	ReasonCancelled       Reason = "cancelled"
	ReasonUndecodable     Reason = "undecodable photo"
	ReasonDuplicatePhoto  Reason = "duplicate photo"
	ReasonEncodingFailed  Reason = "encoding failed"
)

// Diagnostic is returned instead of an error for the expected, frequent
// outcomes of extraction (no face, low confidence, ...).
type Diagnostic struct {
	Reason Reason `json:"reason,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// OK reports whether the image produced usable faces.
func (d Diagnostic) OK() bool {
	return d.Reason == ReasonNone
}

func (d Diagnostic) String() string {
	switch {
	case d.Reason == ReasonNone && d.Detail == "":
		return "ok"
	case d.Reason == ReasonNone:
		return "ok (" + d.Detail + ")"
	case d.Detail == "":
		return string(d.Reason)
	default:
		return string(d.Reason) + " (" + d.Detail + ")"
	}
}

// Err converts a failed diagnostic into the matching error type: input shape
// problems become *ValidationError, everything else *DetectionError.
func (d Diagnostic) Err() error {
	switch d.Reason {
	case ReasonNone:
		return nil
	case ReasonInvalidImage, ReasonLowResolution, ReasonUndecodable:
		return &ValidationError{Field: "image", Reason: d.String()}
	default:
		return &DetectionError{Diagnostic: d}
	}
}

func rejected(reason Reason, detail string) ExtractResult {
	return ExtractResult{Diagnostic: Diagnostic{Reason: reason, Detail: detail}}
}
