package pipeline

// State is a step of the submission state machine.
type State string

const (
	StateIdle            State = "idle"
	StateClassifying     State = "classifying"
	StateRejectedNotRoad State = "rejected_not_road"
	StateClassifyFailed  State = "classify_failed"
	StateClassified      State = "classified"
	StateStoringImage    State = "storing_image"
	StateStoreFailed     State = "store_failed"
	StateStored          State = "stored"
	StateCreatingRecord  State = "creating_record"
	StateRecordFailed    State = "record_failed"
	StateRecorded        State = "recorded"
	StateDetecting       State = "detecting"
	StateDetectFailed    State = "detect_failed_warn"
	StateDetected        State = "detected"
)

type Outcome string

const (
	OutcomeSuccess         Outcome = "success"
	OutcomeWarning         Outcome = "success-with-warning"
	OutcomeRejectedContent Outcome = "rejected-content"
	OutcomeFailed          Outcome = "failed"
)

// Progress messages shown while a stage runs.
const (
	MsgVerifying = "Verifying image..."
	MsgUploading = "Uploading..."
	MsgSaving    = "Saving report..."
	MsgDetecting = "Sending to AI model..."
)

const (
	MsgSuccess   = "Your road image has been uploaded and sent for AI processing."
	MsgNotRoad   = "The uploaded image does not appear to be a road. Please upload an image of a road."
	msgWarning   = "Image uploaded but AI model processing failed: "
	unknownCause = "Unknown error"
)

// Submission is one captured image with its resolved location.
type Submission struct {
	OwnerID   string
	Image     []byte
	Latitude  *float64
	Longitude *float64
}

// Result is the terminal outcome of an attempt.
type Result struct {
	Outcome  Outcome `json:"outcome"`
	State    State   `json:"state"`
	Message  string  `json:"message"`
	ReportID string  `json:"report_id,omitempty"`
	ImageID  string  `json:"image_id,omitempty"`
	Err      error   `json:"-"`
}

// Progress is a snapshot of the pipeline for progress UIs.
type Progress struct {
	State    State  `json:"state"`
	Message  string `json:"message,omitempty"`
	Busy     bool   `json:"busy"`
	CanRetry bool   `json:"can_retry"`
}
