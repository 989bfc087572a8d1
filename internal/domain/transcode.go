package domain

// JobPhase mirrors the phase values reported by the transcoding service.
type JobPhase string

const (
	PhaseWaiting    JobPhase = "waiting"
	PhaseUploading  JobPhase = "uploading"
	PhaseProcessing JobPhase = "processing"
	PhaseReady      JobPhase = "ready"
	PhaseCompleted  JobPhase = "completed"
	PhaseFailed     JobPhase = "failed"
)

// TranscodeJob tracks one submission to the transcoding service.
type TranscodeJob struct {
	AssetID     string
	PlaybackID  string
	Phase       JobPhase
	Progress    float64 // percent reported by the service
	PlaybackURL string
	DownloadURL string
	ErrorDetail string
}

// TranscodeResult is the uniform terminal outcome of a transcode submission.
type TranscodeResult struct {
	AssetID     string
	PlaybackID  string
	PlaybackURL string
	DownloadURL string
}

// TranscodeOptions carries caller intent for a submission.
type TranscodeOptions struct {
	Title      string
	StaticCopy bool // also export a static copy
}
