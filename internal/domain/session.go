package domain

import "time"

// SessionSnapshot is a point-in-time copy of a swarm session's state. The live
// record is owned by the swarm manager; callers only ever see snapshots.
type SessionSnapshot struct {
	InfoHash      string
	MagnetURI     string
	Name          string
	Category      Category
	Files         []SessionFile
	Progress      float64 // completion ratio in [0,1]
	DownloadRate  int64   // bytes/sec
	UploadRate    int64   // bytes/sec
	Peers         int
	Ready         bool
	Recoveries    int
	StartedAt     time.Time
	LastTelemetry time.Time
}

// SessionFile is a manifest entry plus its playback reference once bridged.
// StreamRef is populated exactly once, by whichever bridge path succeeds.
type SessionFile struct {
	FileEntry
	StreamRef string
}
