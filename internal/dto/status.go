package dto

// CaptureStats are the counters of the capture loop.
type CaptureStats struct {
	Frames     int64 `json:"frames"`
	Gated      int64 `json:"gated"`
	Inferred   int64 `json:"inferred"`
	Emitted    int64 `json:"emitted"`
	Skipped    int64 `json:"skipped"`
	ReadErrors int64 `json:"read_errors"`
	Failures   int64 `json:"failures"`
}

// QueueStats describes one bounded queue.
type QueueStats struct {
	Depth    int   `json:"depth"`
	Capacity int   `json:"capacity"`
	Dropped  int64 `json:"dropped"`
}

// WorkerStats counts the outcomes of a queue consumer.
type WorkerStats struct {
	Done   int64 `json:"done"`
	Failed int64 `json:"failed"`
}

// PipelineStatus is the operator view of the running pipeline.
type PipelineStatus struct {
	Capture      CaptureStats   `json:"capture"`
	PersistQueue QueueStats     `json:"persist_queue"`
	UploadQueue  QueueStats     `json:"upload_queue"`
	Persisted    WorkerStats    `json:"persisted"`
	Uploaded     WorkerStats    `json:"uploaded"`
	GPS          GPSFix         `json:"gps"`
	GPSUpdates   int64          `json:"gps_updates"`
	Viewers      int            `json:"viewers"`
	Catalog      map[string]int `json:"catalog,omitempty"`
}
