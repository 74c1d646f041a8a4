package workflows

type PaperIngestInput struct {
	PaperID      string `json:"paper_id"`
	ChunkSize    int    `json:"chunk_size,omitempty"`
	ChunkOverlap int    `json:"chunk_overlap,omitempty"`
}

type BatchIngestInput struct {
	PaperIDs              []string `json:"paper_ids"`
	MaxConcurrentChildren int      `json:"max_concurrent_children,omitempty"`
	ChunkSize             int      `json:"chunk_size,omitempty"`
	ChunkOverlap          int      `json:"chunk_overlap,omitempty"`
}

type PaperIngestStatus struct {
	PaperID     string            `json:"paper_id"`
	CurrentStep string            `json:"current_step"`
	Status      string            `json:"status"`
	FailReason  string            `json:"fail_reason,omitempty"`
	Chunks      int               `json:"chunks"`
	Steps       map[string]string `json:"steps"`
}

type BatchIngestProgress struct {
	Total         int               `json:"total"`
	Done          int               `json:"done"`
	Failed        int               `json:"failed"`
	PerPaper      map[string]string `json:"per_paper_status"`
	ChildWorkflow map[string]string `json:"child_workflow_ids,omitempty"`
}
