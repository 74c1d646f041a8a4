package activities

import "litchat/internal/models"

type FetchPaperInput struct {
	PaperID string `json:"paper_id"`
}

type FetchPaperOutput struct {
	Paper models.Paper `json:"paper"`
}

type DownloadPDFInput struct {
	PaperID string `json:"paper_id"`
	URL     string `json:"url"`
}

type DownloadPDFOutput struct {
	Path string `json:"path"`
}

type ExtractTextInput struct {
	Path string `json:"path"`
}

type ExtractTextOutput struct {
	Text string `json:"text"`
}

type ChunkTextInput struct {
	PaperID      string `json:"paper_id"`
	Text         string `json:"text"`
	ChunkSize    int    `json:"chunk_size"`
	ChunkOverlap int    `json:"chunk_overlap"`
}

type ChunkTextOutput struct {
	Chunks []models.Chunk `json:"chunks"`
}

type EmbedChunksInput struct {
	Chunks []models.Chunk `json:"chunks"`
}

type EmbedChunksOutput struct {
	Vectors [][]float32 `json:"vectors"`
}

type StoreChunksInput struct {
	Chunks  []models.Chunk `json:"chunks"`
	Vectors [][]float32    `json:"vectors"`
}

type UpdatePaperStatusInput struct {
	PaperID    string `json:"paper_id"`
	Status     string `json:"status"`
	FailReason string `json:"fail_reason,omitempty"`
}
