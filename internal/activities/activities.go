package activities

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"litchat/internal/config"
	"litchat/internal/embedding"
	"litchat/internal/models"
	"litchat/internal/storage"
	"litchat/internal/util"
	"litchat/internal/vectorstore"
)

var ErrNoExtractableText = errors.New("no extractable text")

type Activities struct {
	cfg       config.Config
	paperRepo *storage.PaperRepo
	chunkRepo *storage.ChunkRepo
	gateway   *embedding.Gateway
	vectors   vectorstore.Store
	http      *http.Client
}

func New(cfg config.Config, db *storage.DB, gateway *embedding.Gateway, vectors vectorstore.Store) *Activities {
	return &Activities{
		cfg:       cfg,
		paperRepo: storage.NewPaperRepo(db),
		chunkRepo: storage.NewChunkRepo(db),
		gateway:   gateway,
		vectors:   vectors,
		http:      &http.Client{Timeout: 60 * time.Second},
	}
}

func (a *Activities) FetchPaperActivity(ctx context.Context, in FetchPaperInput) (FetchPaperOutput, error) {
	paper, ok, err := a.paperRepo.GetPaper(ctx, in.PaperID)
	if err != nil {
		return FetchPaperOutput{}, err
	}
	if !ok {
		return FetchPaperOutput{}, fmt.Errorf("paper not found: %s", in.PaperID)
	}
	return FetchPaperOutput{Paper: paper}, nil
}

func (a *Activities) DownloadPDFActivity(ctx context.Context, in DownloadPDFInput) (DownloadPDFOutput, error) {
	if in.URL == "" {
		return DownloadPDFOutput{}, fmt.Errorf("paper %s has no pdf url", in.PaperID)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, in.URL, nil)
	if err != nil {
		return DownloadPDFOutput{}, fmt.Errorf("build pdf request: %w", err)
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return DownloadPDFOutput{}, fmt.Errorf("download pdf: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return DownloadPDFOutput{}, fmt.Errorf("download pdf: status %d", resp.StatusCode)
	}

	if err := os.MkdirAll(a.cfg.DataInRoot, 0o755); err != nil {
		return DownloadPDFOutput{}, fmt.Errorf("create data dir: %w", err)
	}
	path := filepath.Join(a.cfg.DataInRoot, sanitizeFilename(in.PaperID)+".pdf")
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return DownloadPDFOutput{}, fmt.Errorf("create pdf file: %w", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return DownloadPDFOutput{}, fmt.Errorf("write pdf file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return DownloadPDFOutput{}, fmt.Errorf("close pdf file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return DownloadPDFOutput{}, fmt.Errorf("finalize pdf file: %w", err)
	}
	return DownloadPDFOutput{Path: path}, nil
}

func (a *Activities) ExtractTextActivity(ctx context.Context, in ExtractTextInput) (ExtractTextOutput, error) {
	_ = ctx
	f, r, err := pdf.Open(in.Path)
	if err != nil {
		return ExtractTextOutput{}, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return ExtractTextOutput{}, fmt.Errorf("extract pdf text: %w", err)
	}
	buf := new(strings.Builder)
	if _, err := io.Copy(buf, reader); err != nil {
		return ExtractTextOutput{}, fmt.Errorf("read extracted text: %w", err)
	}
	text := util.SanitizeText(strings.TrimSpace(buf.String()))
	if text == "" {
		return ExtractTextOutput{}, ErrNoExtractableText
	}
	return ExtractTextOutput{Text: text}, nil
}

// ChunkTextActivity splits text into overlapping chunks with deterministic
// ids, so re-ingesting the same paper replaces rather than duplicates.
func (a *Activities) ChunkTextActivity(ctx context.Context, in ChunkTextInput) (ChunkTextOutput, error) {
	_ = ctx
	if in.ChunkSize <= 0 {
		in.ChunkSize = a.cfg.ChunkSize
	}
	if in.ChunkOverlap < 0 || in.ChunkOverlap >= in.ChunkSize {
		in.ChunkOverlap = a.cfg.ChunkOverlap
	}

	out := ChunkTextOutput{}
	for _, tc := range util.ChunkText(in.PaperID, in.Text, in.ChunkSize, in.ChunkOverlap) {
		out.Chunks = append(out.Chunks, chunkOf(in.PaperID, tc.ID, tc.Index, tc.Text))
	}
	return out, nil
}

func (a *Activities) EmbedChunksActivity(ctx context.Context, in EmbedChunksInput) (EmbedChunksOutput, error) {
	texts := make([]string, 0, len(in.Chunks))
	for _, c := range in.Chunks {
		texts = append(texts, c.Text)
	}
	vectors, err := a.gateway.Embed(ctx, texts)
	if err != nil {
		return EmbedChunksOutput{}, err
	}
	return EmbedChunksOutput{Vectors: vectors}, nil
}

// StoreChunksActivity persists chunk rows and feeds the vector index. Both
// writes are idempotent by chunk id.
func (a *Activities) StoreChunksActivity(ctx context.Context, in StoreChunksInput) error {
	if err := a.chunkRepo.UpsertChunks(ctx, in.Chunks, in.Vectors); err != nil {
		return err
	}
	for i, c := range in.Chunks {
		if i >= len(in.Vectors) || in.Vectors[i] == nil {
			continue
		}
		err := a.vectors.Upsert(ctx, c.ChunkID, in.Vectors[i], vectorstore.Metadata{
			PaperID:    c.PaperID,
			ChunkIndex: c.ChunkIndex,
			Text:       c.Text,
		})
		if err != nil {
			return fmt.Errorf("index chunk %s: %w", c.ChunkID, err)
		}
	}
	return nil
}

func (a *Activities) UpdatePaperStatusActivity(ctx context.Context, in UpdatePaperStatusInput) error {
	return a.paperRepo.UpdatePaperStatus(ctx, in.PaperID, in.Status, in.FailReason)
}

func chunkOf(paperID, chunkID string, idx int, text string) models.Chunk {
	return models.Chunk{ChunkID: chunkID, PaperID: paperID, ChunkIndex: idx, Text: text}
}

func sanitizeFilename(s string) string {
	r := strings.NewReplacer(":", "_", "/", "_", "\\", "_", " ", "_")
	return r.Replace(s)
}
