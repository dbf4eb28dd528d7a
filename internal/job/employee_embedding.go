package job

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/flockhq/flock/internal/embed"
	"github.com/flockhq/flock/internal/model"
	appErr "github.com/flockhq/flock/internal/pkg/errors"
	"github.com/flockhq/flock/internal/repo"
	"github.com/flockhq/flock/internal/vector"
)

type EmployeeEmbeddingArgs struct {
	UserID  string                `json:"user_id"`
	Profile model.EmployeeProfile `json:"profile"`
}

// EmployeeEmbeddingHandler turns an employee profile into a vector living
// in the same tenant namespace as document chunks, tagged type=employee so
// people search can filter to it.
type EmployeeEmbeddingHandler struct {
	employees *repo.EmployeeRepo
	embedder  embed.Embedder
	index     vector.Index
}

func NewEmployeeEmbeddingHandler(employees *repo.EmployeeRepo, embedder embed.Embedder, index vector.Index) *EmployeeEmbeddingHandler {
	return &EmployeeEmbeddingHandler{
		employees: employees,
		embedder:  embedder,
		index:     index,
	}
}

func (h *EmployeeEmbeddingHandler) Handle(ctx context.Context, task *Task, progress ProgressFunc) (string, error) {
	var args EmployeeEmbeddingArgs
	if err := json.Unmarshal(task.Args, &args); err != nil {
		return "", fmt.Errorf("%w: %v", appErr.ErrInvalid, err)
	}
	if args.UserID == "" {
		return "", fmt.Errorf("%w: user_id is required", appErr.ErrInvalid)
	}
	text := profileText(&args.Profile)
	if text == "" {
		return "", fmt.Errorf("%w: profile has no content to embed", appErr.ErrEmptyDocument)
	}

	progress(30)
	vectors, err := h.embedder.EmbedTexts(ctx, task.OrgID, []string{text})
	if err != nil {
		return "", err
	}

	progress(70)
	vectorID := vector.EmployeeVectorID(args.UserID)
	item := vector.Item{
		ID:     vectorID,
		Values: vectors[0],
		Metadata: vector.SanitizeMetadata(map[string]interface{}{
			"type":        "employee",
			"user_id":     args.UserID,
			"name":        args.Profile.Name,
			"title":       args.Profile.Title,
			"specialties": args.Profile.Specialties,
		}),
	}
	if err := h.index.Upsert(ctx, vector.Namespace(task.OrgID), []vector.Item{item}); err != nil {
		return "", err
	}

	if err := h.employees.Upsert(ctx, &model.EmployeeEmbedding{
		OrgID:    task.OrgID,
		UserID:   args.UserID,
		VectorID: vectorID,
		Profile:  &args.Profile,
		Mtime:    time.Now().Unix(),
	}); err != nil {
		return "", err
	}
	result, _ := json.Marshal(map[string]string{"user_id": args.UserID, "vector_id": vectorID})
	return string(result), nil
}

// profileText mirrors the shape searched against: a few labeled lines so
// "who knows X" queries land on specialties as well as titles.
func profileText(p *model.EmployeeProfile) string {
	var lines []string
	if p.Name != "" {
		lines = append(lines, "Name: "+p.Name)
	}
	if p.Title != "" {
		lines = append(lines, "Title: "+p.Title)
	}
	if p.Specialties != "" {
		lines = append(lines, "Specialties: "+p.Specialties)
	}
	return strings.Join(lines, "\n")
}
