package api

import (
	"time"

	"github.com/samcharles93/blockmerge/internal/merge"
)

// MergeParams are the node inputs. Absent fields take the node defaults.
type MergeParams struct {
	TimeEmbed   *int    `json:"time_embed,omitempty"`
	LabelEmb    *int    `json:"label_emb,omitempty"`
	Out         *int    `json:"out,omitempty"`
	WeightsJSON *string `json:"weights_json,omitempty"`
}

func (p MergeParams) resolve() (merge.Params, bool) {
	weights := merge.DefaultWeightsJSON
	if p.WeightsJSON != nil {
		weights = *p.WeightsJSON
	}
	return merge.ParseParams(orFull(p.TimeEmbed), orFull(p.LabelEmb), orFull(p.Out), weights)
}

func orFull(v *int) int {
	if v == nil {
		return merge.FullWeight
	}
	return *v
}

type RegionsResponse struct {
	Regions  []merge.Region `json:"regions"`
	FellBack bool           `json:"fell_back,omitempty"`
}

type PlanRequest struct {
	MergeParams
	Keys []string `json:"keys"`
}

type PlanResponse struct {
	Namespace   string             `json:"namespace"`
	Assignments []merge.Assignment `json:"assignments"`
	FellBack    bool               `json:"fell_back,omitempty"`
}

// MergeRequest names two checkpoints relative to the server's models directory.
type MergeRequest struct {
	MergeParams
	ModelA string            `json:"model_a"`
	ModelB string            `json:"model_b"`
	Output string            `json:"output"`
	DType  string            `json:"dtype,omitempty"`
	Meta   map[string]string `json:"metadata,omitempty"`
}

type MergeStatus string

const (
	StatusRunning   MergeStatus = "running"
	StatusCompleted MergeStatus = "completed"
	StatusFailed    MergeStatus = "failed"
)

type MergeRecord struct {
	ID          string        `json:"id"`
	Object      string        `json:"object"`
	Status      MergeStatus   `json:"status"`
	CreatedAt   int64         `json:"created_at"`
	CompletedAt *int64        `json:"completed_at,omitempty"`
	ModelA      string        `json:"model_a"`
	ModelB      string        `json:"model_b"`
	Output      string        `json:"output"`
	Report      *merge.Report `json:"report,omitempty"`
	Error       *ErrorBody    `json:"error,omitempty"`
}

type ErrorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func unixPtr(t time.Time) *int64 {
	u := t.Unix()
	return &u
}
