package api

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sync/semaphore"

	"github.com/samcharles93/blockmerge/internal/host"
	"github.com/samcharles93/blockmerge/internal/logger"
	"github.com/samcharles93/blockmerge/internal/merge"
	"github.com/samcharles93/blockmerge/internal/version"
)

type MergeServiceConfig struct {
	// ModelsDir roots every model and output path. Requests may only name
	// paths inside it. Empty accepts any path.
	ModelsDir string
	Options   merge.Options
	DType     string
	// MaxConcurrent bounds merges running at once. Zero means one.
	MaxConcurrent int64
	Workers       int
	Logger        logger.Logger
}

// MergeService runs merges between checkpoints on disk.
type MergeService struct {
	cfg    MergeServiceConfig
	merger *merge.Merger
	slots  *semaphore.Weighted
	log    logger.Logger
}

type MergeResult struct {
	Output string
	Report merge.Report
}

func NewMergeService(cfg MergeServiceConfig) *MergeService {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Discard()
	}
	return &MergeService{
		cfg:    cfg,
		merger: merge.NewMerger(cfg.Options, cfg.Logger.With("component", "merger")),
		slots:  semaphore.NewWeighted(cfg.MaxConcurrent),
		log:    cfg.Logger,
	}
}

func (s *MergeService) Merger() *merge.Merger { return s.merger }

// Job is a merge between two resolved checkpoint paths.
type Job struct {
	ModelA   string
	ModelB   string
	Output   string
	Params   merge.Params
	FellBack bool
	DType    string
	Meta     map[string]string
}

// Run merges req.ModelB into req.ModelA and writes req.Output. Input errors
// are reported before any file is opened.
func (s *MergeService) Run(ctx context.Context, req MergeRequest) (MergeResult, error) {
	pathA, err := s.resolve("model_a", req.ModelA)
	if err != nil {
		return MergeResult{}, err
	}
	pathB, err := s.resolve("model_b", req.ModelB)
	if err != nil {
		return MergeResult{}, err
	}
	outPath, err := s.resolve("output", req.Output)
	if err != nil {
		return MergeResult{}, err
	}
	params, fellBack := req.resolve()
	return s.Execute(ctx, Job{
		ModelA:   pathA,
		ModelB:   pathB,
		Output:   outPath,
		Params:   params,
		FellBack: fellBack,
		DType:    req.DType,
		Meta:     req.Meta,
	})
}

// Execute runs job without path resolution. It blocks while MaxConcurrent
// merges are already running.
func (s *MergeService) Execute(ctx context.Context, job Job) (MergeResult, error) {
	if samePath(job.Output, job.ModelA) || samePath(job.Output, job.ModelB) {
		return MergeResult{}, badModelPath("output", "must differ from the input models")
	}
	if _, err := s.merger.Table(job.Params); err != nil {
		return MergeResult{}, err
	}

	if err := s.slots.Acquire(ctx, 1); err != nil {
		return MergeResult{}, err
	}
	defer s.slots.Release(1)

	ckptA, err := host.OpenCheckpoint(job.ModelA)
	if err != nil {
		return MergeResult{}, fmt.Errorf("open model_a: %w", err)
	}
	defer func() { _ = ckptA.Close() }()
	ckptB, err := host.OpenCheckpoint(job.ModelB)
	if err != nil {
		return MergeResult{}, fmt.Errorf("open model_b: %w", err)
	}
	defer func() { _ = ckptB.Close() }()

	log := s.log.With("model_a", job.ModelA, "model_b", job.ModelB)
	merged, report, err := s.merger.Merge(ctx, host.NewModel(ckptA, log), host.NewModel(ckptB, log), job.Params)
	if err != nil {
		return MergeResult{}, err
	}
	report.FellBack = job.FellBack

	dtype := job.DType
	if dtype == "" {
		dtype = s.cfg.DType
	}
	err = merged.(*host.Model).Save(ctx, job.Output, host.SaveOptions{
		DType:    dtype,
		Metadata: outputMetadata(ckptA.Metadata(), job.Meta, job.Params),
		Workers:  s.cfg.Workers,
	})
	if err != nil {
		return MergeResult{}, fmt.Errorf("save merged model: %w", err)
	}
	log.Info("merged model written", "output", job.Output, "dtype", dtype)
	return MergeResult{Output: job.Output, Report: report}, nil
}

func (s *MergeService) resolve(field, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", badModelPath(field, "required")
	}
	if s.cfg.ModelsDir == "" {
		return filepath.Clean(name), nil
	}
	if !filepath.IsLocal(name) {
		return "", badModelPath(field, "path must stay inside the models directory")
	}
	return filepath.Join(s.cfg.ModelsDir, name), nil
}

// outputMetadata carries model A's metadata forward and records the merge inputs.
func outputMetadata(base, extra map[string]string, p merge.Params) map[string]string {
	meta := make(map[string]string, len(base)+len(extra)+5)
	for k, v := range base {
		meta[k] = v
	}
	weights := make([]string, len(p.Weights))
	for i, w := range p.Weights {
		weights[i] = strconv.FormatFloat(w, 'f', -1, 64)
	}
	meta["blockmerge.version"] = version.String()
	meta["blockmerge.time_embed"] = strconv.Itoa(p.TimeEmbed)
	meta["blockmerge.label_emb"] = strconv.Itoa(p.LabelEmb)
	meta["blockmerge.out"] = strconv.Itoa(p.Out)
	meta["blockmerge.weights"] = "[" + strings.Join(weights, ",") + "]"
	for k, v := range extra {
		meta[k] = v
	}
	return meta
}

// samePath reports whether a and b name one file, however each is spelled.
func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA == nil && errB == nil && absA == absB {
		return true
	}
	stA, errA := os.Stat(a)
	stB, errB := os.Stat(b)
	return errA == nil && errB == nil && os.SameFile(stA, stB)
}
