package legal

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dshills/lexgraph/graph"
	"github.com/dshills/lexgraph/graph/model"
	"github.com/dshills/lexgraph/review"
)

// Config supplies the collaborators the pipeline's steps call.
//
// Every field is optional. Without an LLM, intake relies on a caller-supplied
// document_type and the drafting steps fail. Without a review queue, the
// suspension nodes halt without opening tasks.
type Config struct {
	LLM      model.Caller
	Reviews  review.Queue
	Differ   Differ
	Exporter Exporter
	Logger   *slog.Logger

	// Temperature and MaxTokens are passed on every model call.
	Temperature float64
	MaxTokens   int

	// Now stamps exports. Defaults to time.Now.
	Now func() time.Time
}

// DefaultMaxTokens is used when Config.MaxTokens is not set.
const DefaultMaxTokens = 4096

func (c Config) runtime() *runtime {
	rt := &runtime{
		llm:         c.LLM,
		reviews:     c.Reviews,
		differ:      c.Differ,
		exporter:    c.Exporter,
		logger:      c.Logger,
		temperature: c.Temperature,
		maxTokens:   c.MaxTokens,
		now:         c.Now,
	}
	if rt.logger == nil {
		rt.logger = slog.Default()
	}
	if rt.maxTokens <= 0 {
		rt.maxTokens = DefaultMaxTokens
	}
	if rt.now == nil {
		rt.now = time.Now
	}
	if rt.differ == nil {
		if rt.llm != nil {
			rt.differ = LLMDiffer{LLM: rt.llm}
		} else {
			rt.differ = LineDiffer{}
		}
	}
	if rt.exporter == nil {
		rt.exporter = &FileExporter{Dir: filepath.Join(os.TempDir(), "lexgraph-exports")}
	}
	return rt
}

// Steps returns the step implementations for every node.
func Steps(cfg Config) []graph.Step {
	rt := cfg.runtime()
	return []graph.Step{
		intakeStep{rt},
		generateStep{rt},
		analyzeStep{rt},
		objectionStep{rt},
		reviewStep{rt},
		versionDiffStep{rt},
		exportStep{rt},
	}
}

// NewBuilder returns the pipeline's graph definition, ready to compile.
func NewBuilder(cfg Config) *graph.Builder {
	b := graph.NewBuilder()
	for _, s := range Steps(cfg) {
		b.Add(s)
	}
	return b.
		StartAt(NodeIntake).
		Connect(NodeIntake, IntakeRouter()).
		Connect(NodeGenerate, graph.Always(NodeReview)).
		Connect(NodeAnalyze, graph.Always(NodeReview)).
		Connect(NodeObjection, graph.Always(NodeReview)).
		Connect(NodeReview, ReviewRouter()).
		Connect(NodeVersionDiff, graph.Always(NodeExport)).
		Suspend(NodeReview).
		Suspend(NodeObjection)
}

// Build compiles the pipeline graph.
func Build(cfg Config) (*graph.Graph, error) {
	return NewBuilder(cfg).Compile()
}
