package legal

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/dshills/lexgraph/graph"
	"github.com/dshills/lexgraph/graph/model"
	"github.com/dshills/lexgraph/review"
)

// runtime bundles what the steps need. Every step gets it explicitly at
// construction.
type runtime struct {
	llm         model.Caller
	reviews     review.Queue
	differ      Differ
	exporter    Exporter
	logger      *slog.Logger
	temperature float64
	maxTokens   int
	now         func() time.Time
}

func (rt *runtime) complete(ctx context.Context, s *graph.WorkflowState, node, system, prompt string) (model.Completion, error) {
	if rt.llm == nil {
		return model.Completion{}, fmt.Errorf("no language model configured")
	}
	return model.Invoke(ctx, rt.llm, model.Request{
		Prompt:       prompt,
		SystemPrompt: system,
		Temperature:  rt.temperature,
		MaxTokens:    rt.maxTokens,
		WorkID:       s.WorkID,
		Node:         node,
	})
}

// openReview creates the review task a suspension node waits on.
func (rt *runtime) openReview(ctx context.Context, s *graph.WorkflowState, node string) (string, error) {
	if rt.reviews == nil {
		return "", nil
	}
	details := map[string]any{
		"node":          node,
		KeyDocumentType: s.String(KeyDocumentType),
		KeyRiskLevel:    s.String(KeyRiskLevel),
	}
	if v := s.String(KeySummary); v != "" {
		details[KeySummary] = v
	}
	if v, ok := s.Get(KeyDraftRevision); ok {
		details[KeyDraftRevision] = v
	}
	return rt.reviews.CreateTask(ctx, s.WorkID, review.PriorityFromRisk(s.String(KeyRiskLevel)), details)
}

func withCompletion(r graph.StepResult, c model.Completion) graph.StepResult {
	for k, v := range c.Metadata() {
		r = r.WithMetadata(k, v)
	}
	return r
}

type intakeStep struct{ rt *runtime }

func (intakeStep) Name() string { return NodeIntake }

// Run classifies the document. A caller-supplied document_type is trusted;
// otherwise the model classifies the document text. Work that cannot be
// classified is marked unknown and routed to analysis.
func (st intakeStep) Run(ctx context.Context, s *graph.WorkflowState) graph.StepResult {
	risk := normalizeRisk(s.String(KeyRiskLevel))

	if declared := s.String(KeyDocumentType); declared != "" {
		return graph.Succeed(map[string]any{
			KeyDocumentType: declared,
			KeyRiskLevel:    risk,
		}).WithHint(hintFor(declared))
	}

	doc := s.String(KeyDocument)
	if doc == "" || st.rt.llm == nil {
		return graph.Succeed(map[string]any{
			KeyDocumentType: TypeUnknown,
			KeyRiskLevel:    risk,
		}).WithHint(NodeAnalyze)
	}

	out, err := st.rt.complete(ctx, s, NodeIntake, classifySystemPrompt, doc)
	if err != nil {
		return graph.Fail("classification failed: " + err.Error())
	}
	c, err := parseReply[Classification](out.Text)
	if err != nil {
		return withCompletion(graph.Fail("classification failed: "+err.Error()), out)
	}

	docType := strings.ToLower(strings.TrimSpace(c.DocumentType))
	if !documentTypes[docType] {
		docType = TypeUnknown
	}
	st.rt.logger.DebugContext(ctx, "document classified",
		"work_id", s.WorkID, "document_type", docType, "risk_level", c.RiskLevel)

	data := map[string]any{
		KeyDocumentType: docType,
		KeyRiskLevel:    normalizeRisk(c.RiskLevel),
	}
	if c.Summary != "" {
		data[KeySummary] = c.Summary
	}
	return withCompletion(graph.Succeed(data).WithHint(hintFor(docType)), out)
}

func hintFor(docType string) string {
	switch docType {
	case TypeNewContract:
		return NodeGenerate
	case TypeObjection:
		return NodeObjection
	default:
		return NodeAnalyze
	}
}

type generateStep struct{ rt *runtime }

func (generateStep) Name() string { return NodeGenerate }

// Run drafts a contract, or revises the current draft when the work came back
// from review.
func (st generateStep) Run(ctx context.Context, s *graph.WorkflowState) graph.StepResult {
	revision := intValue(s.Data[KeyDraftRevision]) + 1
	previous := s.String(KeyDocument)

	var b strings.Builder
	b.WriteString("REQUEST:\n")
	b.WriteString(requestText(s))
	if revision > 1 && previous != "" {
		b.WriteString("\n\nPREVIOUS DRAFT:\n")
		b.WriteString(previous)
		if c := s.String(KeyComments); c != "" {
			b.WriteString("\n\nREVIEWER COMMENTS:\n")
			b.WriteString(c)
		}
	}

	out, err := st.rt.complete(ctx, s, NodeGenerate, generateSystemPrompt, b.String())
	if err != nil {
		return graph.Fail("generation failed: " + err.Error())
	}
	draft := strings.TrimSpace(out.Text)
	if draft == "" {
		return withCompletion(graph.Fail("generation failed: empty draft"), out)
	}

	data := map[string]any{
		KeyDraft:         draft,
		KeyDocument:      draft,
		KeyDraftRevision: revision,
	}
	if previous != "" {
		data[KeyPreviousDocument] = previous
	}
	return withCompletion(graph.Succeed(data).WithHint(NodeReview), out)
}

func requestText(s *graph.WorkflowState) string {
	if r := s.String(KeyRequest); r != "" {
		return r
	}
	if d := s.String(KeyDocument); d != "" {
		return d
	}
	return s.String(KeySummary)
}

type analyzeStep struct{ rt *runtime }

func (analyzeStep) Name() string { return NodeAnalyze }

// Run assesses the document's risk. A reply that is not the requested JSON
// is kept verbatim as the analysis summary.
func (st analyzeStep) Run(ctx context.Context, s *graph.WorkflowState) graph.StepResult {
	doc := s.String(KeyDocument)
	if doc == "" {
		return graph.Fail("analysis failed: no document")
	}

	out, err := st.rt.complete(ctx, s, NodeAnalyze, analyzeSystemPrompt, doc)
	if err != nil {
		return graph.Fail("analysis failed: " + err.Error())
	}

	data := map[string]any{}
	a, err := parseReply[Analysis](out.Text)
	if err != nil {
		st.rt.logger.WarnContext(ctx, "analysis reply was not structured",
			"work_id", s.WorkID, "error", err)
		data[KeyAnalysis] = strings.TrimSpace(out.Text)
	} else {
		data[KeyAnalysis] = a.Summary
		data[KeyRiskLevel] = normalizeRisk(a.RiskLevel)
		issues := make([]any, len(a.Issues))
		for i, is := range a.Issues {
			issues[i] = is
		}
		data[KeyIssues] = issues
	}
	return withCompletion(graph.Succeed(data).WithHint(NodeReview), out)
}

type objectionStep struct{ rt *runtime }

func (objectionStep) Name() string { return NodeObjection }

// Run drafts an objection letter, or a response when the incoming document is
// itself an objection, and opens a review task for counsel.
func (st objectionStep) Run(ctx context.Context, s *graph.WorkflowState) graph.StepResult {
	system := objectionSystemPrompt
	if s.String(KeyDocumentType) == TypeObjection && s.String(KeyDecision) == "" {
		system = objectionResponseSystemPrompt
	}

	var b strings.Builder
	b.WriteString("DOCUMENT:\n")
	b.WriteString(s.String(KeyDocument))
	if c := s.String(KeyComments); c != "" {
		b.WriteString("\n\nREASONS:\n")
		b.WriteString(c)
	}
	if a := s.String(KeyAnalysis); a != "" {
		b.WriteString("\n\nANALYSIS:\n")
		b.WriteString(a)
	}

	out, err := st.rt.complete(ctx, s, NodeObjection, system, b.String())
	if err != nil {
		return graph.Fail("objection drafting failed: " + err.Error())
	}

	taskID, err := st.rt.openReview(ctx, s, NodeObjection)
	if err != nil {
		return withCompletion(graph.Fail("objection review task: "+err.Error()), out)
	}
	data := map[string]any{KeyObjection: strings.TrimSpace(out.Text)}
	if taskID != "" {
		data[KeyReviewTask] = taskID
	}
	return withCompletion(graph.Succeed(data), out)
}

type reviewStep struct{ rt *runtime }

func (reviewStep) Name() string { return NodeReview }

// Run opens a review task and resets the decision fields so the router only
// ever sees the decision supplied on resume.
func (st reviewStep) Run(ctx context.Context, s *graph.WorkflowState) graph.StepResult {
	taskID, err := st.rt.openReview(ctx, s, NodeReview)
	if err != nil {
		return graph.Fail("review task: " + err.Error())
	}
	data := map[string]any{
		KeyDecision:   DecisionPending,
		KeyHasChanges: false,
	}
	if taskID != "" {
		data[KeyReviewTask] = taskID
		st.rt.logger.InfoContext(ctx, "review task opened",
			"work_id", s.WorkID, "task_id", taskID, "risk_level", s.String(KeyRiskLevel))
	}
	return graph.Succeed(data)
}

type versionDiffStep struct{ rt *runtime }

func (versionDiffStep) Name() string { return NodeVersionDiff }

// Run compares the approved document against the version before it.
func (st versionDiffStep) Run(ctx context.Context, s *graph.WorkflowState) graph.StepResult {
	res, err := st.rt.differ.Diff(ctx, s.String(KeyPreviousDocument), s.String(KeyDocument))
	if err != nil {
		return graph.Fail("version diff failed: " + err.Error())
	}
	return graph.Succeed(map[string]any{KeyDiff: res.Map()}).WithHint(NodeExport)
}

type exportStep struct{ rt *runtime }

func (exportStep) Name() string { return NodeExport }

// Run hands the final document to the exporter.
func (st exportStep) Run(ctx context.Context, s *graph.WorkflowState) graph.StepResult {
	content := s.String(KeyDocument)
	if s.String(KeyDocumentType) == TypeObjection || content == "" {
		if o := s.String(KeyObjection); o != "" {
			content = o
		}
	}
	if content == "" {
		return graph.Fail("export failed: nothing to export")
	}

	meta := map[string]any{}
	for _, k := range []string{KeyDecision, KeyReviewer, KeyRiskLevel, KeyDraftRevision, KeyDiff} {
		if v, ok := s.Get(k); ok {
			meta[k] = v
		}
	}

	location, err := st.rt.exporter.Export(ctx, ExportDocument{
		WorkID:       s.WorkID,
		DocumentType: s.String(KeyDocumentType),
		Content:      content,
		Metadata:     meta,
		ExportedAt:   st.rt.now().UTC(),
	})
	if err != nil {
		return graph.Fail("export failed: " + err.Error())
	}
	return graph.Succeed(map[string]any{KeyExportLocation: location})
}

func normalizeRisk(level string) string {
	level = strings.ToLower(strings.TrimSpace(level))
	if riskLevels[level] {
		return level
	}
	return "medium"
}

// intValue reads counters that may have passed through JSON.
func intValue(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		i, _ := strconv.Atoi(n)
		return i
	default:
		return 0
	}
}
