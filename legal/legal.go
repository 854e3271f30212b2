// Package legal defines the document pipeline: its node names, the values
// its routers understand, the steps that run at each node and the compiled
// graph that wires them together.
//
// The topology is fixed:
//
//	intake ──┬─ new_contract_request ─► generate ─────┐
//	         ├─ contract_analysis ────► analyze ──────┤
//	         ├─ objection_document ──► objection* ────┤
//	         └─ (anything else) ─────► analyze        ▼
//	                                               review*
//	   approved ─► export            (approved + has_changes ─► version_diff ─► export)
//	   rejected ─► objection*        negotiate, request_changes ─► generate
//	   (anything else) ─► review
//
// Nodes marked * suspend the workflow and open a review task.
package legal

// Node names.
const (
	NodeIntake      = "intake"
	NodeGenerate    = "generate"
	NodeAnalyze     = "analyze"
	NodeObjection   = "objection"
	NodeReview      = "review"
	NodeVersionDiff = "version_diff"
	NodeExport      = "export"
)

// Document types produced by intake classification.
const (
	TypeNewContract      = "new_contract_request"
	TypeContractAnalysis = "contract_analysis"
	TypeObjection        = "objection_document"
	TypeUnknown          = "unknown"
)

// Review decisions.
const (
	DecisionApproved       = "approved"
	DecisionRejected       = "rejected"
	DecisionNegotiate      = "negotiate"
	DecisionRequestChanges = "request_changes"
	DecisionPending        = "pending"
)

// Keys in the accumulated data.
const (
	KeyDocumentType     = "document_type"
	KeyDocument         = "document"
	KeyPreviousDocument = "previous_document"
	KeyRequest          = "request"
	KeyRiskLevel        = "risk_level"
	KeySummary          = "summary"
	KeyDraft            = "draft"
	KeyDraftRevision    = "draft_revision"
	KeyAnalysis         = "analysis"
	KeyIssues           = "issues"
	KeyObjection        = "objection"
	KeyDecision         = "decision"
	KeyHasChanges       = "has_changes"
	KeyComments         = "comments"
	KeyReviewer         = "reviewer"
	KeyReviewTask       = "review_task_id"
	KeyDiff             = "diff"
	KeyExportLocation   = "export_location"
)

// Risk levels recognized by classification and analysis.
var riskLevels = map[string]bool{
	"low":      true,
	"medium":   true,
	"high":     true,
	"critical": true,
}

var documentTypes = map[string]bool{
	TypeNewContract:      true,
	TypeContractAnalysis: true,
	TypeObjection:        true,
}
