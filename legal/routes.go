package legal

import "github.com/dshills/lexgraph/graph"

// IntakeRouter sends classified work to the node that handles its document
// type. Unrecognized types are analyzed rather than failed.
func IntakeRouter() graph.Router {
	return graph.OnValue(KeyDocumentType, map[string]string{
		TypeNewContract:      NodeGenerate,
		TypeContractAnalysis: NodeAnalyze,
		TypeObjection:        NodeObjection,
	}, NodeAnalyze)
}

// ReviewRouter routes a reviewed document by its decision. See RouteReview.
func ReviewRouter() graph.Router {
	return graph.RouterFunc(
		[]string{NodeExport, NodeVersionDiff, NodeObjection, NodeGenerate, NodeReview},
		NodeReview,
		RouteReview,
	)
}

// RouteReview maps a review decision to the next node.
//
//	approved                 -> export
//	approved + has_changes   -> version_diff
//	rejected                 -> objection
//	negotiate                -> generate
//	request_changes          -> generate
//	anything else            -> review
//
// has_changes is honored for approved only. A negotiate decision carrying
// has_changes still goes to generate.
func RouteReview(s *graph.WorkflowState) string {
	switch s.String(KeyDecision) {
	case DecisionApproved:
		if s.Bool(KeyHasChanges) {
			return NodeVersionDiff
		}
		return NodeExport
	case DecisionRejected:
		return NodeObjection
	case DecisionNegotiate, DecisionRequestChanges:
		return NodeGenerate
	default:
		return NodeReview
	}
}
