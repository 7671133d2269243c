package schema

// Severity levels recognized by the stats breakdown and issue labels.
// Findings may arrive with other values; those are preserved verbatim but
// excluded from the severity breakdown.
const (
	SeverityLow      = "LOW"
	SeverityMedium   = "MEDIUM"
	SeverityHigh     = "HIGH"
	SeverityCritical = "CRITICAL"
)

// KnownSeverity reports whether s is one of the four recognized levels.
func KnownSeverity(s string) bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Detector sources the ingest contract accepts.
const (
	SourceGuardDuty = "GuardDuty"
	SourceLacework  = "Lacework"
)

// Estimated effort levels produced by the finding analysis.
const (
	EffortSmall  = "SMALL"
	EffortMedium = "MEDIUM"
	EffortLarge  = "LARGE"
)

// SecurityFinding is the nested finding record of the inbound payload.
type SecurityFinding struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Title        string `json:"title,omitempty"`
	Description  string `json:"description,omitempty"`
	Severity     string `json:"severity"`
	DetectedAt   string `json:"detectedAt,omitempty"`
	ResourceID   string `json:"resourceId,omitempty"`
	ResourceType string `json:"resourceType,omitempty"`
}

// FindingPayload is the inbound trigger for the issue-creation pipeline.
type FindingPayload struct {
	SecurityIssue    SecurityFinding `json:"securityIssue"`
	ResourceID       string          `json:"resourceId"`
	RemediationSteps []string        `json:"remediationSteps,omitempty"`
	Assignee         string          `json:"assignee,omitempty"`
}
