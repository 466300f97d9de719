package model

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Finding is one validation result. Field names the candidate attribute the
// result is about; Code is stable for programmatic handling.
type Finding struct {
	Field    string   `json:"field"`
	Code     string   `json:"code"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

func ErrorFinding(field, code, message string) Finding {
	return Finding{Field: field, Code: code, Severity: SeverityError, Message: message}
}

func WarningFinding(field, code, message string) Finding {
	return Finding{Field: field, Code: code, Severity: SeverityWarning, Message: message}
}

type Findings []Finding

func (f Findings) HasBlocking() bool {
	for _, finding := range f {
		if finding.Severity == SeverityError {
			return true
		}
	}
	return false
}

func (f Findings) Blocking() Findings {
	return f.filter(SeverityError)
}

func (f Findings) Warnings() Findings {
	return f.filter(SeverityWarning)
}

func (f Findings) filter(severity Severity) Findings {
	result := make(Findings, 0, len(f))
	for _, finding := range f {
		if finding.Severity == severity {
			result = append(result, finding)
		}
	}
	return result
}

type Verdict string

const (
	VerdictBlocked                Verdict = "blocked"
	VerdictAdmissibleWithWarnings Verdict = "admissible_with_warnings"
	VerdictAdmissible             Verdict = "admissible"
)

func ClassifyFindings(findings Findings) Verdict {
	switch {
	case findings.HasBlocking():
		return VerdictBlocked
	case len(findings) > 0:
		return VerdictAdmissibleWithWarnings
	default:
		return VerdictAdmissible
	}
}
