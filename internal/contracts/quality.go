package contracts

// CheckStatus is the outcome of one data-quality check
type CheckStatus string

const (
	CheckPass CheckStatus = "PASS"
	CheckWarn CheckStatus = "WARN"
	CheckFail CheckStatus = "FAIL"
)

// Severity maps a status to the alerting level
func (s CheckStatus) Severity() string {
	switch s {
	case CheckPass:
		return "INFO"
	case CheckWarn:
		return "WARNING"
	default:
		return "CRITICAL"
	}
}

// CheckResult is one persisted data-quality row
type CheckResult struct {
	Name     string                 `json:"check_name"`
	Status   CheckStatus            `json:"status"`
	Severity string                 `json:"severity"`
	Details  map[string]interface{} `json:"details"`
}
