// Package access projects UEBA verdicts through role-based redaction.
// Privileged roles see the verdict untouched; restricted roles get security
// findings stripped and the rest replaced by generic consistency statements.
// Scores and status are never altered, only finding content.
package access

import (
	"strings"

	"github.com/fleetsentry/fleetsentry/internal/ueba"
)

// Roles asserted by the caller's authentication layer. The pipeline trusts
// the assertion; enforcing it is the caller's job.
const (
	RoleDealer = "dealer"
	RoleUser   = "user"
)

const (
	findingNominal       = "Data consistency nominal."
	findingCheckAdvised  = "Security check recommended."
	findingInconsistency = "Data inconsistency detected."
)

// Privileged reports whether a role sees unredacted verdicts.
func Privileged(role string) bool {
	return role == RoleDealer
}

// Redact returns the role-projected view of a verdict.
func Redact(role string, verdict ueba.Verdict) ueba.Verdict {
	if Privileged(role) {
		return verdict
	}

	var simplified []string
	for _, f := range verdict.Findings {
		lower := strings.ToLower(f)
		if strings.Contains(lower, "waf") || strings.Contains(lower, "unauthorized") {
			continue
		}
		if verdict.Status != ueba.StatusNormal {
			simplified = append(simplified, findingCheckAdvised)
		} else {
			simplified = append(simplified, findingNominal)
		}
		if strings.Contains(lower, "inconsistency") {
			simplified = append(simplified, findingInconsistency)
		}
	}

	if len(simplified) == 0 {
		simplified = []string{findingNominal}
	}

	return ueba.Verdict{
		Score:    verdict.Score,
		Status:   verdict.Status,
		Findings: simplified,
	}
}
