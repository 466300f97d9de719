// Package compliance classifies vehicle and driver document expiry dates
// against a reference day.
package compliance

import (
	"fmt"
	"time"

	"github.com/nurpe/tms-trips/internal/model"
)

type Classification string

const (
	Valid    Classification = "valid"
	Expiring Classification = "expiring"
	Expired  Classification = "expired"
	Missing  Classification = "missing"
)

const (
	CodeDocumentExpired  = "document_expired"
	CodeDocumentExpiring = "document_expiring"
	CodeDocumentMissing  = "document_missing"
	CodeKYCUnverified    = "kyc_unverified"
)

type Checker struct {
	warningDays   int
	strictMissing bool
}

// NewChecker builds a checker. warningDays is the inclusive window in which a
// document counts as expiring; strictMissing makes a missing mandatory
// document blocking.
func NewChecker(warningDays int, strictMissing bool) *Checker {
	if warningDays <= 0 {
		warningDays = 30
	}
	return &Checker{warningDays: warningDays, strictMissing: strictMissing}
}

// Classify returns the class of a document date and the whole days left
// until it (negative once expired).
func (c *Checker) Classify(expiry *time.Time, ref time.Time) (Classification, int) {
	if expiry == nil || expiry.IsZero() {
		return Missing, 0
	}
	day := dateOnly(*expiry)
	today := dateOnly(ref)
	daysLeft := int(day.Sub(today).Hours() / 24)

	switch {
	case day.Before(today):
		return Expired, daysLeft
	case daysLeft <= c.warningDays:
		return Expiring, daysLeft
	default:
		return Valid, daysLeft
	}
}

type document struct {
	field     string
	label     string
	date      *time.Time
	mandatory bool
}

// Check returns findings for every document that is not valid. Either
// argument may be nil.
func (c *Checker) Check(vehicle *model.Vehicle, driver *model.Driver, ref time.Time) model.Findings {
	var docs []document
	if vehicle != nil {
		docs = append(docs,
			document{"vehicle.registration_expiry", "vehicle RC", vehicle.RegistrationExpiry, true},
			document{"vehicle.insurance_expiry", "vehicle insurance", vehicle.InsuranceExpiry, true},
			document{"vehicle.permit_expiry", "vehicle permit", vehicle.PermitExpiry, false},
			document{"vehicle.fitness_expiry", "vehicle fitness certificate", vehicle.FitnessExpiry, false},
			document{"vehicle.pollution_expiry", "vehicle PUC certificate", vehicle.PollutionExpiry, false},
		)
	}
	if driver != nil {
		docs = append(docs, document{"driver.license_expiry", "driver license", driver.LicenseExpiry, true})
	}

	findings := make(model.Findings, 0)
	for _, doc := range docs {
		if finding, ok := c.checkDocument(doc, ref); ok {
			findings = append(findings, finding)
		}
	}

	if driver != nil {
		if !driver.AadhaarVerified {
			findings = append(findings, model.WarningFinding("driver.aadhaar_verified", CodeKYCUnverified,
				fmt.Sprintf("driver %s Aadhaar is not verified", driver.Name)))
		}
		if !driver.PanVerified {
			findings = append(findings, model.WarningFinding("driver.pan_verified", CodeKYCUnverified,
				fmt.Sprintf("driver %s PAN is not verified", driver.Name)))
		}
	}
	return findings
}

func (c *Checker) checkDocument(doc document, ref time.Time) (model.Finding, bool) {
	class, daysLeft := c.Classify(doc.date, ref)
	switch class {
	case Valid:
		return model.Finding{}, false
	case Expired:
		msg := fmt.Sprintf("%s expired on %s", doc.label, doc.date.Format("2006-01-02"))
		if doc.mandatory {
			return model.ErrorFinding(doc.field, CodeDocumentExpired, msg), true
		}
		return model.WarningFinding(doc.field, CodeDocumentExpired, msg), true
	case Expiring:
		msg := fmt.Sprintf("%s expires in %d days (%s)", doc.label, daysLeft, doc.date.Format("2006-01-02"))
		return model.WarningFinding(doc.field, CodeDocumentExpiring, msg), true
	case Missing:
		msg := fmt.Sprintf("%s expiry date is missing", doc.label)
		if doc.mandatory && c.strictMissing {
			return model.ErrorFinding(doc.field, CodeDocumentMissing, msg), true
		}
		return model.WarningFinding(doc.field, CodeDocumentMissing, msg), true
	default:
		return model.Finding{}, false
	}
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
