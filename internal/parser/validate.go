package parser

import (
	"errors"
	"fmt"
	"log"
	"math"
	"strings"

	"fleet-ops-dashboard/internal/models"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateRecord validates a vehicle record and returns every problem found
func ValidateRecord(v *models.VehicleRecord) []string {
	var problems []string

	if err := validate.Struct(v); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				problems = append(problems, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
			}
		} else {
			problems = append(problems, err.Error())
		}
	}

	if lat := v.Latitude; lat != nil && (math.IsNaN(*lat) || *lat < -90 || *lat > 90) {
		problems = append(problems, "latitude must be between -90 and 90")
	}
	if lng := v.Longitude; lng != nil && (math.IsNaN(*lng) || *lng < -180 || *lng > 180) {
		problems = append(problems, "longitude must be between -180 and 180")
	}

	return problems
}

// Normalize turns raw records into a snapshot. Records without an id cannot
// be keyed and are dropped; out-of-range coordinates are cleared so the
// record is kept but treated as unlocatable.
func Normalize(records []models.VehicleRecord) (*models.FleetSnapshot, []error) {
	var errs []error
	kept := make([]models.VehicleRecord, 0, len(records))

	for _, r := range records {
		if strings.TrimSpace(r.VehicleID) == "" {
			errs = append(errs, &models.MalformedRecordError{Reason: "missing vehicle_id"})
			continue
		}
		for _, problem := range ValidateRecord(&r) {
			if strings.HasPrefix(problem, "latitude") || strings.HasPrefix(problem, "longitude") {
				r.Latitude, r.Longitude = nil, nil
			}
			errs = append(errs, &models.MalformedRecordError{VehicleID: r.VehicleID, Reason: problem})
		}
		kept = append(kept, r)
	}

	return models.NewSnapshot(kept), errs
}

// LogProblems reports normalization problems without failing the batch
func LogProblems(source string, errs []error) {
	for _, err := range errs {
		log.Printf("⚠️  %s: %v", source, err)
	}
}
