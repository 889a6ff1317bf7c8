package records

import (
	"fmt"
	"strings"

	"healthcare-records-api/internal/apperr"
)

// Inputs are the editable parts of each entity. Owner and audit fields are
// never taken from callers.

type DoctorInput struct {
	DisplayID      string `bson:"doctorId" json:"doctorId"`
	Name           string `bson:"name" json:"name"`
	Phone          string `bson:"phone" json:"phone"`
	Specialization string `bson:"specialization" json:"specialization"`
	Status         string `bson:"status,omitempty" json:"status,omitempty"`
	Secret         string `bson:"-" json:"secret,omitempty"`
}

type PatientInput struct {
	Name    string `bson:"name" json:"name"`
	Phone   string `bson:"phone" json:"phone"`
	Age     string `bson:"age" json:"age"`
	Gender  string `bson:"gender" json:"gender"`
	Address string `bson:"address" json:"address"`
	Secret  string `bson:"-" json:"secret,omitempty"`
}

type ReportInput struct {
	BP              string `bson:"bp" json:"bp"`
	Sugar           string `bson:"sugar" json:"sugar"`
	Weight          string `bson:"weight" json:"weight"`
	Temperature     string `bson:"temperature" json:"temperature"`
	RBC             string `bson:"rbc" json:"rbc"`
	WBC             string `bson:"wbc" json:"wbc"`
	Platelets       string `bson:"platelets" json:"platelets"`
	AdditionalNotes string `bson:"additionalNotes" json:"additionalNotes"`
}

type ReminderInput struct {
	Title       string `bson:"title" json:"title"`
	Description string `bson:"description" json:"description"`
	Date        string `bson:"date" json:"date"`
	Time        string `bson:"time" json:"time"`
	Completed   bool   `bson:"completed" json:"completed"`
}

type PrescriptionInput struct {
	Medicine        string `bson:"medicine" json:"medicine"`
	Dosage          string `bson:"dosage" json:"dosage"`
	Frequency       string `bson:"frequency" json:"frequency"`
	Timing          string `bson:"timing" json:"timing"`
	Duration        string `bson:"duration" json:"duration"`
	Instructions    string `bson:"instructions" json:"instructions"`
	BeforeAfterFood string `bson:"beforeAfterFood" json:"beforeAfterFood"`
}

// require fails with ErrInvalidArgument naming every blank field.
func require(kv ...string) error {
	var missing []string
	for i := 0; i+1 < len(kv); i += 2 {
		if strings.TrimSpace(kv[i+1]) == "" {
			missing = append(missing, kv[i])
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s required", apperr.ErrInvalidArgument, strings.Join(missing, ", "))
	}
	return nil
}

func (in DoctorInput) validate(creating bool) error {
	if creating {
		return require("name", in.Name, "phone", in.Phone, "secret", in.Secret)
	}
	return require("name", in.Name, "phone", in.Phone)
}

func (in PatientInput) validate(creating bool) error {
	if creating {
		return require("name", in.Name, "phone", in.Phone, "secret", in.Secret)
	}
	return require("name", in.Name, "phone", in.Phone)
}

func (in ReportInput) validate() error { return nil }

func (in ReminderInput) validate() error {
	return require("title", in.Title, "date", in.Date, "time", in.Time)
}

func (in PrescriptionInput) validate() error {
	return require("medicine", in.Medicine, "dosage", in.Dosage)
}
