package model

import "time"

// Collection names a document collection.
type Collection string

const (
	Admins        Collection = "admins"
	Doctors       Collection = "doctors"
	Patients      Collection = "patients"
	Reports       Collection = "reports"
	Reminders     Collection = "reminders"
	Prescriptions Collection = "prescriptions"
)

// Child reports whether c holds per-patient medical data.
func (c Collection) Child() bool {
	return c == Reports || c == Reminders || c == Prescriptions
}

// stored field names used by predicates and stamps
const (
	FieldPhone       = "phone"
	FieldHospitalID  = "hospitalId"
	FieldDoctorID    = "doctorId"
	FieldDoctorName  = "doctorName"
	FieldDoctorPhone = "doctorPhone"
	FieldPatientID   = "patientId"
	FieldPatientName = "patientName"
	FieldSecretHash  = "secretHash"
	FieldCreatedAt   = "createdAt"
	FieldUpdatedAt   = "updatedAt"
)

// OwnerFields lists the keys of c that no update may change. On doctors,
// doctorId is the editable display id.
func (c Collection) OwnerFields() []string {
	switch c {
	case Doctors:
		return []string{FieldHospitalID, FieldCreatedAt}
	case Patients:
		return []string{FieldDoctorID, FieldCreatedAt}
	}
	return []string{FieldPatientID, FieldDoctorID, FieldCreatedAt}
}

type Admin struct {
	ID           string    `bson:"-" json:"id"`
	SubjectID    string    `bson:"subjectId" json:"subjectId"`
	Phone        string    `bson:"phone" json:"phone"`
	Name         string    `bson:"name" json:"name"`
	HospitalName string    `bson:"hospitalName" json:"hospitalName"`
	Email        string    `bson:"email" json:"email"`
	Role         string    `bson:"role" json:"role"`
	CreatedAt    time.Time `bson:"createdAt" json:"createdAt"`
}

type Doctor struct {
	ID             string    `bson:"-" json:"id"`
	DisplayID      string    `bson:"doctorId" json:"doctorId"`
	Name           string    `bson:"name" json:"name"`
	Phone          string    `bson:"phone" json:"phone"`
	Specialization string    `bson:"specialization" json:"specialization"`
	SecretHash     string    `bson:"secretHash" json:"-"`
	Email          string    `bson:"email" json:"email"`
	HospitalID     string    `bson:"hospitalId" json:"hospitalId"`
	Status         string    `bson:"status" json:"status"`
	Role           string    `bson:"role" json:"role"`
	CreatedAt      time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time `bson:"updatedAt,omitempty" json:"updatedAt,omitempty"`
}

type Patient struct {
	ID         string    `bson:"-" json:"id"`
	Name       string    `bson:"name" json:"name"`
	Phone      string    `bson:"phone" json:"phone"`
	Age        string    `bson:"age" json:"age"`
	Gender     string    `bson:"gender" json:"gender"`
	Address    string    `bson:"address" json:"address"`
	SecretHash string    `bson:"secretHash" json:"-"`
	DoctorID   string    `bson:"doctorId" json:"doctorId"`
	DoctorName string    `bson:"doctorName" json:"doctorName"`
	CreatedAt  time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt  time.Time `bson:"updatedAt,omitempty" json:"updatedAt,omitempty"`
}

type Report struct {
	ID              string    `bson:"-" json:"id"`
	PatientID       string    `bson:"patientId" json:"patientId"`
	PatientName     string    `bson:"patientName" json:"patientName"`
	DoctorID        string    `bson:"doctorId" json:"doctorId"`
	DoctorName      string    `bson:"doctorName" json:"doctorName"`
	DoctorPhone     string    `bson:"doctorPhone" json:"doctorPhone"`
	BP              string    `bson:"bp" json:"bp"`
	Sugar           string    `bson:"sugar" json:"sugar"`
	Weight          string    `bson:"weight" json:"weight"`
	Temperature     string    `bson:"temperature" json:"temperature"`
	RBC             string    `bson:"rbc" json:"rbc"`
	WBC             string    `bson:"wbc" json:"wbc"`
	Platelets       string    `bson:"platelets" json:"platelets"`
	AdditionalNotes string    `bson:"additionalNotes" json:"additionalNotes"`
	CreatedAt       time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time `bson:"updatedAt,omitempty" json:"updatedAt,omitempty"`
}

type Reminder struct {
	ID          string    `bson:"-" json:"id"`
	PatientID   string    `bson:"patientId" json:"patientId"`
	PatientName string    `bson:"patientName" json:"patientName"`
	DoctorID    string    `bson:"doctorId" json:"doctorId"`
	DoctorName  string    `bson:"doctorName" json:"doctorName"`
	Title       string    `bson:"title" json:"title"`
	Description string    `bson:"description" json:"description"`
	Date        string    `bson:"date" json:"date"`
	Time        string    `bson:"time" json:"time"`
	Completed   bool      `bson:"completed" json:"completed"`
	CreatedAt   time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time `bson:"updatedAt,omitempty" json:"updatedAt,omitempty"`
}

type Prescription struct {
	ID              string    `bson:"-" json:"id"`
	PatientID       string    `bson:"patientId" json:"patientId"`
	PatientName     string    `bson:"patientName" json:"patientName"`
	DoctorID        string    `bson:"doctorId" json:"doctorId"`
	DoctorName      string    `bson:"doctorName" json:"doctorName"`
	Medicine        string    `bson:"medicine" json:"medicine"`
	Dosage          string    `bson:"dosage" json:"dosage"`
	Frequency       string    `bson:"frequency" json:"frequency"`
	Timing          string    `bson:"timing" json:"timing"`
	Duration        string    `bson:"duration" json:"duration"`
	Instructions    string    `bson:"instructions" json:"instructions"`
	BeforeAfterFood string    `bson:"beforeAfterFood" json:"beforeAfterFood"`
	CreatedAt       time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time `bson:"updatedAt,omitempty" json:"updatedAt,omitempty"`
}

func (a *Admin) SetID(id string)        { a.ID = id }
func (d *Doctor) SetID(id string)       { d.ID = id }
func (p *Patient) SetID(id string)      { p.ID = id }
func (r *Report) SetID(id string)       { r.ID = id }
func (r *Reminder) SetID(id string)     { r.ID = id }
func (p *Prescription) SetID(id string) { p.ID = id }
