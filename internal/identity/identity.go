// Package identity defines who is calling. Identity is a closed set: only the
// four types in this file implement it, so a type switch over them is
// exhaustive and adding a role is a compile-visible change.
package identity

import "fmt"

type Role string

const (
	RoleAnonymous Role = ""
	RoleAdmin     Role = "admin"
	RoleDoctor    Role = "doctor"
	RolePatient   Role = "patient"
)

// Identity is one of Anonymous, Admin, Doctor or Patient.
type Identity interface {
	Role() Role
	// ID is the store id (doctor, patient) or the provider subject (admin).
	ID() string
	sealed()
}

type Anonymous struct{}

// Admin is authenticated by the identity provider.
type Admin struct {
	SubjectID string
}

type Doctor struct {
	DoctorID   string
	Name       string
	Phone      string
	HospitalID string
}

type Patient struct {
	PatientID string
	Name      string
	DoctorID  string
}

func (Anonymous) Role() Role { return RoleAnonymous }
func (Admin) Role() Role     { return RoleAdmin }
func (Doctor) Role() Role    { return RoleDoctor }
func (Patient) Role() Role   { return RolePatient }

func (Anonymous) ID() string { return "" }
func (a Admin) ID() string   { return a.SubjectID }
func (d Doctor) ID() string  { return d.DoctorID }
func (p Patient) ID() string { return p.PatientID }

func (Anonymous) sealed() {}
func (Admin) sealed()     {}
func (Doctor) sealed()    {}
func (Patient) sealed()   {}

// Authenticated reports whether id is anything but Anonymous.
func Authenticated(id Identity) bool {
	if id == nil {
		return false
	}
	_, anon := id.(Anonymous)
	return !anon
}

// ParseRole accepts the wire spelling of a role.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin, RoleDoctor, RolePatient:
		return Role(s), nil
	}
	return RoleAnonymous, fmt.Errorf("unknown role %q", s)
}
