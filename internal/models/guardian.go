package models

// Guardian is a parent or other adult linked to one or more students.
type Guardian struct {
	ID       string  `db:"id" json:"id"`
	FullName string  `db:"full_name" json:"full_name"`
	Email    *string `db:"email" json:"email,omitempty"`
	Phone    *string `db:"phone" json:"phone,omitempty"`
}

// GuardianLink joins a financially responsible guardian to a student.
type GuardianLink struct {
	Guardian
	StudentID    string `db:"student_id" json:"student_id"`
	StudentName  string `db:"student_name" json:"student_name"`
	StudentNIS   string `db:"student_nis" json:"student_nis"`
	Relationship string `db:"relationship" json:"relationship"`
}
