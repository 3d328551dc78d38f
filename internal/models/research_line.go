package models

// ResearchLine groups tutors available to applicants of a process.
type ResearchLine struct {
	ID        string  `db:"id" json:"id"`
	ProcessID string  `db:"process_id" json:"processId"`
	Name      string  `db:"name" json:"name"`
	Tutors    []Tutor `db:"-" json:"tutors"`
}

// Tutor is a supervisor within a research line.
type Tutor struct {
	ID             string `db:"id" json:"id"`
	ResearchLineID string `db:"research_line_id" json:"researchLineId"`
	Name           string `db:"name" json:"name"`
}

// HasTutor reports whether the tutor belongs to the line.
func (r *ResearchLine) HasTutor(tutorID string) bool {
	for _, t := range r.Tutors {
		if t.ID == tutorID {
			return true
		}
	}
	return false
}
