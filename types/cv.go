package types

import "time"

// CV is a user's curriculum vitae. Each user owns at most one CV;
// the document body is stored as a single JSON column.
type CV struct {
	// ID is the unique identifier of the CV (UUIDv4).
	ID string `json:"id" db:"id"`

	// UserID references the owning user; unique, cascade-deleted.
	UserID string `json:"user_id" db:"user_id"`

	// Content is the structured CV document.
	Content CVContent `json:"content" db:"content"`

	// PhotoKey is the object-storage key of the CV photo, empty when
	// no photo has been uploaded.
	PhotoKey string `json:"photo_key,omitempty" db:"photo_key"`

	// CreatedAt is the timestamp when the CV was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the CV.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// CVContent is the editable body of a CV.
type CVContent struct {
	Personal   PersonalInfo `json:"personal"`
	Summary    string       `json:"summary,omitempty"`
	Experience []Experience `json:"experience,omitempty"`
	Education  []Education  `json:"education,omitempty"`
	Skills     []string     `json:"skills,omitempty"`
}

// PersonalInfo holds the contact block of a CV.
type PersonalInfo struct {
	FullName string `json:"full_name"`
	Title    string `json:"title,omitempty"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Location string `json:"location,omitempty"`
	Website  string `json:"website,omitempty"`
}

// Experience is a single work history entry.
type Experience struct {
	Company     string `json:"company"`
	Position    string `json:"position"`
	StartDate   string `json:"start_date,omitempty"`
	EndDate     string `json:"end_date,omitempty"`
	Description string `json:"description,omitempty"`
}

// Education is a single education history entry.
type Education struct {
	School    string `json:"school"`
	Degree    string `json:"degree,omitempty"`
	Field     string `json:"field,omitempty"`
	StartYear int    `json:"start_year,omitempty"`
	EndYear   int    `json:"end_year,omitempty"`
}

// CVSummary is a listing row for admin views: the CV joined with its
// owner's identity fields.
type CVSummary struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	UserEmail string    `json:"user_email"`
	Content   CVContent `json:"content"`
	UpdatedAt time.Time `json:"updated_at"`
}
