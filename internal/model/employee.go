package model

// EmployeeProfile is the snapshot serialized into the employee vector. The
// auth collaborator owns the canonical profile; this is what was embedded.
type EmployeeProfile struct {
	Name        string `json:"name"`
	Title       string `json:"title"`
	Email       string `json:"email"`
	Specialties string `json:"specialties"`
}

type EmployeeEmbedding struct {
	ID       int64            `json:"-"`
	OrgID    string           `json:"org_id"`
	UserID   string           `json:"user_id"`
	VectorID string           `json:"vector_id"`
	Profile  *EmployeeProfile `json:"profile"`
	Mtime    int64            `json:"last_updated"`
}
