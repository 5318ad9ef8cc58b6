package models

import "time"

// Language identifies the runtime a Program's source targets.
type Language string

const (
	LanguagePython Language = "python"
	LanguageCSharp Language = "csharp"
	LanguageJava   Language = "java"
	LanguageNodeJS Language = "nodejs"
)

// Program is static metadata for a user-authored program. It is immutable
// except for its current version pointer and permissions.
type Program struct {
	ID                string                 `json:"id"`
	Name              string                 `json:"name"`
	Language          Language               `json:"language"`
	UIType            string                 `json:"ui_type,omitempty"`
	CurrentVersionID  string                 `json:"current_version_id,omitempty"`
	Permissions       map[string]interface{} `json:"permissions,omitempty"`
	Metadata          map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt         time.Time              `json:"created_at"`
	UpdatedAt         time.Time              `json:"updated_at"`
}

// Validate validates required Program fields.
func (p *Program) Validate() error {
	if p.ID == "" {
		return &ValidationError{Field: "id", Message: "program ID is required"}
	}
	if p.Name == "" {
		return &ValidationError{Field: "name", Message: "program name is required"}
	}
	switch p.Language {
	case LanguagePython, LanguageCSharp, LanguageJava, LanguageNodeJS:
	default:
		return &ValidationError{Field: "language", Message: "unsupported language: " + string(p.Language)}
	}
	return nil
}

// VersionStatus is the approval state of a Version.
type VersionStatus string

const (
	VersionStatusPending  VersionStatus = "pending"
	VersionStatusApproved VersionStatus = "approved"
	VersionStatusRejected VersionStatus = "rejected"
)

// VersionFile describes a single file belonging to a Version, addressed by
// content hash in the external file store.
type VersionFile struct {
	Path       string `json:"path"`
	StorageKey string `json:"storage_key"`
	Hash       string `json:"hash"`
	Size       int64  `json:"size"`
	FileType   string `json:"file_type,omitempty"`
}

// Version is one immutable, numbered snapshot of a Program's source files.
// Only approved versions may execute.
type Version struct {
	ID        string        `json:"id"`
	ProgramID string        `json:"program_id"`
	Number    int           `json:"number"`
	Status    VersionStatus `json:"status"`
	Files     []VersionFile `json:"files"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// CanExecute reports whether this version may be dispatched for execution.
func (v *Version) CanExecute() bool {
	return v.Status == VersionStatusApproved
}

// Validate validates required Version fields.
func (v *Version) Validate() error {
	if v.ID == "" {
		return &ValidationError{Field: "id", Message: "version ID is required"}
	}
	if v.ProgramID == "" {
		return &ValidationError{Field: "program_id", Message: "program ID is required"}
	}
	if v.Number < 1 {
		return &ValidationError{Field: "number", Message: "version number must be >= 1"}
	}
	for _, f := range v.Files {
		if f.Path == "" {
			return &ValidationError{Field: "files", Message: "file path is required"}
		}
		if f.StorageKey == "" {
			return &ValidationError{Field: "files", Message: "file storage key is required"}
		}
	}
	return nil
}
