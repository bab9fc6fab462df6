package model

import "time"

// MaxFolderDepth is the deepest a folder may sit; a root folder is at depth 1.
// Creates and moves that would exceed it are rejected with ErrFolderTooDeep,
// so an ancestor walk that runs past it means the stored tree is corrupt.
const MaxFolderDepth = 64

// Folder is an organizational node scoped to a case. A nil ParentID marks a
// root folder.
type Folder struct {
	ID        string    `json:"id" yaml:"id"`
	CaseID    string    `json:"caseId" yaml:"case_id"`
	ParentID  *string   `json:"parentId,omitempty" yaml:"parent_id,omitempty"`
	Name      string    `json:"name" yaml:"name"`
	CreatedBy string    `json:"createdBy" yaml:"created_by"`
	CreatedAt time.Time `json:"createdAt" yaml:"created_at"`
}

// Clone returns a copy that does not share the ParentID pointer.
func (f *Folder) Clone() *Folder {
	c := *f
	c.ParentID = cloneString(f.ParentID)
	return &c
}
