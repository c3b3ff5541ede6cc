package project

import "time"

// FileContent holds the text of a single generated or saved file.
type FileContent struct {
	Contents string `json:"contents"`
}

// FileNode is one entry in a project file tree. The shape mirrors the
// in-browser container format the frontend mounts directly.
type FileNode struct {
	File *FileContent `json:"file,omitempty"`
}

// FileTree maps file paths to their contents.
type FileTree map[string]FileNode

// Project is a collaborative workspace. Members chat in the project's
// room and share its file tree.
type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedBy string    `json:"createdBy"`
	Users     []string  `json:"users"`
	FileTree  FileTree  `json:"fileTree,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// HasMember reports whether the given user id is a member of the project.
func (p *Project) HasMember(userID string) bool {
	for _, id := range p.Users {
		if id == userID {
			return true
		}
	}
	return false
}
