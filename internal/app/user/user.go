/*
Package user defines the local user record kept by the directory and the sanitized
view of it that is handed to clients.
*/
package user

import (
	"encoding/json"

	"tideland.dev/go/slices"
)

// Record is a persisted directory entry. Password is stored as given and must never
// leave the process; use View for anything client facing.
type Record struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Password string   `json:"password"`
	ChatRefs []string `json:"chatRefs"`
}

// View is the client-facing projection of a Record.
type View struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	ChatRefs []string `json:"chatRefs"`
}

// View returns the sanitized projection of r. ChatRefs is never nil.
func (r *Record) View() View {
	return View{
		ID:       r.ID,
		Name:     r.Name,
		ChatRefs: r.ChatRefsCopy(),
	}
}

// ChatRefsCopy returns a copy of the chat references, never nil.
func (r *Record) ChatRefsCopy() []string {
	out := make([]string, len(r.ChatRefs))
	copy(out, r.ChatRefs)
	return out
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	c := *r
	c.ChatRefs = r.ChatRefsCopy()
	return &c
}

// HasChatRef reports whether chatID is already referenced.
func (r *Record) HasChatRef(chatID string) bool {
	return slices.IsMember(chatID, r.ChatRefs)
}

// legacyRecord accepts both the current field names and the ones used by
// documents written before the directory was rewritten (uuid, chat_ids).
type legacyRecord struct {
	ID       string   `json:"id"`
	UUID     string   `json:"uuid"`
	Name     string   `json:"name"`
	Password string   `json:"password"`
	ChatRefs []string `json:"chatRefs"`
	ChatIDs  []string `json:"chat_ids"`
}

// UnmarshalJSON decodes a record in either the current or the legacy layout.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw legacyRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	r.ID = raw.ID
	if r.ID == "" {
		r.ID = raw.UUID
	}
	r.Name = raw.Name
	r.Password = raw.Password
	r.ChatRefs = raw.ChatRefs
	if r.ChatRefs == nil {
		r.ChatRefs = raw.ChatIDs
	}
	if r.ChatRefs == nil {
		r.ChatRefs = []string{}
	}

	return nil
}
