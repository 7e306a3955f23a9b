package feed

import "sync"

// Identity supplies the id of the authenticated user, if any
type Identity interface {
	UserID() (string, bool)
}

// CurrentUser is an Identity that the session collaborator signs in and out
type CurrentUser struct {
	mutex sync.RWMutex
	id    string
}

// NewCurrentUser returns an identity signed in as id, or signed out when id is empty
func NewCurrentUser(id string) *CurrentUser {
	return &CurrentUser{id: id}
}

func (cu *CurrentUser) UserID() (string, bool) {
	cu.mutex.RLock()
	defer cu.mutex.RUnlock()
	return cu.id, cu.id != ""
}

func (cu *CurrentUser) Set(id string) {
	cu.mutex.Lock()
	defer cu.mutex.Unlock()
	cu.id = id
}

func (cu *CurrentUser) Clear() {
	cu.Set("")
}
