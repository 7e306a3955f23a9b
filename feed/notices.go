package feed

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type NoticeLevel string

const (
	NoticeInfo  NoticeLevel = "info"
	NoticeError NoticeLevel = "error"
)

// Notice is a transient, dismissible message for the user
type Notice struct {
	ID        string      `json:"id"`
	Message   string      `json:"message"`
	Level     NoticeLevel `json:"level"`
	CreatedAt time.Time   `json:"createdAt"`
}

// Notifier receives user-facing notices
type Notifier interface {
	Notify(n Notice)
}

// NewNotice builds a notice with a fresh id
func NewNotice(level NoticeLevel, message string, now time.Time) Notice {
	return Notice{
		ID:        uuid.NewString(),
		Message:   message,
		Level:     level,
		CreatedAt: now,
	}
}

// NoticeBoard keeps notices until they are dismissed or older than ttl
type NoticeBoard struct {
	mutex   sync.Mutex
	ttl     time.Duration
	notices map[string]Notice
}

// NewNoticeBoard creates a notice board; a ttl of zero keeps notices until dismissed
func NewNoticeBoard(ttl time.Duration) *NoticeBoard {
	return &NoticeBoard{
		ttl:     ttl,
		notices: make(map[string]Notice),
	}
}

func (nb *NoticeBoard) Notify(n Notice) {
	nb.mutex.Lock()
	defer nb.mutex.Unlock()
	nb.notices[n.ID] = n
}

// Active returns the notices still showing at now, oldest first, and drops expired ones
func (nb *NoticeBoard) Active(now time.Time) []Notice {
	nb.mutex.Lock()
	defer nb.mutex.Unlock()

	active := make([]Notice, 0, len(nb.notices))
	for id, n := range nb.notices {
		if nb.ttl > 0 && now.Sub(n.CreatedAt) >= nb.ttl {
			delete(nb.notices, id)
			continue
		}
		active = append(active, n)
	}
	sort.Slice(active, func(i, j int) bool {
		if active[i].CreatedAt.Equal(active[j].CreatedAt) {
			return active[i].ID < active[j].ID
		}
		return active[i].CreatedAt.Before(active[j].CreatedAt)
	})
	return active
}

// Dismiss removes a notice and reports whether it was showing
func (nb *NoticeBoard) Dismiss(id string) bool {
	nb.mutex.Lock()
	defer nb.mutex.Unlock()
	_, ok := nb.notices[id]
	delete(nb.notices, id)
	return ok
}
