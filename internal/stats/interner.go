package stats

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// interner assigns stable small-integer ids to distinct message strings.
// The text->id side is a lock-free concurrent map (grounded in bgpfix-bgpfix's
// use of xsync for its capability and KV tables) since it only ever grows and
// is read-mostly; the id->text side is a plain append-only slice guarded by
// a RWMutex. In this module every intern and lookup call runs on the stats
// consumer goroutine (snapshots and alert checks are built there), so the
// reporter never reads the interner directly.
type interner struct {
	mu    sync.RWMutex
	texts []string
	ids   *xsync.MapOf[string, uint64]
}

func newInterner() *interner {
	return &interner{
		ids: xsync.NewMapOf[string, uint64](),
	}
}

// intern returns text's existing id, or assigns and returns a new one.
// Only ever called from the stats consumer goroutine.
func (in *interner) intern(text string) uint64 {
	if id, ok := in.ids.Load(text); ok {
		return id
	}

	in.mu.Lock()
	id := uint64(len(in.texts))
	in.texts = append(in.texts, text)
	in.mu.Unlock()

	in.ids.Store(text, id)
	return id
}

// lookup returns the text for id, or "N/A" if id is out of range. Safe to
// call concurrently with intern.
func (in *interner) lookup(id uint64) string {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if id >= uint64(len(in.texts)) {
		return `N/A`
	}
	return in.texts[id]
}
