package aggstore

import (
	"github.com/ppecam/ppecam/pkg/gen"
	"github.com/ppecam/ppecam/server/reconcile"
)

// SYNC-WATCHER-CHANNEL-SIZE
const WatcherChannelSize = 100

// AddWatcher registers to receive every frame result appended to the store.
// The live dashboard feed hangs off this.
func (s *Store) AddWatcher() chan *reconcile.FrameResult {
	s.watchersLock.Lock()
	defer s.watchersLock.Unlock()
	ch := make(chan *reconcile.FrameResult, WatcherChannelSize)
	s.watchers = append(s.watchers, ch)
	return ch
}

// RemoveWatcher unregisters a watcher channel.
func (s *Store) RemoveWatcher(ch chan *reconcile.FrameResult) {
	s.watchersLock.Lock()
	defer s.watchersLock.Unlock()
	for i, w := range s.watchers {
		if w == ch {
			s.watchers = gen.DeleteFromSliceUnordered(s.watchers, i)
			return
		}
	}
	s.log.Warnf("Store.RemoveWatcher failed to find channel")
}

func (s *Store) sendToWatchers(res *reconcile.FrameResult) {
	s.watchersLock.RLock()
	for _, ch := range s.watchers {
		// SYNC-WATCHER-CHANNEL-SIZE
		if len(ch) >= cap(ch)*9/10 {
			// A watcher stalling on IO must not stall the analysis loop,
			// so we drop frames instead of blocking.
			s.log.Warnf("Store watcher is falling behind. I am going to drop frames.")
		} else {
			ch <- res
		}
	}
	s.watchersLock.RUnlock()
}
