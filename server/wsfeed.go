package server

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 32 * 1024,
}

// httpLiveWS streams every appended frame result to the client as JSON, so
// a dashboard can render detections and alerts as they happen. Slow clients
// get frames dropped by the store's watcher channel, never a stalled
// analysis loop.
func (s *Server) httpLiveWS(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client
		s.Log.Warnf("Websocket upgrade failed: %v", err)
		return
	}

	id := s.wsID.Next()
	s.Log.Infof("Live feed %v connected from %v", id, r.RemoteAddr)

	ch := s.Store.AddWatcher()
	clientGone := make(chan bool)

	// The read pump exists only to notice the client going away
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		close(clientGone)
	}()

	go func() {
		defer func() {
			s.Store.RemoveWatcher(ch)
			conn.Close()
			s.Log.Infof("Live feed %v closed", id)
		}()
		for {
			select {
			case res := <-ch:
				if err := conn.WriteJSON(res); err != nil {
					return
				}
			case <-clientGone:
				return
			}
		}
	}()
}
