// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package server

import (
	"net/http"
	"time"

	"github.com/gomlx/trafficlight/controller"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"k8s.io/klog/v2"
)

// EventsBufferSize is the number of controller events queued per websocket client. Events are dropped
// for clients that fall further behind.
const EventsBufferSize = 32

const eventsWriteTimeout = 5 * time.Second

// httpEvents streams the controller events as JSON text messages, until the client disconnects.
// The first message is a snapshot of the current state, sent as an event of kind "tick".
func (s *Server) httpEvents(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	// Subscribe before the upgrade, so no event published after the client is connected is missed.
	events, cancel := s.config.Controller.Subscribe(EventsBufferSize)
	defer cancel()

	c, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		klog.Errorf("events websocket upgrade failed: %v", err)
		return
	}
	defer func() { _ = c.Close() }()
	clientID := uuid.NewString()
	klog.V(1).Infof("events client %s connected from %s", clientID, r.RemoteAddr)

	// Reading is needed to process control messages, and tells us when the client goes away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	state := s.config.Controller.State()
	snapshot := controller.Event{Kind: controller.TickEvent, Time: time.Now(), State: state, Remaining: state.Remaining}
	if !s.writeEvent(c, clientID, snapshot) {
		return
	}
	for {
		select {
		case <-closed:
			klog.V(1).Infof("events client %s disconnected", clientID)
			return
		case event, ok := <-events:
			if !ok {
				_ = c.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "controller closed"),
					time.Now().Add(eventsWriteTimeout))
				return
			}
			if !s.writeEvent(c, clientID, event) {
				return
			}
		}
	}
}

func (s *Server) writeEvent(c *websocket.Conn, clientID string, event controller.Event) bool {
	_ = c.SetWriteDeadline(time.Now().Add(eventsWriteTimeout))
	if err := c.WriteJSON(event); err != nil {
		klog.V(1).Infof("events client %s: write failed: %v", clientID, err)
		return false
	}
	return true
}
