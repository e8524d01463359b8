package mqttdev

import (
	"sort"

	"github.com/hmiforge/hmicore/internal/device"
)

// subscriptionSet is the reconciliation structure for one MQTT device.
//
// Invariant: a topic is subscribed at the broker iff it appears in byTopic
// or in at least one session's temporary set. Every mutation site funnels
// through needed() so the broker-side subscribe/unsubscribe decisions all
// derive from the same predicate.
//
// Owned by the device actor; never accessed from another goroutine.
type subscriptionSet struct {
	// byTopic maps each subscribed topic to its bound variable.
	// Rebuilt whenever the device's variable list changes.
	byTopic map[string]device.Variable

	// temp holds the ad-hoc topics claimed by each UI session.
	temp map[string]map[string]struct{}
}

func newSubscriptionSet() *subscriptionSet {
	return &subscriptionSet{
		byTopic: make(map[string]device.Variable),
		temp:    make(map[string]map[string]struct{}),
	}
}

// buildTopicMap indexes the subscribing variables by topic.
// Variables with subscribing disabled never enter the map.
func buildTopicMap(vars []device.Variable) map[string]device.Variable {
	m := make(map[string]device.Variable, len(vars))
	for _, v := range vars {
		if v.Subscribes() {
			m[v.SubscribeTopic] = v
		}
	}
	return m
}

// needed is the topic-needed predicate: true iff the topic must remain
// subscribed at the broker.
func (s *subscriptionSet) needed(topic string) bool {
	if _, ok := s.byTopic[topic]; ok {
		return true
	}
	return s.tempClaims(topic)
}

// tempClaims reports whether any session's temporary set contains topic.
func (s *subscriptionSet) tempClaims(topic string) bool {
	for _, topics := range s.temp {
		if _, ok := topics[topic]; ok {
			return true
		}
	}
	return false
}

// claimants returns the IDs of every session whose temporary set contains
// topic, sorted for deterministic fan-out.
func (s *subscriptionSet) claimants(topic string) []string {
	var ids []string
	for sessionID, topics := range s.temp {
		if _, ok := topics[topic]; ok {
			ids = append(ids, sessionID)
		}
	}
	sort.Strings(ids)
	return ids
}

// addTemp records a session's claim on a topic.
func (s *subscriptionSet) addTemp(sessionID, topic string) {
	topics, ok := s.temp[sessionID]
	if !ok {
		topics = make(map[string]struct{})
		s.temp[sessionID] = topics
	}
	topics[topic] = struct{}{}
}

// hasTemp reports whether a session currently claims a topic.
func (s *subscriptionSet) hasTemp(sessionID, topic string) bool {
	topics, ok := s.temp[sessionID]
	if !ok {
		return false
	}
	_, ok = topics[topic]
	return ok
}

// removeTemp drops a session's claim on a topic.
func (s *subscriptionSet) removeTemp(sessionID, topic string) {
	topics, ok := s.temp[sessionID]
	if !ok {
		return
	}
	delete(topics, topic)
	if len(topics) == 0 {
		delete(s.temp, sessionID)
	}
}

// purgeSession drops every claim held by a session and returns the topics
// that are no longer needed by anyone afterwards.
func (s *subscriptionSet) purgeSession(sessionID string) []string {
	topics, ok := s.temp[sessionID]
	if !ok {
		return nil
	}
	delete(s.temp, sessionID)

	var released []string
	for topic := range topics {
		if !s.needed(topic) {
			released = append(released, topic)
		}
	}
	sort.Strings(released)
	return released
}

// tempTopics returns the deduplicated set of all temporarily claimed
// topics, sorted.
func (s *subscriptionSet) tempTopics() []string {
	seen := make(map[string]struct{})
	for _, topics := range s.temp {
		for topic := range topics {
			seen[topic] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for topic := range seen {
		out = append(out, topic)
	}
	sort.Strings(out)
	return out
}

// trackedTopics returns every topic currently subscribed at the broker
// (persistent union temporary), sorted.
func (s *subscriptionSet) trackedTopics() []string {
	seen := make(map[string]struct{}, len(s.byTopic))
	for topic := range s.byTopic {
		seen[topic] = struct{}{}
	}
	for _, topics := range s.temp {
		for topic := range topics {
			seen[topic] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for topic := range seen {
		out = append(out, topic)
	}
	sort.Strings(out)
	return out
}

// clear resets both maps. Used on explicit disconnect; local bookkeeping
// must not survive a torn-down connection.
func (s *subscriptionSet) clear() {
	s.byTopic = make(map[string]device.Variable)
	s.temp = make(map[string]map[string]struct{})
}
