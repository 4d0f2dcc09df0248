// Package featureflags evaluates runtime feature switches per feed session.
package featureflags

import (
	"hash/fnv"
	"strconv"
	"strings"
)

// ReconcileLikeCounts makes a freshly loaded post start with
// likeCount == len(likedBy) instead of the provider's count.
const ReconcileLikeCounts = "reconcile_like_counts"

// rule is one parsed flag. percent is only meaningful for rollout rules.
type rule struct {
	raw     string
	on      bool
	rollout bool
	percent int
}

func parseRule(value string) (rule, bool) {
	r := rule{raw: value}
	switch value {
	case "on", "true", "1":
		r.on = true
		return r, true
	case "off", "false", "0":
		return r, true
	}

	pct, found := strings.CutSuffix(value, "%")
	if !found {
		return r, false
	}
	n, err := strconv.Atoi(pct)
	if err != nil {
		return r, false
	}
	r.rollout = true
	r.percent = min(max(n, 0), 100)
	return r, true
}

// Manager holds flags parsed from a comma separated key=value list, for
// example "reconcile_like_counts=on,new_feed=25%". Values are on/off
// (true/false, 1/0) or an N% rollout bucketed by session ID.
type Manager struct {
	rules map[string]rule
}

// NewManager parses raw. Malformed entries and unknown values are ignored.
func NewManager(raw string) *Manager {
	rules := make(map[string]rule)
	for entry := range strings.SplitSeq(raw, ",") {
		key, value, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		key, value = normalize(key), normalize(value)
		if key == "" {
			continue
		}
		if r, ok := parseRule(value); ok {
			rules[key] = r
		}
	}
	return &Manager{rules: rules}
}

// Enabled reports whether name is on for the given session. Rollouts need a
// session ID; without one only a 100% rollout is on.
func (m *Manager) Enabled(name, sessionID string) bool {
	if m == nil {
		return false
	}
	r, ok := m.rules[normalize(name)]
	switch {
	case !ok:
		return false
	case !r.rollout:
		return r.on
	case r.percent >= 100:
		return true
	case r.percent == 0 || sessionID == "":
		return false
	}
	return bucket(normalize(name), sessionID) < r.percent
}

// Raw returns the configured values keyed by flag name.
func (m *Manager) Raw() map[string]string {
	out := make(map[string]string, len(m.rules))
	for name, r := range m.rules {
		out[name] = r.raw
	}
	return out
}

// Snapshot evaluates every configured flag for one session.
func (m *Manager) Snapshot(sessionID string) map[string]bool {
	out := make(map[string]bool, len(m.rules))
	for name := range m.rules {
		out[name] = m.Enabled(name, sessionID)
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func bucket(name, sessionID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name + ":" + sessionID))
	return int(h.Sum32() % 100)
}
