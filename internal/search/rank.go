package search

import (
	"sort"
	"time"

	"sessiongrep/internal/session"
)

// effectiveTime picks a session's display timestamp by walking the
// configured order of fields ("updated", "started", "fallback") and taking
// the first one that is set.
func effectiveTime(ref session.Ref, order []string) (time.Time, bool) {
	for _, field := range order {
		var t time.Time
		switch field {
		case "updated":
			t = ref.LastUpdated
		case "started":
			t = ref.StartTime
		case "fallback":
			t = ref.Fallback
		}
		if !t.IsZero() {
			return t, true
		}
	}
	return time.Time{}, false
}

// rank orders candidates oldest first, so the most recent session sits at
// the bottom of the printed list next to the prompt. Sessions with no
// usable timestamp sort before everything else; ties keep enumeration
// order. Ranks are assigned 1..N after any MaxResults truncation, which
// keeps the newest tail.
func rank(cands []session.Candidate, order []string, maxResults int) []session.Candidate {
	sort.SliceStable(cands, func(i, j int) bool {
		ti, iok := effectiveTime(cands[i].Ref, order)
		tj, jok := effectiveTime(cands[j].Ref, order)
		if iok != jok {
			return !iok
		}
		if !iok {
			return false
		}
		return ti.Before(tj)
	})
	if maxResults > 0 && len(cands) > maxResults {
		cands = cands[len(cands)-maxResults:]
	}
	for i := range cands {
		cands[i].Rank = i + 1
	}
	return cands
}
