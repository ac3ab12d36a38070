package idle

// FastForward computes how many repetitions of an activity completed
// across an offline gap, and where the resumed repetition picks up.
//
// Progress is capped at capMs past the logout. Repetitions that ended
// at or before the logout were already credited by the live timer and
// are skipped; after that, a repetition counts if it ends at or before
// the capped progress end. check is consulted once per prospective
// repetition, in order, with the 1-based repetition number; the first
// false stops counting and marks the activity exhausted (no resume).
//
// The returned resume start is shifted so the elapsed portion of the
// in-flight repetition is preserved against the real clock: a caller
// re-registering at resumeStartMs gets its next completion exactly
// durMs minus the already-elapsed time from now.
func FastForward(startMs, durMs, logoutMs, nowMs, capMs int64, check func(rep int) bool) (reps int, resumeStartMs int64, exhausted bool) {
	if durMs <= 0 {
		return 0, nowMs, true
	}

	progressEnd := logoutMs + capMs
	if nowMs < progressEnd {
		progressEnd = nowMs
	}

	ts := startMs
	for ts+durMs <= logoutMs {
		ts += durMs
	}
	for ts+durMs <= progressEnd {
		if check != nil && !check(reps+1) {
			return reps, ts, true
		}
		reps++
		ts += durMs
	}

	resumeStartMs = ts
	if ts < progressEnd {
		resumeStartMs = nowMs - (progressEnd - ts)
	}
	return reps, resumeStartMs, false
}
