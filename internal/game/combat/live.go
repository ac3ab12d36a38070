package combat

import (
	"math/rand"

	"idlerealm.gg/internal/game/catalogs"
)

// Runner drives connected-play combat. It wraps the same tick engine
// the offline simulator uses, at full stats and full rewards, and
// keeps attack/regen countdowns across rounds so cadences slower than
// one round still fire. The wrapped State is mutated in place.
type Runner struct {
	eng *engine
}

func NewRunner(st *State, tickMs int, cats *catalogs.Catalogs, rng *rand.Rand) (*Runner, error) {
	eng, err := newEngine(st, tickMs, cats, rng, 1.0, 1.0)
	if err != nil {
		return nil, err
	}
	return &Runner{eng: eng}, nil
}

// Advance simulates elapsedMs of real time and returns what happened
// in just that span. Once the result reports UserDied or
// DungeonCleared the session is over and the runner must be discarded.
func (r *Runner) Advance(elapsedMs int64) (Result, error) {
	r.eng.resetResult()
	r.eng.run(elapsedMs / int64(r.eng.tickMs))
	if r.eng.err != nil {
		return Result{}, r.eng.err
	}
	return r.eng.res, nil
}
