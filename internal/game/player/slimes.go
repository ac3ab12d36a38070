package player

import (
	"math/rand"

	"github.com/google/uuid"
)

// Slime is a breedable companion creature. Generation drives breeding
// duration; species is cosmetic and inherited from one parent.
type Slime struct {
	ID         uuid.UUID `json:"id"`
	Species    string    `json:"species"`
	Generation int       `json:"generation"`
}

var starterSpecies = []string{"emerald", "azure"}

// StarterSlimes is the pair every new player begins with, so breeding
// is possible from the first session.
func StarterSlimes() []Slime {
	out := make([]Slime, len(starterSpecies))
	for i, sp := range starterSpecies {
		out[i] = Slime{ID: uuid.New(), Species: sp, Generation: 0}
	}
	return out
}

// offspring derives a child slime: generation is one past the older
// parent, species comes from either parent at even odds.
func offspring(sire, dame Slime, rng *rand.Rand) Slime {
	gen := sire.Generation
	if dame.Generation > gen {
		gen = dame.Generation
	}
	species := sire.Species
	if rng.Intn(2) == 1 {
		species = dame.Species
	}
	return Slime{ID: uuid.New(), Species: species, Generation: gen + 1}
}
