package services

import (
	"math"

	"github.com/camden-git/faceattendance/media"
	"github.com/camden-git/faceattendance/models"
)

// reference is one stored embedding and its owner.
type reference struct {
	owner  models.StudentIdentity
	vector []float32
}

// Gallery is the flattened set of reference embeddings for a roster, in
// roster order.
type Gallery struct {
	refs []reference
}

// NewGallery flattens loaded embeddings in roster order so ties resolve
// deterministically to the earlier roster entry.
func NewGallery(roster models.Roster, embeddings map[models.StudentIdentity][][]float32) *Gallery {
	g := &Gallery{}
	for _, owner := range roster {
		for _, vec := range embeddings[owner] {
			g.refs = append(g.refs, reference{owner: owner, vector: vec})
		}
	}
	return g
}

// Len is the number of reference embeddings.
func (g *Gallery) Len() int {
	return len(g.refs)
}

// BestMatch scans every reference and returns the closest owner by cosine
// distance. References whose dimension differs from query are skipped. When
// the best distance exceeds threshold the owner is nil; a distance equal to
// the threshold matches. With no comparable reference the distance is +Inf.
func (g *Gallery) BestMatch(query []float32, threshold float64) (*models.StudentIdentity, float64, bool) {
	best := -1
	bestDist := math.Inf(1)
	for i, ref := range g.refs {
		if len(ref.vector) != len(query) {
			continue
		}
		d := media.CosineDistance(query, ref.vector)
		if d < bestDist {
			best, bestDist = i, d
		}
	}

	if best < 0 || bestDist > threshold {
		return nil, bestDist, false
	}
	owner := g.refs[best].owner
	return &owner, bestDist, true
}
