package citymodel

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// TextureID and MaterialID index into an AppearanceStore's lookup tables.
type TextureID int
type MaterialID int

// Texture describes one image reference used by a themed ring.
type Texture struct {
	URI      string
	WrapMode string
}

// Material describes one non-textured surface appearance.
type Material struct {
	Diffuse  [3]float64
	Specular [3]float64
}

// RingKey identifies one ring within a GeometryStore's polygon collection,
// used to key theme and resolved-material lookups.
type RingKey struct {
	PolygonIndex int
	RingIndex    int // -1 for the exterior ring, >=0 for interior ring N
}

// AppearanceStore (C5) holds textures, materials, and per-ring theme
// references shared by a GeometryStore. Each ring's resolved material is
// remembered, and resolutions are also kept in an LRU keyed by theme name
// plus ring position.
type AppearanceStore struct {
	mu sync.RWMutex

	textures  []Texture
	materials []Material

	// themes maps a theme name to the ring keys it applies to.
	themes map[string][]RingKey
	// resolved holds the material index chosen for each ring, once
	// appearance-apply has run; absence means unresolved.
	resolved map[RingKey]MaterialID

	cache *lru.Cache[string, MaterialID]
}

// NewAppearanceStore returns an empty store with a bounded resolution
// cache of cacheSize entries (0 disables caching).
func NewAppearanceStore(cacheSize int) *AppearanceStore {
	s := &AppearanceStore{
		themes:   make(map[string][]RingKey),
		resolved: make(map[RingKey]MaterialID),
	}
	if cacheSize > 0 {
		c, err := lru.New[string, MaterialID](cacheSize)
		if err == nil {
			s.cache = c
		}
	}
	return s
}

func (s *AppearanceStore) AddTexture(t Texture) TextureID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.textures = append(s.textures, t)
	return TextureID(len(s.textures) - 1)
}

func (s *AppearanceStore) AddMaterial(m Material) MaterialID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.materials = append(s.materials, m)
	return MaterialID(len(s.materials) - 1)
}

// AssignTheme records that ring carries the named theme, to be resolved
// later by the appearance-apply transform.
func (s *AppearanceStore) AssignTheme(theme string, ring RingKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.themes[theme] = append(s.themes[theme], ring)
}

// ResolveRingMaterial picks the material for (theme, ring), caching the
// decision. Idempotent: a ring already resolved returns its prior result
// without recomputation.
func (s *AppearanceStore) ResolveRingMaterial(theme string, ring RingKey) (MaterialID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if mid, ok := s.resolved[ring]; ok {
		return mid, true
	}

	cacheKey := fmt.Sprintf("%s#%d#%d", theme, ring.PolygonIndex, ring.RingIndex)
	if s.cache != nil {
		if mid, ok := s.cache.Get(cacheKey); ok {
			s.resolved[ring] = mid
			return mid, true
		}
	}

	// An unresolved ring gets the most recently added material; the theme
	// name takes part only in the cache key, not in the choice of material.
	if len(s.materials) == 0 {
		return 0, false
	}
	mid := MaterialID(len(s.materials) - 1)
	s.resolved[ring] = mid
	if s.cache != nil {
		s.cache.Add(cacheKey, mid)
	}
	return mid, true
}

// ResolvedMaterial returns the material previously assigned to ring, if
// appearance-apply has already resolved it.
func (s *AppearanceStore) ResolvedMaterial(ring RingKey) (MaterialID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mid, ok := s.resolved[ring]
	return mid, ok
}

// Themes returns the set of theme names with at least one assigned ring.
func (s *AppearanceStore) Themes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.themes))
	for name := range s.themes {
		names = append(names, name)
	}
	return names
}

// RingsForTheme returns the rings assigned to theme.
func (s *AppearanceStore) RingsForTheme(theme string) []RingKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]RingKey(nil), s.themes[theme]...)
}
