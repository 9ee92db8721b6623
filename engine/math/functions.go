package math

import (
	m "math"

	"golang.org/x/exp/rand"
)

/**
 * @brief Linearly interpolates between a and b.
 * @param t The interpolation factor, 0 yields a and 1 yields b.
 */
func Lerp(a, b, t float32) float32 {
	return a + (b-a)*t
}

/**
 * @brief Hermite interpolation between two edges, 0 below edge0 and 1 above edge1.
 */
func Smoothstep(edge0, edge1, x float32) float32 {
	t := Clamp((x-edge0)/(edge1-edge0), 0, 1)
	return t * t * (3.0 - 2.0*t)
}

// Random is a seeded generator. Not safe for concurrent use, give each
// thread its own.
type Random struct {
	rng *rand.Rand
}

func NewRandom(seed uint64) *Random {
	return &Random{rng: rand.New(rand.NewSource(seed))}
}

/** @brief Returns a random float in [0, 1). */
func (r *Random) Float() float32 {
	return r.rng.Float32()
}

/** @brief Returns a random float in [min, max). */
func (r *Random) FloatInRange(min, max float32) float32 {
	return min + r.rng.Float32()*(max-min)
}

/** @brief Returns a random integer in [min, max]. */
func (r *Random) IntInRange(min, max int32) int32 {
	return r.rng.Int31n(max-min+1) + min
}

// hash2 maps an integer lattice point to a value in [0, 1).
func hash2(x, y int32, seed uint32) float32 {
	h := uint32(x)*374761393 + uint32(y)*668265263 + seed*2246822519
	h = (h ^ (h >> 13)) * 1274126177
	h ^= h >> 16
	return float32(h>>8) / (1 << 24)
}

/**
 * @brief Smooth 2D value noise in [0, 1). The same seed and coordinates always
 * give the same value, so tiles can be generated on any thread.
 */
func ValueNoise2D(x, y float32, seed uint32) float32 {
	x0 := float32(m.Floor(float64(x)))
	y0 := float32(m.Floor(float64(y)))
	ix, iy := int32(x0), int32(y0)
	tx := Smoothstep(0, 1, x-x0)
	ty := Smoothstep(0, 1, y-y0)

	top := Lerp(hash2(ix, iy, seed), hash2(ix+1, iy, seed), tx)
	bottom := Lerp(hash2(ix, iy+1, seed), hash2(ix+1, iy+1, seed), tx)
	return Lerp(top, bottom, ty)
}

/**
 * @brief Fractal sum of value noise octaves, normalized to [0, 1).
 */
func FBM2D(x, y float32, octaves int, seed uint32) float32 {
	var sum, amplitude, norm float32 = 0, 0.5, 0
	frequency := float32(1)
	for i := 0; i < octaves; i++ {
		sum += amplitude * ValueNoise2D(x*frequency, y*frequency, seed+uint32(i))
		norm += amplitude
		amplitude *= 0.5
		frequency *= 2
	}
	if norm == 0 {
		return 0
	}
	return sum / norm
}
