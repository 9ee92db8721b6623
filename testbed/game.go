package testbed

import (
	"sync/atomic"

	"github.com/spaghettifunk/hzdclouds/engine"
	"github.com/spaghettifunk/hzdclouds/engine/core"
	"github.com/spaghettifunk/hzdclouds/engine/math"
	"github.com/spaghettifunk/hzdclouds/engine/systems"
)

const (
	TILE_GRID_SIZE   = 8
	TILE_RESOLUTION  = 32
	CLOUD_OCTAVES    = 4
	COVERAGE_CUTOFF  = 0.55
	CLOUD_WIND_SPEED = 0.35
)

type TestGame struct {
	*engine.Game
}

// cloudTile is one square of the sky. Its density is written by a generic
// job, read by the render job uploading it and finally by the main thread.
type cloudTile struct {
	x, y     int
	seed     uint32
	offset   float32
	density  []float32
	coverage float64
}

type gameState struct {
	tiles []*cloudTile
	// only touched by render jobs, so only by the render thread
	atlas []float32

	wind     float32
	inFlight atomic.Bool
	batches  atomic.Uint64
	uploads  atomic.Uint64
	coverage float64
}

func NewTestGame(name, configPath string, maxFrames uint64) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: &engine.ApplicationConfig{
				Name:       name,
				ConfigPath: configPath,
				TargetFPS:  60,
				MaxFrames:  maxFrames,
			},
			State: &gameState{},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnShutdown = tg.Shutdown

	return tg
}

func (g *TestGame) state() *gameState {
	return g.State.(*gameState)
}

func (g *TestGame) Initialize() error {
	core.LogInfo("initializing cloud testbed...")
	s := g.state()

	rnd := math.NewRandom(2024)
	s.tiles = make([]*cloudTile, 0, TILE_GRID_SIZE*TILE_GRID_SIZE)
	for y := 0; y < TILE_GRID_SIZE; y++ {
		for x := 0; x < TILE_GRID_SIZE; x++ {
			s.tiles = append(s.tiles, &cloudTile{
				x:       x,
				y:       y,
				seed:    uint32(rnd.IntInRange(0, 1<<30)),
				offset:  rnd.FloatInRange(0, 4),
				density: make([]float32, TILE_RESOLUTION*TILE_RESOLUTION),
			})
		}
	}
	s.atlas = make([]float32, len(s.tiles)*TILE_RESOLUTION*TILE_RESOLUTION)
	return nil
}

// Update schedules a new batch of tiles once the previous one has been
// summarized: generate (generic) -> upload (render) -> summary (main).
func (g *TestGame) Update(deltaTime float64) error {
	s := g.state()
	s.wind += float32(deltaTime) * CLOUD_WIND_SPEED
	if !s.inFlight.CompareAndSwap(false, true) {
		return nil
	}

	js := g.SystemManager.JobSystem
	wind := s.wind
	summary := js.CreateFuncJob(systems.JOB_TYPE_MAIN, g.summarize).SetTag("clouds.summary")
	for i, tile := range s.tiles {
		generate := systems.CreateJobWith(js, systems.JOB_TYPE_GENERIC, func(t *cloudTile) {
			generateTile(t, wind)
		}, tile).SetTag("clouds.generate")
		upload := systems.CreateJobWith(js, systems.JOB_TYPE_RENDER, func(t *cloudTile) {
			g.uploadTile(t, i)
		}, tile).SetTag("clouds.upload")

		upload.DependsOn(generate)
		summary.DependsOn(upload)
		upload.DispatchAndRelease()
		generate.DispatchAndRelease()
	}
	summary.DispatchAndRelease()
	return nil
}

func generateTile(t *cloudTile, wind float32) {
	const scale = 1.0 / TILE_RESOLUTION
	covered := 0
	for py := 0; py < TILE_RESOLUTION; py++ {
		for px := 0; px < TILE_RESOLUTION; px++ {
			u := (float32(t.x*TILE_RESOLUTION+px) * scale) + t.offset + wind
			v := float32(t.y*TILE_RESOLUTION+py) * scale
			d := math.Smoothstep(COVERAGE_CUTOFF-0.1, 1, math.FBM2D(u, v, CLOUD_OCTAVES, t.seed))
			t.density[py*TILE_RESOLUTION+px] = d
			if d > 0 {
				covered++
			}
		}
	}
	t.coverage = float64(covered) / float64(len(t.density))
}

func (g *TestGame) uploadTile(t *cloudTile, slot int) {
	s := g.state()
	copy(s.atlas[slot*len(t.density):], t.density)
	s.uploads.Add(1)
}

func (g *TestGame) summarize() {
	s := g.state()
	total := 0.0
	for _, t := range s.tiles {
		total += t.coverage
	}
	s.coverage = total / float64(len(s.tiles))
	n := s.batches.Add(1)
	core.LogDebug("cloud batch %d: %.1f%% sky coverage", n, s.coverage*100)
	s.inFlight.Store(false)
}

func (g *TestGame) Shutdown() error {
	s := g.state()
	core.LogInfo("cloud testbed shutting down after %d batches (%d tile uploads)", s.batches.Load(), s.uploads.Load())
	return nil
}

// Batches is the number of cloud batches fully generated, uploaded and summarized.
func (g *TestGame) Batches() uint64 {
	return g.state().batches.Load()
}

func (g *TestGame) Uploads() uint64 {
	return g.state().uploads.Load()
}

// Coverage is the sky fraction covered by clouds in the last summarized batch.
// Main thread only.
func (g *TestGame) Coverage() float64 {
	return g.state().coverage
}
