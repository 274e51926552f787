package main

import (
	"bufio"
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"

	"fibertrack/pkg/config"
	"fibertrack/pkg/tracking"
	"fibertrack/pkg/volume"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "fibertrack.yaml", "YAML configuration file (defaults are used if absent)")
	writeConfig := flag.Bool("write-config", false, "Write the default configuration to the config path and exit")
	peaksPath := flag.String("peaks", "", "Raw little-endian float32 peak volume (x,y,z triplets per voxel)")
	dims := flag.String("dims", "", "Grid dimensions as X,Y,Z (required with -peaks)")
	spacing := flag.String("spacing", "1,1,1", "Voxel spacing in mm as sx,sy,sz")
	maskPath := flag.String("mask", "", "Raw float32 tracking mask on the same grid")
	seedPath := flag.String("seed-mask", "", "Raw float32 seed region on the same grid")
	targetPath := flag.String("target", "", "Raw float32 target region on the same grid")
	stopPath := flag.String("stop", "", "Raw float32 stop region on the same grid")
	exclusionPath := flag.String("exclusion", "", "Raw float32 exclusion region on the same grid")
	demo := flag.Bool("demo", false, "Track a synthetic helix field instead of loading a peak volume")
	outputName := flag.String("output", "tractogram.txt", "Output filename (polylines as text, density map as raw float64)")
	flag.Parse()

	if *writeConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		fmt.Printf("Wrote default configuration to %s\n", *configPath)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	params, err := cfg.TrackingParams()
	if err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	var field tracking.DirectionField
	var grid *volume.Grid
	switch {
	case *demo:
		grid, field = demoField()
	case *peaksPath != "":
		grid, err = parseGrid(*dims, *spacing)
		if err != nil {
			log.Fatalf("Invalid grid: %v", err)
		}
		field, err = loadPeaks(*peaksPath, grid)
		if err != nil {
			log.Fatalf("Failed to load peaks: %v", err)
		}
	default:
		flag.Usage()
		os.Exit(1)
	}

	tracker := tracking.NewTracker(field, params)
	for _, m := range []struct {
		path string
		set  func(*volume.ScalarField)
	}{
		{*maskPath, tracker.SetMaskImage},
		{*seedPath, tracker.SetSeedImage},
		{*targetPath, tracker.SetTargetRegions},
		{*stopPath, tracker.SetStoppingRegions},
		{*exclusionPath, tracker.SetExclusionRegions},
	} {
		if m.path == "" {
			continue
		}
		f, err := loadScalar(m.path, grid)
		if err != nil {
			log.Fatalf("Failed to load %s: %v", m.path, err)
		}
		m.set(f)
	}
	if *demo {
		tracker.SetSeedPoints(demoSeeds())
	}

	fmt.Println("Starting streamline tracking...")
	startTime := time.Now()
	result, err := tracker.Run()
	if err != nil {
		log.Fatalf("Tracking failed: %v", err)
	}

	fmt.Printf("\nTracking completed in %.2f seconds\n", time.Since(startTime).Seconds())
	fmt.Printf("Seeds processed: %d\n", result.SeedsProcessed)
	fmt.Printf("Fibers accepted: %d\n", result.Accepted)

	if result.DensityMap != nil {
		if err := writeDensity(*outputName, result.DensityMap); err != nil {
			log.Fatalf("Failed to write density map: %v", err)
		}
		fmt.Printf("Density map saved to: %s\n", *outputName)
		return
	}

	if len(result.Tractogram) > 0 {
		lengths := make([]float64, len(result.Tractogram))
		for i, fib := range result.Tractogram {
			lengths[i] = fib.ArcLength()
		}
		mean, std := stat.MeanStdDev(lengths, nil)
		if math.IsNaN(std) {
			std = 0
		}
		fmt.Printf("Fiber length: %.1f mm mean, %.1f mm stddev\n", mean, std)
	}
	if err := writeTractogram(*outputName, result.Tractogram); err != nil {
		log.Fatalf("Failed to write tractogram: %v", err)
	}
	fmt.Printf("Tractogram saved to: %s\n", *outputName)
}

// parseGrid builds a grid from the -dims and -spacing flags.
func parseGrid(dims, spacing string) (*volume.Grid, error) {
	d, err := parseTriplet(dims)
	if err != nil {
		return nil, fmt.Errorf("dims: %w", err)
	}
	s, err := parseTriplet(spacing)
	if err != nil {
		return nil, fmt.Errorf("spacing: %w", err)
	}
	size := [3]int{int(d[0]), int(d[1]), int(d[2])}
	if size[0] < 1 || size[1] < 1 || size[2] < 1 {
		return nil, fmt.Errorf("dims must be positive, got %v", size)
	}
	return volume.NewGrid(size, r3.Vec{X: s[0], Y: s[1], Z: s[2]}, r3.Vec{}), nil
}

func parseTriplet(s string) ([3]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return [3]float64{}, fmt.Errorf("expected three comma-separated values, got %q", s)
	}
	var out [3]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return out, err
		}
		out[i] = v
	}
	return out, nil
}

// loadPeaks reads a raw little-endian float32 volume of x,y,z direction
// triplets into a VectorField.
func loadPeaks(path string, grid *volume.Grid) (*tracking.VectorField, error) {
	vals, err := readFloats(path, grid.NumVoxels()*3)
	if err != nil {
		return nil, err
	}
	field := tracking.NewVectorField(grid, true)
	i := 0
	for z := 0; z < grid.Size[2]; z++ {
		for y := 0; y < grid.Size[1]; y++ {
			for x := 0; x < grid.Size[0]; x++ {
				field.SetPeak(volume.Index{x, y, z}, r3.Vec{X: vals[i], Y: vals[i+1], Z: vals[i+2]})
				i += 3
			}
		}
	}
	return field, nil
}

// loadScalar reads a raw little-endian float32 volume into a scalar field.
func loadScalar(path string, grid *volume.Grid) (*volume.ScalarField, error) {
	vals, err := readFloats(path, grid.NumVoxels())
	if err != nil {
		return nil, err
	}
	f := volume.NewScalarField(grid)
	i := 0
	for z := 0; z < grid.Size[2]; z++ {
		for y := 0; y < grid.Size[1]; y++ {
			for x := 0; x < grid.Size[0]; x++ {
				f.Set(volume.Index{x, y, z}, vals[i])
				i++
			}
		}
	}
	return f, nil
}

func readFloats(path string, n int) ([]float64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	raw := make([]float32, n)
	if err := binary.Read(bufio.NewReader(file), binary.LittleEndian, raw); err != nil {
		return nil, fmt.Errorf("reading %d float32 values: %w", n, err)
	}
	out := make([]float64, n)
	for i, v := range raw {
		out[i] = float64(v)
	}
	return out, nil
}

// demoField builds a synthetic helix field on a 40mm cube: directions
// circle the z-axis with a slight upward pitch.
func demoField() (*volume.Grid, tracking.DirectionField) {
	grid := volume.NewGrid([3]int{40, 40, 40}, r3.Vec{X: 1, Y: 1, Z: 1}, r3.Vec{})
	center := r3.Vec{X: 20, Y: 20, Z: 20}
	field := tracking.NewFieldFunc(grid, tracking.Deterministic,
		func(pos r3.Vec, hist *tracking.History, voxel volume.Index) r3.Vec {
			rel := r3.Sub(pos, center)
			radius := math.Hypot(rel.X, rel.Y)
			if radius < 4 || radius > 16 {
				return r3.Vec{}
			}
			d := r3.Vec{X: -rel.Y / radius, Y: rel.X / radius, Z: 0.15}
			d = r3.Scale(1/r3.Norm(d), d)
			if last, ok := hist.Last(); ok && r3.Dot(d, last) < 0 {
				d = r3.Scale(-1, d)
			}
			return d
		})
	return grid, field
}

// demoSeeds places eight seeds on the mid-plane ring of the demo field.
func demoSeeds() []r3.Vec {
	var seeds []r3.Vec
	for i := 0; i < 8; i++ {
		angle := 2 * math.Pi * float64(i) / 8
		seeds = append(seeds, r3.Vec{
			X: 20 + 10*math.Cos(angle),
			Y: 20 + 10*math.Sin(angle),
			Z: 20,
		})
	}
	return seeds
}

// writeTractogram writes fibers as plain text: one "x y z" line per point,
// one blank line between fibers.
func writeTractogram(path string, fibers []tracking.Streamline) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	for _, fib := range fibers {
		for _, p := range fib {
			fmt.Fprintf(w, "%g %g %g\n", p.X, p.Y, p.Z)
		}
		fmt.Fprintln(w)
	}
	return w.Flush()
}

// writeDensity writes the rescaled density map as raw little-endian float64.
func writeDensity(path string, d *volume.DensityMap) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	if err := binary.Write(w, binary.LittleEndian, d.Data()); err != nil {
		return err
	}
	return w.Flush()
}
