// Command bop-sim generates synthetic bobbing fixtures for replay with
// bop-analyse or the mock feed.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/banshee-data/boptrack/internal/bop"
	"github.com/banshee-data/boptrack/samplemux"
)

func main() {
	output := flag.String("o", "bop.csv", "output path, \"-\" for stdout")
	count := flag.Int("n", 900, "number of samples")
	bpm := flag.Float64("bpm", 120, "tempo of the simulated bob")
	amplitude := flag.Float64("amplitude", 25, "vertical bob amplitude in mm")
	lean := flag.Float64("lean", 0.35, "horizontal motion per unit of vertical motion")
	rate := flag.Float64("rate", 30, "nominal sample rate in Hz")
	jitter := flag.Float64("jitter", 0.2, "timestamp jitter as a fraction of the sample interval")
	noise := flag.Float64("noise", 0.5, "stddev of position noise in mm")
	seed := flag.Int64("seed", 1, "random seed")
	flag.Parse()

	cfg := bop.DefaultSynthConfig()
	cfg.BPM = *bpm
	cfg.Amplitude = *amplitude
	cfg.Lean = *lean
	cfg.SampleRate = *rate
	cfg.Jitter = *jitter
	cfg.Noise = *noise
	cfg.Seed = *seed

	out := os.Stdout
	if *output != "-" {
		f, err := os.Create(*output)
		if err != nil {
			log.Fatalf("failed to create %s: %v", *output, err)
		}
		defer f.Close()
		out = f
	}

	w := bufio.NewWriter(out)
	gen := bop.NewSynth(cfg)
	for i := 0; i < *count; i++ {
		t, p := gen.Next()
		fmt.Fprintln(w, samplemux.FormatSample(samplemux.Sample{T: t, X: p.X, Y: p.Y}))
	}
	if err := w.Flush(); err != nil {
		log.Fatalf("write failed: %v", err)
	}
	if *output != "-" {
		log.Printf("✓ Created: %s (%d samples)", *output, *count)
	}
}
