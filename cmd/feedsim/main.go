package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"
)

var (
	rate      = flag.Int("rate", 2, "Lines per second")
	duration  = flag.Int("duration", 0, "Run time in seconds, 0 runs until interrupted")
	target    = flag.String("target", "-", "Destination: - for stdout or host:port for TCP")
	noiseRate = flag.Float64("noise", 0.2, "Fraction of lines that are diagnostic noise")
	seed      = flag.Int64("seed", 0, "Random seed, 0 uses the current time")
)

// Diagnostic chatter interleaved with telemetry by converter firmware.
var noiseLines = []string{
	"dV ~= 0",
	"Duty cycle +",
	"Duty cycle -",
	"Safety Shutoff Triggered",
	"MPPT tracking",
	"LowSideVoltage: ",
}

type generator struct {
	rng *rand.Rand

	// slow-moving operating point
	lowV  float64
	lowI  float64
	highV float64
	duty  int
}

func newGenerator(rng *rand.Rand) *generator {
	return &generator{
		rng:   rng,
		lowV:  12.0,
		lowI:  1.5,
		highV: 24.0,
		duty:  50,
	}
}

func (g *generator) drift() {
	g.lowV += (g.rng.Float64() - 0.5) * 0.2
	g.lowI += (g.rng.Float64() - 0.5) * 0.1
	g.highV += (g.rng.Float64() - 0.5) * 0.3
	g.duty += g.rng.Intn(3) - 1
	if g.duty < 0 {
		g.duty = 0
	}
	if g.duty > 100 {
		g.duty = 100
	}
}

func (g *generator) next() string {
	if g.rng.Float64() < *noiseRate {
		return noiseLines[g.rng.Intn(len(noiseLines))]
	}

	g.drift()
	highI := g.lowV * g.lowI / g.highV

	// Some firmware builds label the duty cycle with a space in the key.
	dutyKey := "DutyCycle"
	if g.rng.Float64() < 0.1 {
		dutyKey = "Duty Cycle"
	}

	return fmt.Sprintf("LowSideVoltage:%.2f\tLowSideCurrent:%.2f\tHighSideVoltage:%.2f\tHighSideCurrent:%.2f\t%s:%d",
		g.lowV, g.lowI, g.highV, highI, dutyKey, g.duty)
}

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var out io.Writer = os.Stdout
	if *target != "-" {
		conn, err := net.Dial("tcp", *target)
		if err != nil {
			return fmt.Errorf("failed to connect to %s: %w", *target, err)
		}
		defer conn.Close()
		out = conn
	}

	s := *seed
	if s == 0 {
		s = time.Now().UnixNano()
	}
	gen := newGenerator(rand.New(rand.NewSource(s)))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var deadline <-chan time.Time
	if *duration > 0 {
		deadline = time.After(time.Duration(*duration) * time.Second)
	}

	w := bufio.NewWriter(out)
	defer w.Flush()

	ticker := time.NewTicker(time.Second / time.Duration(*rate))
	defer ticker.Stop()

	var sent int64
	start := time.Now()

	for {
		select {
		case <-sigCh:
			return report(sent, start)
		case <-deadline:
			return report(sent, start)
		case <-ticker.C:
			if _, err := fmt.Fprintf(w, "%s\r\n", gen.next()); err != nil {
				return fmt.Errorf("write failed: %w", err)
			}
			if err := w.Flush(); err != nil {
				return fmt.Errorf("flush failed: %w", err)
			}
			atomic.AddInt64(&sent, 1)
		}
	}
}

func report(sent int64, start time.Time) error {
	elapsed := time.Since(start).Seconds()
	fmt.Fprintf(os.Stderr, "Sent %d lines in %.1f seconds (%.1f/sec)\n",
		sent, elapsed, float64(sent)/elapsed)
	return nil
}
