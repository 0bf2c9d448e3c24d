package upload

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

func TestSimulatedSourceReachesExactlyHundred(t *testing.T) {
	src := &SimulatedSource{Interval: time.Millisecond, MaxStep: 30}

	var reports []float64
	err := src.Run(context.Background(), func(p float64) {
		reports = append(reports, p)
	})
	if err != nil {
		t.Fatalf("Run() = %v, want nil", err)
	}

	if len(reports) == 0 {
		t.Fatal("no progress reported")
	}

	last := reports[len(reports)-1]
	if last != 100 {
		t.Errorf("final report = %v, want exactly 100", last)
	}

	hundreds := 0
	prev := 0.0
	for _, p := range reports {
		if p <= prev {
			t.Errorf("progress not strictly increasing: %v after %v", p, prev)
		}
		if p > 100 {
			t.Errorf("progress %v exceeds 100", p)
		}
		if p == 100 {
			hundreds++
		}
		prev = p
	}
	if hundreds != 1 {
		t.Errorf("reported 100 %d times, want exactly once", hundreds)
	}
}

func TestSimulatedSourceStepBounds(t *testing.T) {
	src := &SimulatedSource{Interval: time.Millisecond, MaxStep: 20}

	var reports []float64
	if err := src.Run(context.Background(), func(p float64) {
		reports = append(reports, p)
	}); err != nil {
		t.Fatalf("Run() = %v", err)
	}

	prev := 0.0
	for _, p := range reports[:len(reports)-1] {
		step := p - prev
		if step <= 0 || step > 20 {
			t.Errorf("step %v outside (0, 20]", step)
		}
		prev = p
	}
}

func TestSimulatedSourceCancellation(t *testing.T) {
	src := &SimulatedSource{Interval: 5 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := src.Run(ctx, func(p float64) {
		t.Errorf("unexpected report %v after cancellation", p)
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() = %v, want context.Canceled", err)
	}
}

func TestCountingReaderReportsByteProgress(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 1000)

	var reports []float64
	cr := NewCountingReader(bytes.NewReader(data), 1000, func(p float64) {
		reports = append(reports, p)
	})

	buf := make([]byte, 250)
	for {
		_, err := cr.Read(buf)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Read() = %v", err)
		}
	}

	if len(reports) == 0 {
		t.Fatal("no progress reported")
	}
	prev := 0.0
	for _, p := range reports {
		if p < prev {
			t.Errorf("progress decreased: %v after %v", p, prev)
		}
		prev = p
	}
	// 100 is reserved for the completion transition
	if last := reports[len(reports)-1]; last != 99.9 {
		t.Errorf("final report = %v, want capped at 99.9", last)
	}
}

func TestCountingReaderZeroTotal(t *testing.T) {
	cr := NewCountingReader(bytes.NewReader([]byte("data")), 0, func(p float64) {
		t.Errorf("unexpected report %v with zero total", p)
	})
	if _, err := io.ReadAll(cr); err != nil {
		t.Fatalf("ReadAll() = %v", err)
	}
}
