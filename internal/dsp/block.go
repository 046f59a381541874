package dsp

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Status carries the out-of-band flags an audio source reports alongside a block.
type Status uint8

const (
	StatusInputOverflow Status = 1 << iota
	StatusInputUnderflow
)

func (s Status) String() string {
	if s == 0 {
		return "ok"
	}
	var parts []string
	if s&StatusInputOverflow != 0 {
		parts = append(parts, "input overflow")
	}
	if s&StatusInputUnderflow != 0 {
		parts = append(parts, "input underflow")
	}
	if rest := s &^ (StatusInputOverflow | StatusInputUnderflow); rest != 0 {
		parts = append(parts, fmt.Sprintf("unknown(%#x)", uint8(rest)))
	}
	return strings.Join(parts, ", ")
}

// Block is one fixed-length run of mono samples taken from a single device channel.
type Block struct {
	Samples    []float64
	Channel    int
	SampleRate int
	Status     Status
}

// Len returns the number of samples in the block.
func (b Block) Len() int {
	return len(b.Samples)
}

// Duration returns the real-time length of the block.
func (b Block) Duration() time.Duration {
	return SamplesDuration(len(b.Samples), b.SampleRate)
}

// SamplesDuration converts a sample count at the given rate into a duration.
func SamplesDuration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	sec, rem := int64(n)/int64(sampleRate), int64(n)%int64(sampleRate)
	return time.Duration(sec)*time.Second + time.Duration(rem*int64(time.Second)/int64(sampleRate))
}

// Band is a pass band given by its edge frequencies in Hz.
type Band struct {
	Low  float64 `yaml:"low,omitempty"`
	High float64 `yaml:"high,omitempty"`
}

func (b Band) String() string {
	return fmt.Sprintf("%g-%g Hz", b.Low, b.High)
}

// Center returns the geometric centre of the band.
func (b Band) Center() float64 {
	return math.Sqrt(b.Low * b.High)
}
