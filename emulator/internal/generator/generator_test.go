package generator

import (
	"errors"
	"testing"
)

func newSeeded(t *testing.T, cfg Config) *Generator {
	t.Helper()

	g, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	g.Seed(42)
	return g
}

func TestNextValue_NormalWithinVariability(t *testing.T) {
	g := newSeeded(t, DefaultConfig())

	for i := 0; i < 500; i++ {
		v := g.NextValue()
		if v < 69 || v > 75 {
			t.Fatalf("Value %v out of base±variability", v)
		}
	}

	stats := g.Stats()
	if stats.Total != 500 {
		t.Errorf("Expected 500 values, got %d", stats.Total)
	}
	if stats.Min < 69 || stats.Max > 75 || stats.Average < 69 || stats.Average > 75 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestEpisodes(t *testing.T) {
	tests := []struct {
		episode Episode
		min     float64
		max     float64
	}{
		{EpisodeTachycardia, 122, 128},
		{EpisodeBradycardia, 42, 48},
		{EpisodeIrregular, 47, 97},
	}

	for _, tt := range tests {
		t.Run(string(tt.episode), func(t *testing.T) {
			g := newSeeded(t, DefaultConfig())
			g.StartEpisode(tt.episode, 0)

			for i := 0; i < 200; i++ {
				v := g.NextValue()
				if v < tt.min || v > tt.max {
					t.Fatalf("Value %v out of [%v, %v]", v, tt.min, tt.max)
				}
			}
			if g.Episode() != tt.episode {
				t.Errorf("Unlimited episode should not end, got %s", g.Episode())
			}
		})
	}
}

func TestEpisode_EndsAfterN(t *testing.T) {
	g := newSeeded(t, DefaultConfig())
	g.StartEpisode(EpisodeTachycardia, 3)

	for i := 0; i < 3; i++ {
		if v := g.NextValue(); v < 100 {
			t.Fatalf("Expected tachycardia value, got %v", v)
		}
	}
	if g.Episode() != EpisodeNormal {
		t.Fatalf("Expected return to normal, got %s", g.Episode())
	}
	if v := g.NextValue(); v > 80 {
		t.Errorf("Expected normal value, got %v", v)
	}
}

func TestNextValue_Clamped(t *testing.T) {
	cfg := Config{BaseBPM: 60, Variability: 0, MinBPM: 50, MaxBPM: 100}
	g := newSeeded(t, cfg)

	g.StartEpisode(EpisodeTachycardia, 0)
	if v := g.NextValue(); v != 100 {
		t.Errorf("Expected clamp to 100, got %v", v)
	}

	g.StartEpisode(EpisodeBradycardia, 0)
	if v := g.NextValue(); v != 50 {
		t.Errorf("Expected clamp to 50, got %v", v)
	}
}

func TestSeed_Reproducible(t *testing.T) {
	a := newSeeded(t, DefaultConfig())
	b := newSeeded(t, DefaultConfig())

	for i := 0; i < 50; i++ {
		if va, vb := a.NextValue(), b.NextValue(); va != vb {
			t.Fatalf("Sequences diverged at %d: %v != %v", i, va, vb)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	bad := []Config{
		{BaseBPM: 70, MinBPM: 0, MaxBPM: 200},
		{BaseBPM: 70, MinBPM: 100, MaxBPM: 90},
		{BaseBPM: 250, MinBPM: 30, MaxBPM: 220},
		{BaseBPM: 70, Variability: -1, MinBPM: 30, MaxBPM: 220},
	}
	for _, cfg := range bad {
		if _, err := New(cfg); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("Expected ErrInvalidConfig for %+v, got %v", cfg, err)
		}
	}
}

func TestParseEpisode(t *testing.T) {
	if e, err := ParseEpisode("irregular"); err != nil || e != EpisodeIrregular {
		t.Errorf("Unexpected result: %v, %v", e, err)
	}
	if _, err := ParseEpisode("fibrillation"); !errors.Is(err, ErrUnknownEpisode) {
		t.Errorf("Expected ErrUnknownEpisode, got %v", err)
	}
}
