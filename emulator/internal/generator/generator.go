// Package generator генерирует синтетический пульс взрослого человека
// с эпизодами нарушений ритма.
package generator

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

var (
	ErrInvalidConfig  = errors.New("invalid generator configuration")
	ErrUnknownEpisode = errors.New("unknown episode")
)

// Episode - режим генерации
type Episode string

const (
	EpisodeNormal      Episode = "normal"
	EpisodeTachycardia Episode = "tachycardia"
	EpisodeBradycardia Episode = "bradycardia"
	EpisodeIrregular   Episode = "irregular"
)

// ParseEpisode разбирает имя эпизода из флага командной строки
func ParseEpisode(s string) (Episode, error) {
	switch e := Episode(s); e {
	case EpisodeNormal, EpisodeTachycardia, EpisodeBradycardia, EpisodeIrregular:
		return e, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEpisode, s)
}

type Config struct {
	BaseBPM     int
	Variability int
	MinBPM      int
	MaxBPM      int
}

func DefaultConfig() Config {
	return Config{
		BaseBPM:     72,
		Variability: 3,
		MinBPM:      30,
		MaxBPM:      220,
	}
}

func (c Config) Validate() error {
	if c.MinBPM <= 0 || c.MinBPM >= c.MaxBPM {
		return fmt.Errorf("%w: min=%d max=%d", ErrInvalidConfig, c.MinBPM, c.MaxBPM)
	}
	if c.BaseBPM < c.MinBPM || c.BaseBPM > c.MaxBPM {
		return fmt.Errorf("%w: base=%d out of [%d, %d]", ErrInvalidConfig, c.BaseBPM, c.MinBPM, c.MaxBPM)
	}
	if c.Variability < 0 {
		return fmt.Errorf("%w: variability=%d", ErrInvalidConfig, c.Variability)
	}
	return nil
}

// Уровни пульса в эпизодах
const (
	tachycardiaBPM = 125
	bradycardiaBPM = 45
	// размах скачков в нерегулярном ритме
	irregularSwing = 25
)

// Stats - статистика сгенерированных значений
type Stats struct {
	Total   int
	Min     float64
	Max     float64
	Average float64
	Last    float64
}

type Generator struct {
	mu        sync.Mutex
	rand      *rand.Rand
	config    Config
	episode   Episode
	remaining int // сколько значений осталось до возврата к normal, 0 - без ограничения
	stats     Stats
}

func New(cfg Config) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Generator{
		rand:    rand.New(rand.NewSource(time.Now().UnixNano())),
		config:  cfg,
		episode: EpisodeNormal,
	}, nil
}

// Seed делает последовательность воспроизводимой
func (g *Generator) Seed(seed int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rand = rand.New(rand.NewSource(seed))
}

// StartEpisode включает эпизод на n значений. n <= 0 - до следующего вызова.
func (g *Generator) StartEpisode(e Episode, n int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.episode = e
	g.remaining = n
	if n < 0 {
		g.remaining = 0
	}
}

func (g *Generator) Episode() Episode {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.episode
}

// NextValue возвращает следующее значение пульса в BPM
func (g *Generator) NextValue() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	var value int
	switch g.episode {
	case EpisodeTachycardia:
		value = tachycardiaBPM + g.jitter(g.config.Variability)
	case EpisodeBradycardia:
		value = bradycardiaBPM + g.jitter(g.config.Variability)
	case EpisodeIrregular:
		value = g.config.BaseBPM + g.jitter(irregularSwing)
	default:
		value = g.config.BaseBPM + g.jitter(g.config.Variability)
	}

	if value < g.config.MinBPM {
		value = g.config.MinBPM
	}
	if value > g.config.MaxBPM {
		value = g.config.MaxBPM
	}

	if g.remaining > 0 {
		g.remaining--
		if g.remaining == 0 {
			g.episode = EpisodeNormal
		}
	}

	v := float64(value)
	g.updateStats(v)
	return v
}

func (g *Generator) jitter(spread int) int {
	if spread <= 0 {
		return 0
	}
	return g.rand.Intn(spread*2+1) - spread
}

func (g *Generator) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stats
}

func (g *Generator) updateStats(v float64) {
	g.stats.Total++
	g.stats.Last = v

	if g.stats.Total == 1 || v < g.stats.Min {
		g.stats.Min = v
	}
	if v > g.stats.Max {
		g.stats.Max = v
	}

	sum := g.stats.Average * float64(g.stats.Total-1)
	g.stats.Average = (sum + v) / float64(g.stats.Total)
}
