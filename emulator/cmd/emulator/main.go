package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mujo0401/Fitness-Console/emulator/internal/csvreader"
	"github.com/mujo0401/Fitness-Console/emulator/internal/generator"
	"github.com/mujo0401/Fitness-Console/emulator/internal/grpcclient"
	telemetryv1 "github.com/mujo0401/Fitness-Console/proto/telemetry"
)

func main() {
	var (
		serverAddr    = flag.String("server", "localhost:50051", "Адрес gRPC сервера анализатора")
		sessionID     = flag.String("session", "emulator-session", "ID сессии")
		interval      = flag.Duration("interval", time.Second, "Интервал между измерениями")
		duration      = flag.Duration("duration", 5*time.Minute, "Длительность эмуляции")
		baseBPM       = flag.Int("base", 72, "Базовый пульс")
		variability   = flag.Int("variability", 3, "Вариабельность пульса, BPM")
		episodeName   = flag.String("episode", "normal", "Эпизод: normal, tachycardia, bradycardia, irregular")
		episodeAfter  = flag.Duration("episode-after", time.Minute, "Начало эпизода от старта")
		episodeLength = flag.Int("episode-samples", 60, "Длина эпизода в измерениях, 0 - до конца")
		seed          = flag.Int64("seed", 0, "Seed генератора, 0 - случайный")
		csvFile       = flag.String("csv", "", "CSV файл time_sec,value для воспроизведения вместо генератора")
		speed         = flag.Float64("speed", 1, "Ускорение воспроизведения CSV")
	)
	flag.Parse()

	episode, err := generator.ParseEpisode(*episodeName)
	if err != nil {
		log.Fatalf("[FATAL] %v", err)
	}

	client, err := grpcclient.NewGRPCClient(*serverAddr, *sessionID)
	if err != nil {
		log.Fatalf("[FATAL] Failed to create gRPC client: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("[INFO] Received shutdown signal...")
		cancel()
	}()

	samples := make(chan *telemetryv1.Sample, 100)

	if *csvFile != "" {
		points, err := csvreader.ReadCSVFile(*csvFile)
		if err != nil {
			log.Fatalf("[FATAL] Failed to read CSV data: %v", err)
		}
		log.Printf("[INFO] Replaying %d records from %s at x%.1f", len(points), *csvFile, *speed)
		go replay(ctx, points, *speed, *sessionID, samples)
	} else {
		gen, err := generator.New(generator.Config{
			BaseBPM:     *baseBPM,
			Variability: *variability,
			MinBPM:      30,
			MaxBPM:      220,
		})
		if err != nil {
			log.Fatalf("[FATAL] %v", err)
		}
		if *seed != 0 {
			gen.Seed(*seed)
		}
		log.Printf("[INFO] Generating heart rate for %v every %v, episode %s after %v",
			*duration, *interval, episode, *episodeAfter)
		go generate(ctx, gen, episode, *episodeAfter, *episodeLength, *interval, *sessionID, samples)
	}

	// Поток не привязан к ctx: после отмены генератора канал закрывается,
	// и PushSamples дожидается последних подтверждений
	sent, err := client.PushSamples(context.Background(), samples)
	if err != nil {
		log.Printf("[ERROR] Error pushing samples: %v", err)
	}

	log.Printf("[INFO] Emulator stopped: sent=%d last_ack=%d", sent, client.LastAck())
}

func generate(
	ctx context.Context,
	gen *generator.Generator,
	episode generator.Episode,
	episodeAfter time.Duration,
	episodeLength int,
	interval time.Duration,
	sessionID string,
	out chan<- *telemetryv1.Sample,
) {
	defer close(out)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	start := time.Now()
	episodeStarted := episode == generator.EpisodeNormal

	for {
		select {
		case now := <-ticker.C:
			if !episodeStarted && now.Sub(start) >= episodeAfter {
				gen.StartEpisode(episode, episodeLength)
				episodeStarted = true
				log.Printf("[INFO] Episode %s started", episode)
			}

			sample := &telemetryv1.Sample{
				SessionId: sessionID,
				TsMs:      uint64(now.UnixMilli()),
				Bpm:       gen.NextValue(),
			}
			select {
			case out <- sample:
			case <-ctx.Done():
				return
			}

		case <-ctx.Done():
			stats := gen.Stats()
			log.Printf("[INFO] Generator stats: total=%d min=%.0f max=%.0f avg=%.1f",
				stats.Total, stats.Min, stats.Max, stats.Average)
			return
		}
	}
}

func replay(ctx context.Context, points []csvreader.DataPoint, speed float64, sessionID string, out chan<- *telemetryv1.Sample) {
	defer close(out)

	startTime := time.Now()
	pointsChan := make(chan csvreader.DataPoint, 100)
	go csvreader.StreamData(ctx, points, startTime, speed, pointsChan)

	for point := range pointsChan {
		ts := startTime.Add(time.Duration(point.TimeSec * float64(time.Second)))
		out <- &telemetryv1.Sample{
			SessionId: sessionID,
			TsMs:      uint64(ts.UnixMilli()),
			Bpm:       point.Value,
		}
	}
}
