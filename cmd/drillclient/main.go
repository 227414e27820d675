// Command drillclient submits a recorded attempt to the evaluator, or runs a
// session in-process against a scripted recognizer.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"speech-practice-evaluator/internal/models"
	"speech-practice-evaluator/internal/observability/logging"
	"speech-practice-evaluator/internal/service/capture"
	"speech-practice-evaluator/internal/service/evaluation"
	"speech-practice-evaluator/internal/service/stt/mock"
	"speech-practice-evaluator/internal/service/wav"
)

func main() {
	audioFile := flag.String("audio", "", "Path to WAV file (16-bit PCM mono); a synthetic tone is used when empty")
	server := flag.String("server", "http://localhost:8080", "Evaluator base URL")
	learner := flag.String("learner", "learner-demo", "Learner ID")
	target := flag.String("target", "I would like a cup of coffee", "Target sentence")
	local := flag.Bool("local", false, "Evaluate in-process instead of calling the server")
	say := flag.String("say", "", "With -local, what the scripted recognizer hears (defaults to -target)")
	save := flag.String("save", "", "Write the session recording to this path")
	flag.Parse()

	logging.Init(logging.Config{Level: "info", Format: "console"})

	audio, err := loadAudio(*audioFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load audio")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	var (
		result    models.EvaluationResult
		recording []byte
	)
	if *local {
		heard := *say
		if heard == "" {
			heard = *target
		}
		result, recording, err = evaluateLocal(ctx, *learner, *target, heard, audio)
	} else {
		result, recording, err = evaluateRemote(ctx, *server, *learner, *target, audio)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Evaluation failed")
	}

	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))

	if *save != "" && len(recording) > 0 {
		if err := os.WriteFile(*save, recording, 0o644); err != nil {
			log.Fatal().Err(err).Str("path", *save).Msg("Failed to save recording")
		}
		log.Info().Str("path", *save).Int("bytes", len(recording)).Msg("Recording saved")
	}
}

func loadAudio(path string) ([]byte, error) {
	if path == "" {
		return syntheticAttempt(16000, 3*time.Second), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if _, err := wav.ParseHeader(data); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return data, nil
}

// syntheticAttempt is a voiced tone framed by short silences.
func syntheticAttempt(rate int, d time.Duration) []byte {
	n := int(d.Seconds() * float64(rate))
	lead := rate / 4
	samples := make([]float32, n)
	for i := lead; i < n-lead; i++ {
		samples[i] = float32(0.3 * math.Sin(2*math.Pi*220*float64(i)/float64(rate)))
	}
	return wav.Encode(samples, rate)
}

func evaluateLocal(ctx context.Context, learnerID, target, heard string, audio []byte) (models.EvaluationResult, []byte, error) {
	samples, rate, err := wav.Decode(audio)
	if err != nil {
		return models.EvaluationResult{}, nil, err
	}
	cfg := evaluation.DefaultConfig()
	recognizers := mock.NewFactory(mock.Say(heard, 0.9), mock.WithFragmentInterval(mock.DefaultFragmentInterval))
	o := evaluation.NewOrchestrator(cfg, learnerID, recognizers)

	device := capture.NewReplayDevice(samples, rate, capture.WithFrameSize(rate/10))
	out, err := o.RunOutcome(ctx, device, target)
	if err != nil {
		return models.EvaluationResult{}, nil, err
	}
	return out.Result, out.Recording, nil
}

func evaluateRemote(ctx context.Context, server, learnerID, target string, audio []byte) (models.EvaluationResult, []byte, error) {
	endpoint := server + "/v1/evaluations?target=" + url.QueryEscape(target)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(audio))
	if err != nil {
		return models.EvaluationResult{}, nil, err
	}
	req.Header.Set("Content-Type", "audio/wav")
	req.Header.Set("X-Learner-ID", learnerID)

	log.Info().Str("server", server).Str("learner", learnerID).Int("bytes", len(audio)).Msg("Uploading attempt")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return models.EvaluationResult{}, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.EvaluationResult{}, nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return models.EvaluationResult{}, nil, fmt.Errorf("server returned %s: %s", resp.Status, bytes.TrimSpace(body))
	}

	var result models.EvaluationResult
	if err := json.Unmarshal(body, &result); err != nil {
		return models.EvaluationResult{}, nil, fmt.Errorf("decode result: %w", err)
	}

	recording, err := fetchRecording(ctx, server, result.SessionID)
	if err != nil {
		log.Warn().Err(err).Msg("Recording unavailable")
	}
	return result, recording, nil
}

func fetchRecording(ctx context.Context, server, sessionID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server+"/v1/evaluations/"+url.PathEscape(sessionID)+"/recording", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("recording: %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}
