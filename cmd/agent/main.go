package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lokutor-ai/turnloop/pkg/audio"
	"github.com/lokutor-ai/turnloop/pkg/orchestrator"
	llmProvider "github.com/lokutor-ai/turnloop/pkg/providers/llm"
	sttProvider "github.com/lokutor-ai/turnloop/pkg/providers/stt"
	ttsProvider "github.com/lokutor-ai/turnloop/pkg/providers/tts"
)

const sampleRate = 24000

var validEmotions = []string{"neutral", "happy", "sad", "angry", "surprised", "fearful", "disgusted", "calm"}

func main() {
	os.Exit(run())
}

func run() int {
	promptFilePath := flag.String("prompt-file", "", "path to the character/system prompt JSON file")
	outputFilePath := flag.String("output-file", "conversation.json", "path to write the per-turn history log")
	ttsConfigPath := flag.String("tts-config", "", "path to the TTS config JSON file")
	wavsDirectory := flag.String("wavs-directory", "", "override the references_folder from tts-config")
	sttProviderName := flag.String("stt-provider", envOr("STT_PROVIDER", "groq"), "groq|openai|deepgram|assemblyai")
	llmProviderName := flag.String("llm-provider", envOr("LLM_PROVIDER", "openai"), "openai|anthropic|google|groq|openai-oneshot|anthropic-oneshot")
	metricsAddr := flag.String("metrics-addr", "", "if set, serve Prometheus metrics on this address")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("note: no .env file found, using system environment variables")
	}

	if *promptFilePath == "" || *ttsConfigPath == "" {
		log.Println("error: --prompt-file and --tts-config are required")
		return 1
	}

	promptFile, err := orchestrator.LoadPromptFile(*promptFilePath)
	if err != nil {
		log.Println(err)
		return 1
	}
	ttsConfig, err := orchestrator.LoadTTSConfig(*ttsConfigPath)
	if err != nil {
		log.Println(err)
		return 1
	}
	if *wavsDirectory != "" {
		ttsConfig.ReferencesFolder = *wavsDirectory
	}
	systemPrompt := promptFile.Render(validEmotions)

	stt, err := buildSTT(*sttProviderName)
	if err != nil {
		log.Println(err)
		return 1
	}
	llm, err := buildLLM(*llmProviderName)
	if err != nil {
		log.Println(err)
		return 1
	}

	lokutorKey := os.Getenv("LOKUTOR_API_KEY")
	if lokutorKey == "" {
		log.Println("error: LOKUTOR_API_KEY must be set")
		return 1
	}
	lokutorClient := ttsProvider.NewLokutorTTS(lokutorKey)
	engine := ttsProvider.NewLokutorEngine(lokutorClient, orchestrator.VoiceF1, orchestrator.LanguageEn)

	var reg = prometheus.NewRegistry()
	metrics := orchestrator.NewMetrics(reg)
	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			log.Printf("metrics listening on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				log.Printf("metrics server stopped: %v", err)
			}
		}()
	}

	ctrl := orchestrator.NewBargeController()
	conv := orchestrator.NewConversation(0, 0, nil)
	sentenceQueue := orchestrator.NewSentenceQueue()

	playback := audio.NewPlaybackBuffer()
	broadcaster := audio.NewBroadcaster()
	echo := orchestrator.NewEchoSuppressor()

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		log.Println(err)
		return 1
	}
	defer mctx.Uninit()

	onSamples := func(pOutput, pInput []byte, frameCount uint32) {
		if pInput != nil {
			broadcaster.Publish(echo.RemoveEchoRealtime(pInput))
		}
		if pOutput != nil {
			n := playback.Fill(pOutput)
			echo.RecordPlayedAudio(pOutput[:n])
		}
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Duplex)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = 1
	deviceConfig.SampleRate = sampleRate
	deviceConfig.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onSamples})
	if err != nil {
		log.Println(err)
		return 1
	}
	defer device.Uninit()
	if err := device.Start(); err != nil {
		log.Println(err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	micWatcherCfg := orchestrator.DefaultMicWatcherConfig()
	micWatcher := orchestrator.NewMicEnergyWatcher(micWatcherCfg, ctrl, nil)
	go micWatcher.Run(broadcaster.Subscribe(), ctx.Done())

	vad := orchestrator.NewRMSVAD(0.02, 500*time.Millisecond)
	sttSource := orchestrator.NewSegmentingSTTSource(broadcaster.Subscribe(), vad, stt, orchestrator.LanguageEn, 3200, nil)
	go orchestrator.Worker(ctx, sttSource, ctrl, nil)

	ttsPipeline := orchestrator.NewTTSPipeline(
		orchestrator.TTSPipelineConfig{ReferencesFolder: ttsConfig.ReferencesFolder, DebugLog: ttsConfig.DbgLog},
		engine, sentenceQueue, ctrl, playback.Append, nil,
	)

	turn := orchestrator.NewTurnOrchestrator(
		orchestrator.TurnOrchestratorConfig{SystemPrompt: systemPrompt},
		ctrl,
		orchestrator.NewUtteranceCoalescer(orchestrator.DefaultCoalescerConfig(), ctrl),
		llm,
		ttsPipeline,
		sentenceQueue,
		engine,
		conv,
		metrics,
		nil,
		func(ev orchestrator.OrchestratorEvent) {
			if ev.Type == orchestrator.Interrupted {
				playback.Clear()
			}
			fmt.Printf("[%s] %v\n", ev.Type, ev.Data)
		},
	)

	app := orchestrator.NewApp(conv, ctrl, metrics, nil, turn)
	outputLog := orchestrator.NewOutputLog(*outputFilePath)

	sig := make(chan os.Signal, 2)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		fmt.Println("\nshutting down...")
		cancel()
		select {
		case <-sig:
			fmt.Println("second signal received, forcing exit")
			os.Exit(1)
		case <-time.After(2 * time.Second):
		}
		app.Shutdown()
	}()

	fmt.Println("turnloop agent started. press Ctrl+C to exit.")
	for {
		select {
		case <-ctx.Done():
			return 0
		default:
		}
		if app.Turn().State() == orchestrator.StateShuttingDown {
			return 0
		}
		if err := app.Turn().RunTurn(ctx); err != nil {
			fmt.Printf("turn error: %v\n", err)
		}
		if err := outputLog.Write(app.Conversation.GetHistory()); err != nil {
			fmt.Printf("failed to write output log: %v\n", err)
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func buildSTT(name string) (orchestrator.STTProvider, error) {
	switch name {
	case "openai":
		key := os.Getenv("OPENAI_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("%w: OPENAI_API_KEY must be set for openai STT", orchestrator.ErrConfig)
		}
		s := sttProvider.NewOpenAISTT(key, "whisper-1")
		s.SetSampleRate(sampleRate)
		return s, nil
	case "deepgram":
		key := os.Getenv("DEEPGRAM_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("%w: DEEPGRAM_API_KEY must be set for deepgram STT", orchestrator.ErrConfig)
		}
		return sttProvider.NewDeepgramSTT(key), nil
	case "assemblyai":
		key := os.Getenv("ASSEMBLYAI_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("%w: ASSEMBLYAI_API_KEY must be set for assemblyai STT", orchestrator.ErrConfig)
		}
		return sttProvider.NewAssemblyAISTT(key), nil
	case "groq":
		fallthrough
	default:
		key := os.Getenv("GROQ_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("%w: GROQ_API_KEY must be set for groq STT", orchestrator.ErrConfig)
		}
		model := envOr("GROQ_STT_MODEL", "whisper-large-v3-turbo")
		return sttProvider.NewGroqSTT(key, model), nil
	}
}

func buildLLM(name string) (orchestrator.StreamingLLM, error) {
	switch name {
	case "anthropic":
		key := os.Getenv("ANTHROPIC_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("%w: ANTHROPIC_API_KEY must be set for anthropic LLM", orchestrator.ErrConfig)
		}
		return llmProvider.NewAnthropicStreamingLLM(key, envOr("ANTHROPIC_MODEL", "")), nil
	case "google":
		key := os.Getenv("GOOGLE_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("%w: GOOGLE_API_KEY must be set for google LLM", orchestrator.ErrConfig)
		}
		return llmProvider.NewOneShotStreamingAdapter(llmProvider.NewGoogleLLM(key, envOr("GOOGLE_MODEL", ""))), nil
	case "groq":
		key := os.Getenv("GROQ_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("%w: GROQ_API_KEY must be set for groq LLM", orchestrator.ErrConfig)
		}
		return llmProvider.NewOneShotStreamingAdapter(llmProvider.NewGroqLLM(key, envOr("GROQ_LLM_MODEL", ""))), nil
	case "openai-oneshot":
		key := os.Getenv("OPENAI_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("%w: OPENAI_API_KEY must be set for openai-oneshot LLM", orchestrator.ErrConfig)
		}
		return llmProvider.NewOneShotStreamingAdapter(llmProvider.NewOpenAILLM(key, envOr("OPENAI_MODEL", ""))), nil
	case "anthropic-oneshot":
		key := os.Getenv("ANTHROPIC_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("%w: ANTHROPIC_API_KEY must be set for anthropic-oneshot LLM", orchestrator.ErrConfig)
		}
		return llmProvider.NewOneShotStreamingAdapter(llmProvider.NewAnthropicLLM(key, envOr("ANTHROPIC_MODEL", ""))), nil
	case "openai":
		fallthrough
	default:
		key := os.Getenv("OPENAI_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("%w: OPENAI_API_KEY must be set for openai LLM", orchestrator.ErrConfig)
		}
		return llmProvider.NewOpenAIStreamingLLM(key, os.Getenv("OPENAI_LLM_URL"), envOr("OPENAI_MODEL", "")), nil
	}
}
