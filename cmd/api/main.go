package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"planify/internal/llm"
	"planify/internal/llmclient"
	"planify/internal/pipeline"
	"planify/internal/platform/logger"
	"planify/internal/prompt"
	"planify/internal/runstore"
)

func main() {
	port := flag.String("port", ":8080", "server port")
	flag.Parse()

	_ = godotenv.Load()

	log, err := logger.New(os.Getenv("LOG_MODE"))
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if err := prompt.ValidateTemplates(); err != nil {
		log.Fatal("template validation failed", "error", err)
	}

	ctx := context.Background()
	client, err := buildClient(ctx)
	if err != nil {
		log.Fatal("llm client init failed", "error", err)
	}
	defer client.Close()

	// One shared limiter: the broker reserves fan-out budgets from the same
	// bucket the per-call middleware drains. LLM_RPS/LLM_BURST take priority
	// over GEMINI_RPS/GEMINI_BURST; neither set means unlimited.
	limiter := llm.NewLimiterFromEnv("LLM", "GEMINI")

	store, err := runstore.New(envInt("PLAN_CACHE_SIZE", 256))
	if err != nil {
		log.Fatal("run store init failed", "error", err)
	}

	srv := &apiServer{
		log:     log,
		store:   store,
		client:  llm.Wrap(client, llm.RateLimitWith(limiter)),
		limiter: limiter,
		cfg: pipeline.Config{
			CallTimeout: envDuration("LLM_CALL_TIMEOUT", 60*time.Second),
			Deadline:    envDuration("PIPELINE_DEADLINE", 5*time.Minute),
			MaxAttempts: envInt("LLM_MAX_ATTEMPTS", 2),
			Temperature: envFloat("LLM_TEMPERATURE", 0.4),
			MaxTokens:   envInt("LLM_MAX_TOKENS", 0),
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/plans/generate", srv.handleGenerate)
	mux.HandleFunc("GET /api/runs/{id}", srv.handleGetRun)
	mux.HandleFunc("GET /api/runs/{id}/watch", srv.handleWatchWS)

	h := withCORS(mux)
	log.Info("starting api server", "port", *port, "model", client.Name())
	if err := http.ListenAndServe(*port, h2c.NewHandler(h, &http2.Server{})); err != nil {
		log.Fatal("server stopped", "error", err)
	}
}

// buildClient selects the provider. LLM_PROVIDER=fake gives deterministic
// offline output; anything else is Gemini.
func buildClient(ctx context.Context) (llmclient.LLMClient, error) {
	if strings.EqualFold(os.Getenv("LLM_PROVIDER"), "fake") {
		return llm.NewFakeClient(), nil
	}
	model := os.Getenv("GEMINI_MODEL")
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return llmclient.NewGeminiClient(ctx, os.Getenv("GEMINI_API_KEY"), model)
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Authorization")
		if r.Method == http.MethodOptions {
			return
		}
		next.ServeHTTP(w, r)
	})
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
