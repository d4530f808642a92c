package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"congreso/internal"
)

type Config struct {
	DBPath          string
	OutputDir       string
	ExportXLSX      bool
	AliasesPath     string
	CategoriesPath  string
	LogLevel        string
	LogFormat       string
	MetricsTextfile string

	Embedder           string
	OllamaHost         string
	OllamaEmbedModel   string
	OllamaChatModel    string
	OllamaRateLimitRPS int
	OnnxLibraryPath    string
	OnnxModelPath      string
	OnnxTokenizerPath  string
	OnnxMaxSeqLen      int
	OnnxEmbedDim       int

	MatchTopK          int
	LexicalThreshold   float64
	NameMatchThreshold float64
	CareerThreshold    float64
	SemanticThreshold  float64
	StandardizeWorkers int

	CamaraBaseURL     string
	SenadoBaseURL     string
	BCNBaseURL        string
	FetchRateLimitRPS int
	FetchTimeoutMs    int
	FetchMaxAttempts  int
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath:          getEnv("DB_PATH", filepath.Join(cwd, "data", "congreso.db")),
		OutputDir:       getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),
		ExportXLSX:      getEnvBool("EXPORT_XLSX", false),
		AliasesPath:     getEnv("ALIASES_PATH", ""),
		CategoriesPath:  getEnv("CATEGORIES_PATH", ""),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "console"),
		MetricsTextfile: getEnv("METRICS_TEXTFILE", ""),

		Embedder:           strings.ToLower(getEnv("EMBEDDER", "none")),
		OllamaHost:         getEnv("OLLAMA_HOST", "http://127.0.0.1:11434"),
		OllamaEmbedModel:   getEnv("OLLAMA_EMBED_MODEL", "nomic-embed-text"),
		OllamaChatModel:    getEnv("OLLAMA_CHAT_MODEL", "llama3.1"),
		OllamaRateLimitRPS: getEnvInt("OLLAMA_RATE_LIMIT_RPS", 10),
		OnnxLibraryPath:    getEnv("ONNX_LIBRARY_PATH", ""),
		OnnxModelPath:      getEnv("ONNX_MODEL_PATH", filepath.Join(cwd, "models", "paraphrase-multilingual-MiniLM-L12-v2", "model.onnx")),
		OnnxTokenizerPath:  getEnv("ONNX_TOKENIZER_PATH", filepath.Join(cwd, "models", "paraphrase-multilingual-MiniLM-L12-v2", "tokenizer.json")),
		OnnxMaxSeqLen:      getEnvInt("ONNX_MAX_SEQ_LEN", 128),
		OnnxEmbedDim:       getEnvInt("ONNX_EMBED_DIM", 384),

		MatchTopK:          getEnvInt("MATCH_TOP_K", 5),
		LexicalThreshold:   getEnvFloat("LEXICAL_THRESHOLD", 90),
		NameMatchThreshold: getEnvFloat("NAME_MATCH_THRESHOLD", 70),
		CareerThreshold:    getEnvFloat("CAREER_THRESHOLD", 90),
		SemanticThreshold:  getEnvFloat("SEMANTIC_THRESHOLD", 0.65),
		StandardizeWorkers: getEnvInt("STANDARDIZE_WORKERS", 1),

		CamaraBaseURL:     getEnv("CAMARA_BASE_URL", "https://opendata.camara.cl/wscamaradiputados.asmx"),
		SenadoBaseURL:     getEnv("SENADO_BASE_URL", "https://tramitacion.senado.cl/wspublico"),
		BCNBaseURL:        getEnv("BCN_BASE_URL", "https://www.bcn.cl/historiapolitica/resenas_parlamentarias"),
		FetchRateLimitRPS: getEnvInt("FETCH_RATE_LIMIT_RPS", 2),
		FetchTimeoutMs:    getEnvInt("FETCH_TIMEOUT_MS", 30000),
		FetchMaxAttempts:  getEnvInt("FETCH_MAX_ATTEMPTS", 5),
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

// Policy returns the cascade policy for an entity type. Unknown entity
// types get a lexical-only policy at the general threshold.
func (c Config) Policy(entity internal.EntityType) internal.Policy {
	p := internal.Policy{
		Entity:            entity,
		Scorer:            internal.ScorerTokenSort,
		TopK:              c.MatchTopK,
		LexicalThreshold:  c.LexicalThreshold,
		SemanticThreshold: c.SemanticThreshold,
	}
	switch entity {
	case internal.EntityUniversity:
		p.Stages = internal.Stages{Alias: true, Lexical: true, Semantic: true}
		p.EmptyLabel = "Desconocida"
		p.UnknownLabel = "Otra / Desconocida"
	case internal.EntitySchool:
		p.Stages = internal.Stages{Lexical: true, Semantic: true}
		p.EmptyLabel = "Desconocido"
		p.UnknownLabel = "Otro / Desconocido"
	case internal.EntityCareer:
		p.Stages = internal.Stages{Alias: true, Lexical: true}
		p.LexicalThreshold = c.CareerThreshold
		p.StemTokens = true
		p.EmptyLabel = "Desconocida"
		p.UnknownLabel = "Otra / Desconocida"
	case internal.EntityLegislator:
		p.Stages = internal.Stages{Lexical: true}
		p.Scorer = internal.ScorerTwoPassTokenSet
		p.LexicalThreshold = c.NameMatchThreshold
	default:
		p.Stages = internal.Stages{Lexical: true}
	}
	return p
}

// WithoutSemantic drops the semantic stage, for runs without an embedder.
func WithoutSemantic(p internal.Policy) internal.Policy {
	p.Stages.Semantic = false
	return p
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}
