package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string
	SslCertPath string

	// VectorDatabaseURL is the separately-credentialed vector database. Empty
	// means the knowledge index is not configured; uploads then keep text only.
	VectorDatabaseURL string
	VectorTable       string
	Namespace         string

	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string

	AIAPIKey   string
	EmbedModel string
	EmbedDim   int
	GenModel   string

	ChunkSize    int
	ChunkOverlap int

	JWTSecret string
	Port      string
}

// LoadConfig loads the environment variables and returns config
func LoadConfig() *Config {

	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		SslCertPath:       getEnv("SSL_CERT_PATH", ""),
		VectorDatabaseURL: getEnv("VECTOR_DATABASE_URL", ""),
		VectorTable:       getEnv("VECTOR_TABLE", "knowledge_vectors"),
		Namespace:         getEnv("KNOWLEDGE_NAMESPACE", "default"),
		AwsAccessKey:      getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey:      getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:         getEnv("AWS_REGION", "us-east-2"),
		BucketName:        getEnv("BUCKET_NAME", "execteam-docs"),
		AIAPIKey:          getEnv("GEMINI_API_KEY", ""),
		EmbedModel:        getEnv("EMBED_MODEL", "text-embedding-004"),
		EmbedDim:          getEnvInt("EMBED_DIM", 1536),
		GenModel:          getEnv("GEN_MODEL", "gemini-1.5-flash"),
		ChunkSize:         getEnvInt("CHUNK_SIZE", 1000),
		ChunkOverlap:      getEnvInt("CHUNK_OVERLAP", 200),
		JWTSecret:         getEnv("JWT_SECRET", ""),
		Port:              getEnv("PORT", "8080"),
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}
	if cfg.VectorDatabaseURL == "" {
		log.Println("WARN: VECTOR_DATABASE_URL not set; knowledge indexing disabled, documents will be stored text-only")
	}
	if cfg.JWTSecret == "" {
		log.Println("WARN: JWT_SECRET not set; issued tokens will be signed with an empty secret")
	}

	return cfg
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}
