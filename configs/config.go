package config

import (
	"os"
	"strconv"
	"time"
)

type S3 struct {
	Region     string
	AccessKey  string
	SecretKey  string
	BucketName string
	Endpoint   string
	PathStyle  bool
}

type Config struct {
	Port              string
	DataDir           string
	UseS3Posts        bool
	RedisURI          string
	SecretKey         string
	CookieName        string
	AdminPassword     string
	AdminPasswordHash string
	FrontendURL       string
	MediaBaseURL      string
	ScanTimeout       time.Duration
	IndexCacheTTL     time.Duration
	S3                S3
}

func LoadConfig() *Config {
	return &Config{
		Port:              getEnv("PORT", "3000"),
		DataDir:           getEnv("DATA_DIR", "data"),
		UseS3Posts:        getEnvBool("USE_S3_POSTS", false),
		RedisURI:          getEnv("REDIS_URI", ""),
		SecretKey:         getEnv("SECRET_KEY", ""),
		CookieName:        getEnv("COOKIE_NAME", "authenticated"),
		AdminPassword:     getEnv("ADMIN_PASSWORD", ""),
		AdminPasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
		FrontendURL:       getEnv("FRONTEND_URL", "http://localhost:5173"),
		MediaBaseURL:      getEnv("MEDIA_BASE_URL", ""),
		ScanTimeout:       getEnvSeconds("S3_SCAN_TIMEOUT_SECONDS", 30),
		IndexCacheTTL:     getEnvSeconds("INDEX_CACHE_TTL_SECONDS", 30),
		S3: S3{
			Region:     getEnv("AWS_REGION", "us-east-2"),
			AccessKey:  getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
			BucketName: getEnv("AWS_S3_BUCKET_NAME", ""),
			Endpoint:   getEnv("AWS_ENDPOINT", ""),
			PathStyle:  getEnvBool("S3_FORCE_PATH_STYLE", false),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1"
}

func getEnvSeconds(key string, defaultValue int) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return time.Duration(defaultValue) * time.Second
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return time.Duration(defaultValue) * time.Second
	}
	return time.Duration(n) * time.Second
}
