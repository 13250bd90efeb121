package env

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	AWSRegion        = "AWS_REGION"
	AWSID            = "AWS_ID"
	AWSSecret        = "AWS_SECRET"
	AWSToken         = "AWS_TOKEN"
	DynamoDBEndpoint = "DYNAMODB_ENDPOINT"
	PostgresDSN      = "POSTGRES_DSN"
	StoreDriver      = "STORE_DRIVER"
	RealtimeDriver   = "REALTIME_DRIVER"
	AdminSecretKey   = "ADMIN_SECRET"
	AdminEmail       = "ADMIN_EMAIL"
	AdminPassword    = "ADMIN_PASSWORD"
	AdminName        = "ADMIN_NAME"
	AuthRedisURL     = "AUTH_REDIS_URL"
	AuthRedisPass    = "AUTH_REDIS_PASS"
	ChatRedisURL     = "CHAT_REDIS_URL"
	ChatRedisPass    = "CHAT_REDIS_PASS"
	KafkaBrokers     = "KAFKA_BROKERS"
	KafkaTopic       = "KAFKA_TOPIC"
	AllowedOrigins   = "ALLOWED_ORIGINS"
	QueueSize        = "QUEUE_SIZE"
	QueueWorkers     = "QUEUE_WORKERS"
	AccessTokenTTL   = "ACCESS_TOKEN_TTL"
	PublicAddr       = "PUBLIC_ADDR"
	AdminAddr        = "ADMIN_ADDR"
	WSAddr           = "WS_ADDR"
)

const (
	DriverDynamoDB = "dynamodb"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverMemory   = "memory"
)

// Load reads an optional .env file into the process environment. Variables already set
// in the environment win over the file.
func Load(files ...string) {
	if err := godotenv.Load(files...); err != nil && !os.IsNotExist(err) {
		log.Printf("env: could not load .env: %v", err)
	}
}

// Require returns an error naming every key that is unset.
func Require(keys ...string) error {
	var missing []string
	for _, key := range keys {
		if strings.TrimSpace(os.Getenv(key)) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("env: required environment variables not set: %s", strings.Join(missing, ", "))
	}
	return nil
}

func Get(key string) string {
	return os.Getenv(key)
}

func GetOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func GetInt(key string, defaultVal int) int {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		log.Printf("env: %s=%q is not an integer, using %d", key, val, defaultVal)
		return defaultVal
	}
	return n
}

func GetDuration(key string, defaultVal time.Duration) time.Duration {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		log.Printf("env: %s=%q is not a duration, using %s", key, val, defaultVal)
		return defaultVal
	}
	return d
}

// GetList splits a comma separated value, dropping blanks.
func GetList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func MustGet(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic("env: required environment variable not set: " + key)
	}
	return val
}
