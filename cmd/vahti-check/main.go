package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"tori-vahti/common"
)

func main() {
	common.LoadEnv()

	broker := common.GetEnv("KAFKA_BROKER", "localhost:9092")
	runsTopic := common.GetEnv("KAFKA_RUNS_TOPIC", "vahti.watch.runs")
	redisAddr := common.GetEnv("REDIS_ADDR", "localhost:6379")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := kafka.DialContext(ctx, "tcp", broker)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to Kafka at %s: %v\n", broker, err)
		os.Exit(1)
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions(runsTopic)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read metadata for %s: %v\n", runsTopic, err)
		os.Exit(1)
	}
	fmt.Printf("connected to Kafka at %s (%s: %d partitions)\n", broker, runsTopic, len(partitions))

	client := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer client.Close()
	if err := client.Ping(ctx).Err(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to ping Redis at %s: %v\n", redisAddr, err)
		os.Exit(1)
	}
	fmt.Printf("connected to Redis at %s\n", redisAddr)
}
