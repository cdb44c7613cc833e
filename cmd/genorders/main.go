package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"orderviews/internal/models"
)

// genorders produces random order events, either to a Kafka topic or to a
// JSONL file. A fraction of the orders can be made invalid (missing
// customer_id) to exercise the validation path.
func main() {
	var (
		count      int
		brokers    string
		topic      string
		outputFile string
		invalidPct int
		customers  int
		seed       int64
	)
	flag.IntVar(&count, "count", 100, "number of orders to generate")
	flag.StringVar(&brokers, "brokers", "localhost:9092", "comma-separated kafka brokers")
	flag.StringVar(&topic, "topic", "orders", "kafka topic to write to")
	flag.StringVar(&outputFile, "output", "", "write JSONL to this file instead of kafka")
	flag.IntVar(&invalidPct, "invalid-pct", 0, "percentage of orders with a missing customer_id")
	flag.IntVar(&customers, "customers", 20, "number of distinct customers")
	flag.Int64Var(&seed, "seed", 0, "random seed (0 uses current time)")
	flag.Parse()

	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	if err := generate(count, brokers, topic, outputFile, invalidPct, customers, rng); err != nil {
		log.Fatalf("generation failed: %v", err)
	}
}

func generate(count int, brokers, topic, outputFile string, invalidPct, customers int, rng *rand.Rand) error {
	products := []string{"P-100", "P-200", "P-300", "P-400", "P-500"}
	statuses := []string{models.StatusPending, models.StatusAccepted, models.StatusDenied}

	var sink func(key string, payload []byte) error

	if outputFile != "" {
		file, err := os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("create file: %w", err)
		}
		defer file.Close()
		sink = func(_ string, payload []byte) error {
			_, err := file.Write(append(payload, '\n'))
			return err
		}
	} else {
		writer := &kafka.Writer{
			Addr:         kafka.TCP(splitBrokers(brokers)...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
		}
		defer writer.Close()
		sink = func(key string, payload []byte) error {
			return writer.WriteMessages(context.Background(),
				kafka.Message{Key: []byte(key), Value: payload})
		}
	}

	baseTime := time.Now().UnixMilli()
	invalid := 0

	for i := 0; i < count; i++ {
		quantity := int64(1 + rng.Intn(5))
		unitPrice := float64(100+rng.Intn(9900)) / 100.0
		order := map[string]interface{}{
			"order_id":    fmt.Sprintf("ORD-%06d", i+1),
			"customer_id": int64(1 + rng.Intn(customers)),
			"product_id":  products[rng.Intn(len(products))],
			"quantity":    quantity,
			"unit_price":  unitPrice,
			"total":       float64(quantity) * unitPrice,
			"timestamp":   baseTime + int64(i*10),
			"status":      statuses[rng.Intn(len(statuses))],
		}

		if invalidPct > 0 && rng.Intn(100) < invalidPct {
			delete(order, "customer_id")
			invalid++
		}

		payload, err := json.Marshal(order)
		if err != nil {
			return fmt.Errorf("marshal order %d: %w", i+1, err)
		}

		// Key by customer so one customer's orders land on one partition.
		key := ""
		if id, ok := order["customer_id"].(int64); ok {
			key = strconv.FormatInt(id, 10)
		}
		if err := sink(key, payload); err != nil {
			return fmt.Errorf("write order %d: %w", i+1, err)
		}
	}

	dest := topic
	if outputFile != "" {
		dest = outputFile
	}
	log.Printf("generated %d orders (%d invalid) to %s", count, invalid, dest)
	return nil
}

func splitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
