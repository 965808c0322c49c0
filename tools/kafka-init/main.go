// Command kafka-init creates the pipeline stage topics from a YAML file.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// TopicSpec represents configuration for a single Kafka topic read from YAML
type TopicSpec struct {
	Partitions    int            `yaml:"partitions"`
	Replication   int            `yaml:"replication_factor"`
	CleanupPolicy string         `yaml:"cleanup.policy"`
	Other         map[string]any `yaml:",inline"`
}

// TopicFile is the root of kafka_topics.yaml
type TopicFile struct {
	Topics map[string]TopicSpec `yaml:"topics"`
}

// loadTopicFile parses a topic definition file
func loadTopicFile(path string) (*TopicFile, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", path, err)
	}
	var tf TopicFile
	if err := yaml.Unmarshal(content, &tf); err != nil {
		return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
	}
	return &tf, nil
}

// buildSpecs turns the topic file into admin specifications sorted by name.
// replication applies to topics that do not set their own factor.
func buildSpecs(tf *TopicFile, replication int) ([]kafka.TopicSpecification, error) {
	names := make([]string, 0, len(tf.Topics))
	for name := range tf.Topics {
		names = append(names, name)
	}
	sort.Strings(names)

	specs := make([]kafka.TopicSpecification, 0, len(names))
	for _, name := range names {
		t := tf.Topics[name]
		if t.Partitions <= 0 {
			return nil, fmt.Errorf("topic %s: partitions must be positive", name)
		}

		cfg := map[string]string{}
		if t.CleanupPolicy != "" {
			cfg["cleanup.policy"] = t.CleanupPolicy
		}
		for k, v := range t.Other {
			cfg[k] = fmt.Sprint(v)
		}

		factor := replication
		if t.Replication > 0 {
			factor = t.Replication
		}
		specs = append(specs, kafka.TopicSpecification{
			Topic:             name,
			NumPartitions:     t.Partitions,
			ReplicationFactor: factor,
			Config:            cfg,
		})
	}
	return specs, nil
}

func main() {
	var (
		brokerList  = flag.String("brokers", "localhost:9092", "Comma-separated list of bootstrap brokers")
		configPath  = flag.String("config", "configs/kafka_topics.yaml", "Path to kafka_topics.yaml")
		replication = flag.Int("replication", 1, "Replication factor for topics that do not set one")
		verbose     = flag.Bool("verbose", false, "Show detailed topic configurations")
		dryRun      = flag.Bool("dry-run", false, "Show what would be created without actually creating topics")
	)
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})

	tf, err := loadTopicFile(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load topic definitions")
	}
	if len(tf.Topics) == 0 {
		log.Warn().Str("config", *configPath).Msg("No topics defined")
		return
	}

	specs, err := buildSpecs(tf, *replication)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid topic definitions")
	}

	if *dryRun || *verbose {
		for _, s := range specs {
			fmt.Printf("%s (partitions: %d, replication: %d)\n", s.Topic, s.NumPartitions, s.ReplicationFactor)
			if *verbose {
				for k, v := range s.Config {
					fmt.Printf("   %s: %s\n", k, v)
				}
			}
		}
	}
	if *dryRun {
		return
	}

	admin, err := kafka.NewAdminClient(&kafka.ConfigMap{"bootstrap.servers": *brokerList})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create admin client")
	}
	defer admin.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	results, err := admin.CreateTopics(ctx, specs, kafka.SetAdminOperationTimeout(30*time.Second))
	if err != nil {
		log.Fatal().Err(err).Msg("CreateTopics request failed")
	}

	var created, existing, failed int
	for _, res := range results {
		switch res.Error.Code() {
		case kafka.ErrNoError:
			log.Info().Str("topic", res.Topic).Msg("Created topic")
			created++
		case kafka.ErrTopicAlreadyExists:
			log.Info().Str("topic", res.Topic).Msg("Topic already exists")
			existing++
		default:
			log.Error().Str("topic", res.Topic).Err(res.Error).Msg("Failed to create topic")
			failed++
		}
	}

	log.Info().Int("created", created).Int("existing", existing).Int("failed", failed).Msg("Topic bootstrap finished")
	if failed > 0 {
		os.Exit(1)
	}
}
