package main

import (
	"fmt"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/ingest/internal/config"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/ingest/internal/ingestion"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/ingest/internal/observability"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/ingest/internal/service"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/ingest/internal/tail"
)

func newStage1Cmd() *cobra.Command {
	var blobPath string
	cmd := &cobra.Command{
		Use:   "stage1",
		Short: "Chunk the new blocks of one flow-log blob",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			rt, err := newApp(ctx, appOptions{producer: true})
			if err != nil {
				return err
			}
			defer rt.Close()

			result, err := service.NewChunker(rt.cfg, rt.deps).Run(ctx, blobPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d chunks published, checkpoint %d -> %d (invocation %s)\n",
				result.Chunks, result.From, result.Checkpoint, result.InvocationID)
			return nil
		},
	}
	cmd.Flags().StringVar(&blobPath, "blob", "", "blob path inside the source container")
	_ = cmd.MarkFlagRequired("blob")
	return cmd
}

func newWorkerCmd() *cobra.Command {
	var (
		stage string
		group string
	)
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume a stage topic until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			if stage != service.StageSplit && stage != service.StageTransmit {
				return fmt.Errorf("invalid stage %q (must be %q or %q)", stage, service.StageSplit, service.StageTransmit)
			}

			ctx, cancel := signalContext()
			defer cancel()

			rt, err := newApp(ctx, appOptions{producer: true, output: stage == service.StageTransmit})
			if err != nil {
				return err
			}
			defer rt.Close()

			handler, topic := stageHandler(rt.cfg, rt.deps, stage)
			if group == "" {
				group = fmt.Sprintf("%s-%s", rt.cfg.Kafka.ConsumerGroup, stage)
			}
			consumer, err := ingestion.NewKafkaConsumer(rt.cfg.Kafka, group)
			if err != nil {
				return err
			}
			defer func() {
				log.Info().Msg("Closing Kafka consumer")
				_ = consumer.Close()
			}()

			rt.serveMetrics(ctx)

			log.Info().Str("stage", stage).Str("topic", topic).Str("group", group).Msg("Starting stage worker")
			worker := service.NewStageWorker(service.WorkerConfig{
				Stage:           stage,
				Topic:           topic,
				DeadLetterTopic: rt.cfg.Kafka.DeadLetterTopic,
				PollTimeoutMs:   rt.cfg.Kafka.Consumer.PollTimeoutMs,
				RetryBackoff:    service.DefaultRetryBackoff,
			}, consumer, rt.deps.Producer, handler, rt.deps.Metrics)
			return worker.Start(ctx)
		},
	}
	cmd.Flags().StringVar(&stage, "stage", "", "stage to run: split or transmit")
	cmd.Flags().StringVarP(&group, "consumer-group", "g", "", "Kafka consumer group (default: <consumer_group>-<stage>)")
	_ = cmd.MarkFlagRequired("stage")
	return cmd
}

// stageHandler returns the handler of a worker stage and the topic it consumes
func stageHandler(cfg *config.Config, deps service.Dependencies, stage string) (service.Handler, string) {
	if stage == service.StageSplit {
		return service.NewSplitter(cfg, deps), cfg.Kafka.Stage1Topic
	}
	return service.NewTransmitter(deps), cfg.Kafka.Stage2Topic
}

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Poll the source container and chunk blobs that grew",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			rt, err := newApp(ctx, appOptions{producer: true})
			if err != nil {
				return err
			}
			defer rt.Close()

			watcher, err := service.NewWatcher(rt.cfg, rt.deps.Sources, service.NewChunker(rt.cfg, rt.deps))
			if err != nil {
				return err
			}
			rt.serveMetrics(ctx)
			return watcher.Start(ctx)
		},
	}
}

func newRescanCmd() *cobra.Command {
	var resetOnly bool
	cmd := &cobra.Command{
		Use:   "rescan <blob-path>",
		Short: "Reset a blob's checkpoint so its records are sent again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			rt, err := newApp(ctx, appOptions{producer: !resetOnly})
			if err != nil {
				return err
			}
			defer rt.Close()

			var runner service.BlobRunner
			if !resetOnly {
				runner = service.NewChunker(rt.cfg, rt.deps)
			}
			message, err := service.NewRescanner(rt.cfg, rt.deps.Sources, rt.deps.Checkpoints, runner).Rescan(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), message)
			return nil
		},
	}
	cmd.Flags().BoolVar(&resetOnly, "reset-only", false, "only reset the checkpoint; the watcher picks the blob up on its next change")
	return cmd
}

func newServeCmd() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve /metrics, /healthz and the rescan API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			rt, err := newApp(ctx, appOptions{producer: true})
			if err != nil {
				return err
			}
			defer rt.Close()

			if listen == "" {
				listen = rt.cfg.Metrics.ListenAddress
			}
			if listen == "" {
				listen = ":8080"
			}

			rescanner := service.NewRescanner(rt.cfg, rt.deps.Sources, rt.deps.Checkpoints, service.NewChunker(rt.cfg, rt.deps))
			return service.Serve(ctx, listen, service.NewAPIHandler(rt.deps.Metrics, rescanner.Rescan))
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default: metrics.listen_address or :8080)")
	return cmd
}

func newTestKafkaCmd() *cobra.Command {
	var brokers string
	cmd := &cobra.Command{
		Use:   "test-kafka",
		Short: "Check that the Kafka brokers are reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			if brokers == "" {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				brokers = cfg.Kafka.Brokers
			}
			return testKafkaConnection(cmd, brokers)
		},
	}
	cmd.Flags().StringVar(&brokers, "brokers", "", "Kafka brokers (overrides config)")
	return cmd
}

// testKafkaConnection tests the connection to Kafka
func testKafkaConnection(cmd *cobra.Command, brokers string) error {
	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
		"acks":              "all",
	})
	if err != nil {
		return fmt.Errorf("failed to create test producer: %w", err)
	}
	defer producer.Close()

	metadata, err := producer.GetMetadata(nil, true, 5000)
	if err != nil {
		return fmt.Errorf("failed to get metadata from %s: %w", brokers, err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Connected to Kafka cluster with %d brokers\n", len(metadata.Brokers))
	for _, broker := range metadata.Brokers {
		fmt.Fprintf(out, "  - Broker %d: %s:%d\n", broker.ID, broker.Host, broker.Port)
	}
	for name, topic := range metadata.Topics {
		fmt.Fprintf(out, "  - Topic %s: %d partitions\n", name, len(topic.Partitions))
	}
	return nil
}

func newTailCmd() *cobra.Command {
	var (
		topics       []string
		subscription string
		nsg          string
		outputFormat string
		showRaw      bool
		fromStart    bool
		brokers      string
	)
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print chunk and dead-letter messages from the stage topics",
		Long: `Tails the stage topics without committing offsets.

Examples:
  # Follow dead letters of one NSG
  nsgflow tail --topics stage-deadletter --nsg NSG-WEB

  # Dump stage 2 as JSON from the beginning
  nsgflow tail --topics stage2 --format json --from-start`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if outputFormat != tail.FormatText && outputFormat != tail.FormatJSON {
				return fmt.Errorf("invalid output format: %s (must be 'text' or 'json')", outputFormat)
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			observability.InitLogger(cfg.Logging.Level, cfg.Logging.Format)
			if brokers == "" {
				brokers = cfg.Kafka.Brokers
			}
			if len(topics) == 0 {
				topics = []string{cfg.Kafka.Stage1Topic, cfg.Kafka.Stage2Topic, cfg.Kafka.DeadLetterTopic}
			}

			offsetReset := "latest"
			if fromStart {
				offsetReset = "earliest"
			}
			consumer, err := ingestion.NewKafkaConsumerWithConfig(&kafka.ConfigMap{
				"bootstrap.servers":  brokers,
				"group.id":           fmt.Sprintf("%s-tail-%s", cfg.Kafka.ConsumerGroup, uuid.NewString()),
				"auto.offset.reset":  offsetReset,
				"enable.auto.commit": false,
			})
			if err != nil {
				return err
			}

			tailer := tail.NewTailer(consumer, topics, tail.FilterOptions{
				Subscription: subscription,
				NSG:          nsg,
				ShowRaw:      showRaw,
				OutputFormat: outputFormat,
			}, cmd.OutOrStdout())
			defer tailer.Close()

			ctx, cancel := signalContext()
			defer cancel()
			return tailer.Start(ctx)
		},
	}
	cmd.Flags().StringSliceVarP(&topics, "topics", "t", nil, "topics to tail (default: both stage topics and the dead-letter topic)")
	cmd.Flags().StringVarP(&subscription, "subscription", "s", "", "subscription id filter")
	cmd.Flags().StringVar(&nsg, "nsg", "", "NSG name filter")
	cmd.Flags().StringVarP(&outputFormat, "format", "f", tail.FormatText, "output format: text, json")
	cmd.Flags().BoolVar(&showRaw, "raw", false, "show message keys")
	cmd.Flags().BoolVar(&fromStart, "from-start", false, "read topics from the earliest offset")
	cmd.Flags().StringVar(&brokers, "brokers", "", "Kafka brokers (overrides config)")
	return cmd
}
