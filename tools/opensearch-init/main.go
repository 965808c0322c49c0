// Command opensearch-init installs the ECS index template used by the
// opensearch output binding.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	opensearch "github.com/opensearch-project/opensearch-go/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// putTemplate uploads an index template after checking it is valid JSON
func putTemplate(client *opensearch.Client, name string, body []byte) error {
	if !json.Valid(body) {
		return fmt.Errorf("template %s is not valid JSON", name)
	}
	res, err := client.Indices.PutIndexTemplate(name, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to put template %s: %w", name, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("OpenSearch error: %s", res.String())
	}
	return nil
}

func main() {
	var (
		addr         = flag.String("addr", "http://localhost:9200", "OpenSearch address")
		username     = flag.String("username", os.Getenv("OPENSEARCH_USERNAME"), "OpenSearch user")
		password     = flag.String("password", os.Getenv("OPENSEARCH_PASSWORD"), "OpenSearch password")
		template     = flag.String("template", "nsg-flowlogs", "Index template name")
		templateFile = flag.String("mapping", "configs/opensearch/nsg_flowlogs_template.json", "Index template JSON file")
	)
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})

	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: []string{*addr},
		Username:  *username,
		Password:  *password,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create client")
	}

	body, err := os.ReadFile(*templateFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Unable to read template file")
	}

	if err := putTemplate(client, *template, body); err != nil {
		log.Fatal().Err(err).Msg("Failed to install template")
	}
	log.Info().Str("template", *template).Msg("Template installed")
}
