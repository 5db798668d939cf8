package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"tori-vahti/internal/models"
)

// Config holds the watches to register with the API.
type Config struct {
	Watches []models.Watch `json:"watches"`
}

func main() {
	configPath := flag.String("config", "watches.json", "Path to JSON config file with watches")
	apiBase := flag.String("api", "http://localhost:8080", "API base URL")
	flag.Parse()

	if err := run(*configPath, *apiBase, nil); err != nil {
		log.Fatal(err)
	}
}

// run loads config from configPath, parses apiBase, and registers all
// watches with the API concurrently. If client is nil, a default HTTP
// client (30s timeout) is used.
func run(configPath, apiBase string, client *http.Client) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	baseURL, err := url.Parse(apiBase)
	if err != nil {
		return err
	}

	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	var wg sync.WaitGroup
	for i, wt := range cfg.Watches {
		wg.Add(1)
		go func(idx int, wt models.Watch) {
			defer wg.Done()
			submitWatch(client, baseURL, idx, wt)
		}(i, wt)
	}
	wg.Wait()
	log.Printf("submitted %d watches", len(cfg.Watches))
	return nil
}

// loadConfig reads and parses the JSON config file.
func loadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if len(cfg.Watches) == 0 {
		return cfg, errNoWatches
	}
	return cfg, nil
}

var errNoWatches = fmt.Errorf("config has no watches")

func submitWatch(client *http.Client, base *url.URL, idx int, wt models.Watch) {
	payload, err := json.Marshal(wt)
	if err != nil {
		log.Printf("[%d] watch=%q err=%v", idx, wt.Name, err)
		return
	}

	u := *base
	u.Path = "/watches"

	resp, err := client.Post(u.String(), "application/json", bytes.NewReader(payload))
	if err != nil {
		log.Printf("[%d] watch=%q err=%v", idx, wt.Name, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		log.Printf("[%d] watch=%q status=%d", idx, wt.Name, resp.StatusCode)
		return
	}
	log.Printf("[%d] watch=%q accepted", idx, wt.Name)
}
