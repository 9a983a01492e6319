// Command probe samples the Jaffle Shop API and checks what the endpoints
// actually return against the endpoint catalog.
//
// It is a bootstrapping and drift-detection aid, not part of the load path:
// run it before or after a pipeline run to see field presence, inferred types,
// bounded distinct counts, and any disagreement with the catalog schema.
//
// Exit status is non-zero when any probed endpoint fails to fetch or shows
// schema drift, so the command is usable as a CI check.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"jaffle/internal/config"
	"jaffle/internal/extract"
	"jaffle/internal/probe"
	"jaffle/internal/registry"
)

func main() {
	var (
		endpoint string
		pages    int
		records  int
	)
	flag.StringVar(&endpoint, "endpoint", "", "probe a single endpoint by name (default: all)")
	flag.IntVar(&pages, "pages", 1, "pages to sample per endpoint")
	flag.IntVar(&records, "records", 1000, "max records to examine per endpoint")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.FromEnv()
	if err != nil {
		fatalf("config: %v", err)
	}

	endpoints := registry.Endpoints
	if endpoint != "" {
		endpoints = nil
		for _, ep := range registry.Endpoints {
			if ep.Name == endpoint {
				endpoints = []registry.Endpoint{ep}
				break
			}
		}
		if len(endpoints) == 0 {
			fatalf("unknown endpoint %q (known: %s)", endpoint, strings.Join(registry.Names(), ", "))
		}
	}

	client := extract.NewClient(cfg.BaseURL, cfg.PageSize, cfg.HTTPTimeout)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	opts := probe.Options{MaxPages: pages, MaxRecords: records}
	failed := false
	for _, ep := range endpoints {
		rep, err := probe.Run(ctx, client.FetchPage, ep, opts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "probe %s: %v\n", ep.Name, err)
			failed = true
			continue
		}
		fmt.Println(probe.FormatReport(rep))
		if !rep.Clean() {
			failed = true
		}
	}

	if failed {
		os.Exit(1)
	}
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
