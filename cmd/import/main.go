// Command import loads a spreadsheet into a new analytics session and
// prints the session id.
//
//	import orders.csv
//	import s3://bucket/exports/orders.xlsx
//	import -wait https://example.com/orders.csv
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ignite/shipment-analytics/internal/config"
	"github.com/ignite/shipment-analytics/internal/pkg/httpretry"
	"github.com/ignite/shipment-analytics/internal/pkg/logger"
	"github.com/ignite/shipment-analytics/internal/service/dashboard"
	"github.com/ignite/shipment-analytics/internal/session"
	"github.com/ignite/shipment-analytics/internal/sheet"
	"github.com/ignite/shipment-analytics/internal/worker"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	wait := flag.Duration("wait", 0, "poll the job until it finishes or this long elapses")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: import [-config path] [-wait 2m] <file|s3://bucket/key|url>")
		os.Exit(2)
	}
	src := flag.Arg(0)

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	loader := sheet.NewLoader(nil, httpretry.NewRetryClient(&http.Client{Timeout: time.Minute}, cfg.Import.HTTPRetries,
		httpretry.WithMaxBytes(int64(cfg.Import.MaxFileMB)<<20)))
	if strings.HasPrefix(src, "s3://") {
		s3Client, err := sheet.NewS3Client(ctx, cfg.Storage.AWSRegion, cfg.Storage.GetAWSProfile())
		if err != nil {
			log.Fatalf("Failed to configure S3: %v", err)
		}
		loader = sheet.NewLoader(s3Client, nil, sheet.WithMaxBytes(int64(cfg.Import.MaxFileMB)<<20))
	}

	file, err := loader.Load(ctx, src)
	if err != nil {
		log.Fatalf("Failed to load %s: %v", src, err)
	}
	log.Printf("Loaded %s: %d rows (%d duplicates removed)", file.Format, len(file.Records), file.DuplicatesRemoved)

	store, err := session.Open(ctx, session.Options{URL: cfg.Redis.URL, TTL: cfg.Session.TTL()})
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer store.Close()

	sched := worker.NewScheduler(store.Client(), worker.SchedulerOptionsFrom(cfg.Worker))
	svc := dashboard.NewService(store, sched)

	res, err := svc.Import(ctx, file.Records, src)
	if err != nil {
		log.Fatalf("Import failed: %v", err)
	}
	if res.ScheduleError != "" {
		log.Printf("Warning: analytics not scheduled: %s", res.ScheduleError)
	}

	if *wait > 0 && res.Job != nil {
		if job := waitForJob(ctx, svc, res.SessionID, *wait); job != nil {
			res.Job = job
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		log.Fatal(err)
	}
}

// waitForJob polls until the session's job is done or the deadline passes.
func waitForJob(ctx context.Context, svc *dashboard.Service, sid string, d time.Duration) *worker.Job {
	deadline := time.Now().Add(d)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var last *worker.Job
	for time.Now().Before(deadline) {
		job, err := svc.JobStatus(ctx, sid)
		if err == nil {
			last = job
			if job.Done() {
				return job
			}
		}
		select {
		case <-ctx.Done():
			return last
		case <-ticker.C:
		}
	}
	if last != nil {
		log.Printf("Job still %s after %s", last.Status, d)
	}
	return last
}
