package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"crawl-scheduler/pkg/config"
	"crawl-scheduler/pkg/fetch"
	"crawl-scheduler/pkg/models"
	"crawl-scheduler/pkg/parse"
	"crawl-scheduler/pkg/policy"
	"crawl-scheduler/pkg/scheduler"
	"crawl-scheduler/pkg/storage"
	"crawl-scheduler/pkg/utils"
)

// outcomeRecord is the JSONL form of one terminal outcome.
type outcomeRecord struct {
	URL        string `json:"url"`
	Status     string `json:"status"`
	HTTPStatus int    `json:"http_status,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Attempts   int    `json:"attempts"`
	Category   string `json:"category,omitempty"`
	Error      string `json:"error,omitempty"`
}

func main() {
	// --- Early Initialization & Flags ---
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	log.SetLevel(logrus.InfoLevel) // Default level

	configFileFlag := flag.String("config", "config.yaml", "Path to YAML config file")
	urlsFileFlag := flag.String("urls", "-", "File with URLs to schedule, one per line ('-' for stdin)")
	logLevelFlag := flag.String("loglevel", "info", "Log level (debug, info, warn, error, fatal)")
	journalFlag := flag.Bool("journal", false, "Persist outcomes to the BadgerDB journal in state_dir")
	outFileFlag := flag.String("out", "", "JSONL outcome output file (default stdout)")
	flag.Parse()

	// --- Logger Configuration ---
	level, err := logrus.ParseLevel(*logLevelFlag)
	if err != nil {
		log.Warnf("Invalid log level '%s', using default 'info'. Error: %v", *logLevelFlag, err)
	} else {
		log.SetLevel(level)
	}

	// --- Load Application Configuration ---
	log.Infof("Loading configuration from %s", *configFileFlag)
	yamlFile, err := os.ReadFile(*configFileFlag)
	if err != nil {
		log.Fatalf("Read config file '%s' error: %v", *configFileFlag, err)
	}
	var appCfg config.AppConfig
	if err := yaml.Unmarshal(yamlFile, &appCfg); err != nil {
		log.Fatalf("Parse config file '%s' error: %v", *configFileFlag, err)
	}

	// --- Validate Configuration ---
	warnings, err := appCfg.Validate()
	for _, w := range warnings {
		log.Warn(w)
	}
	if err != nil {
		// Configuration errors are fatal to the whole run
		log.Fatalf("Configuration error: %v", err)
	}
	log.Infof("Effective config: global=%d per_origin=%d spacing=%v retries=%d backoff=%v x%g agent=%q",
		appCfg.GlobalConcurrency, appCfg.PerOriginConcurrency, appCfg.MinSpacing,
		*appCfg.MaxRetries, appCfg.BackoffBase, appCfg.BackoffMultiplier, appCfg.UserAgent)

	// --- Read URL Batch ---
	urls, err := readURLs(*urlsFileFlag)
	if err != nil {
		log.Fatalf("Reading URLs from '%s': %v", *urlsFileFlag, err)
	}
	if len(urls) == 0 {
		log.Fatal("No URLs to schedule.")
	}
	log.Infof("Scheduling %d URL(s)", len(urls))

	// --- Run Context: signals + optional run timeout ---
	runCtx, cancelRun := context.WithCancel(context.Background())
	if appCfg.ScheduleTimeout > 0 {
		log.Infof("Setting run timeout: %v", appCfg.ScheduleTimeout)
		runCtx, cancelRun = context.WithTimeout(context.Background(), appCfg.ScheduleTimeout)
	}
	defer cancelRun()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Warnf("Received signal %v, stopping new admissions...", sig)
		cancelRun()
	}()

	// --- Build Components ---
	runID := uuid.NewString()
	baseLog := logrus.NewEntry(log).WithField("run_id", runID)

	httpClient := fetch.NewClient(appCfg.HTTPClientSettings, log)
	robotsClient := fetch.NewRobotsClient(httpClient, appCfg.UserAgent)
	policyCache := policy.New(robotsClient, appCfg.UserAgent, appCfg.RobotsTimeout, baseLog)
	pageClient := fetch.NewPageClient(httpClient, appCfg.UserAgent, baseLog)

	sched, err := scheduler.New(&appCfg, policyCache, pageClient, baseLog)
	if err != nil {
		log.Fatalf("Building scheduler: %v", err)
	}

	// --- Optional Outcome Journal ---
	var journal storage.OutcomeStore
	if *journalFlag {
		// Journals are scoped per agent identity: policies and outcomes for
		// different agent tokens must not share a DB
		journalDir := filepath.Join(appCfg.StateDir, utils.SanitizeFilename(appCfg.UserAgent))
		store, err := storage.NewBadgerStore(journalDir, runID, baseLog)
		if err != nil {
			log.Fatalf("Opening outcome journal: %v", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				log.Errorf("Closing outcome journal: %v", err)
			}
		}()
		go store.RunGC(runCtx, 10*time.Minute)
		journal = store
	}

	// --- Schedule ---
	startTime := time.Now()
	outcomes := sched.ScheduleAll(runCtx, urls)
	duration := time.Since(startTime)

	// --- Emit Outcomes (input order) ---
	out := os.Stdout
	if *outFileFlag != "" {
		f, err := os.Create(*outFileFlag)
		if err != nil {
			log.Fatalf("Creating output file '%s': %v", *outFileFlag, err)
		}
		defer f.Close()
		out = f
	}

	failures := 0
	writer := bufio.NewWriter(out)
	encoder := json.NewEncoder(writer)
	for i := range outcomes {
		o := &outcomes[i]
		if o.Status == models.OutcomeStatusFailure {
			failures++
		}
		if err := encoder.Encode(toRecord(o)); err != nil {
			log.Errorf("Writing outcome for '%s': %v", o.URL, err)
		}
		if journal != nil {
			recordToJournal(journal, o, baseLog)
		}
	}
	if err := writer.Flush(); err != nil {
		log.Errorf("Flushing outcome output: %v", err)
	}

	// --- Summary ---
	stats := sched.Stats()
	summary := countByStatus(outcomes)
	baseLog.WithFields(logrus.Fields{
		"duration":       duration.Round(time.Millisecond),
		"success":        summary[models.OutcomeStatusSuccess],
		"failure":        summary[models.OutcomeStatusFailure],
		"denied":         summary[models.OutcomeStatusDenied],
		"cached_origins": stats.CachedOriginCount,
	}).Info("Run complete")

	if failures > 0 {
		os.Exit(1)
	}
}

// readURLs loads the URL batch from a file or stdin, skipping blank lines and
// # comments. Input order is preserved; it determines outcome order.
func readURLs(path string) ([]string, error) {
	var reader io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		reader = f
	}

	var urls []string
	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	return urls, scanner.Err()
}

func toRecord(o *models.Outcome) outcomeRecord {
	rec := outcomeRecord{
		URL:      o.URL,
		Status:   o.Status.String(),
		Reason:   o.Reason,
		Attempts: o.Attempts,
		Category: o.Category,
	}
	if o.Result != nil {
		rec.HTTPStatus = o.Result.StatusCode
	}
	if o.Err != nil {
		rec.Error = o.Err.Error()
	}
	return rec
}

// recordToJournal persists one outcome; journal errors are logged, never fatal.
func recordToJournal(journal storage.OutcomeStore, o *models.Outcome, log *logrus.Entry) {
	key := o.URL
	if normalized, _, err := parse.ParseAndNormalize(o.URL); err == nil {
		key = normalized
	}

	entry := &models.OutcomeEntry{
		Status:     o.Status,
		Category:   o.Category,
		Reason:     o.Reason,
		Attempts:   o.Attempts,
		RecordedAt: time.Now(),
	}
	if o.Result != nil {
		entry.HTTPStatus = o.Result.StatusCode
		entry.PayloadHash = utils.HashContent(o.Result.Payload)
	}

	if err := journal.RecordOutcome(key, entry); err != nil {
		log.Errorf("Journaling outcome for '%s': %v", o.URL, err)
	}
}

func countByStatus(outcomes []models.Outcome) map[models.OutcomeStatus]int {
	counts := make(map[models.OutcomeStatus]int, 3)
	for i := range outcomes {
		counts[outcomes[i].Status]++
	}
	return counts
}
