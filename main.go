package main

import (
	"bufio"
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/rollarc/rollarc/config"
	"github.com/rollarc/rollarc/logger"
	"github.com/rollarc/rollarc/pkg/metrics"
	"github.com/rollarc/rollarc/policy"
	"github.com/rollarc/rollarc/rotation"
	"github.com/rollarc/rollarc/storage"
	"github.com/rollarc/rollarc/uploader"
)

func main() {
	// Initialize with application defaults
	cfg := config.NewDefaultConfig()

	// --- Define Command-Line Flags ---
	// These flags override values from the config file if set. Their
	// defaults come from the initial cfg for consistent -help messages.
	configPath := flag.String("config", "rollarc.toml", "Path to TOML configuration file")

	fLogOutput := flag.String("logoutput", cfg.Logging.Output, "Log output: 'stderr', 'stdout', 'syslog' or a file path (overrides config)")
	fLogFormat := flag.String("logformat", cfg.Logging.Format, "Log format: 'console' or 'json' (overrides config)")
	fLogLevel := flag.String("loglevel", cfg.Logging.Level, "Log level: 'debug', 'info', 'warn' or 'error' (overrides config)")

	fS3Endpoint := flag.String("s3endpoint", cfg.S3.Endpoint, "S3 endpoint (overrides config)")
	fS3AccessKey := flag.String("s3accesskey", cfg.S3.AccessKey, "S3 access key (overrides config)")
	fS3SecretKey := flag.String("s3secretkey", cfg.S3.SecretKey, "S3 secret key (overrides config)")
	fS3Bucket := flag.String("s3bucket", cfg.S3.Bucket, "S3 bucket name (overrides config)")
	fS3Folder := flag.String("s3folder", cfg.S3.Folder, "S3 folder prefix for object keys (overrides config)")
	fS3Trace := flag.Bool("s3trace", cfg.S3.Trace, "Trace S3 operations (overrides config)")

	fRotationFile := flag.String("file", cfg.Rotation.File, "Active log file (overrides config)")
	fRotationMaxSize := flag.String("maxsize", cfg.Rotation.MaxSize, "Size threshold that triggers rotation (overrides config)")
	fRotationMaxIndex := flag.Int("maxindex", cfg.Rotation.MaxIndex, "Highest archive slot index (overrides config)")

	fRollingOnExit := flag.Bool("rollingonexit", cfg.Policy.RollingOnExit, "Roll and upload on exit instead of uploading the active file (overrides config)")
	fQueueSize := flag.Int("queuesize", cfg.Uploader.QueueSize, "Upload queue bound, 0 for unbounded (overrides config)")
	fDrainTimeout := flag.String("draintimeout", cfg.Uploader.DrainTimeout, "Bounded wait for uploads on shutdown (overrides config)")

	fMetricsAddr := flag.String("metricsaddr", cfg.Metrics.Addr, "Prometheus endpoint address, empty to disable (overrides config)")

	flag.Parse()

	// --- Load Configuration from TOML File ---
	if err := config.LoadFromFile(*configPath, &cfg); err != nil {
		if os.IsNotExist(err) {
			if isFlagSet("config") {
				log.Fatalf("Error: specified configuration file '%s' not found: %v", *configPath, err)
			}
			log.Printf("WARNING: default configuration file '%s' not found. Using application defaults and command-line flags.", *configPath)
		} else {
			log.Fatalf("Error loading configuration: %v", err)
		}
	} else {
		log.Printf("Loaded configuration from %s", *configPath)
	}

	// --- Apply Command-Line Flag Overrides ---
	if isFlagSet("logoutput") {
		cfg.Logging.Output = *fLogOutput
	}
	if isFlagSet("logformat") {
		cfg.Logging.Format = *fLogFormat
	}
	if isFlagSet("loglevel") {
		cfg.Logging.Level = *fLogLevel
	}
	if isFlagSet("s3endpoint") {
		cfg.S3.Endpoint = *fS3Endpoint
	}
	if isFlagSet("s3accesskey") {
		cfg.S3.AccessKey = *fS3AccessKey
	}
	if isFlagSet("s3secretkey") {
		cfg.S3.SecretKey = *fS3SecretKey
	}
	if isFlagSet("s3bucket") {
		cfg.S3.Bucket = *fS3Bucket
	}
	if isFlagSet("s3folder") {
		cfg.S3.Folder = *fS3Folder
	}
	if isFlagSet("s3trace") {
		cfg.S3.Trace = *fS3Trace
	}
	if isFlagSet("file") {
		cfg.Rotation.File = *fRotationFile
	}
	if isFlagSet("maxsize") {
		cfg.Rotation.MaxSize = *fRotationMaxSize
	}
	if isFlagSet("maxindex") {
		cfg.Rotation.MaxIndex = *fRotationMaxIndex
	}
	if isFlagSet("rollingonexit") {
		cfg.Policy.RollingOnExit = *fRollingOnExit
	}
	if isFlagSet("queuesize") {
		cfg.Uploader.QueueSize = *fQueueSize
	}
	if isFlagSet("draintimeout") {
		cfg.Uploader.DrainTimeout = *fDrainTimeout
	}
	if isFlagSet("metricsaddr") {
		cfg.Metrics.Addr = *fMetricsAddr
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// --- Initialize Logging ---
	logFile, err := logger.Initialize(logger.Options{
		Output: cfg.Logging.Output,
		Format: cfg.Logging.Format,
		Level:  cfg.Logging.Level,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	maxSize, err := cfg.Rotation.GetMaxSize()
	if err != nil {
		logger.Fatal("Invalid rotation.max_size", "error", err)
	}
	drainTimeout, err := cfg.Uploader.GetDrainTimeout()
	if err != nil {
		logger.Fatal("Invalid uploader.drain_timeout", "error", err)
	}

	// --- Wire Components ---
	s3storage, err := storage.New(storage.Options{
		Endpoint:  cfg.S3.Endpoint,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		Bucket:    cfg.S3.Bucket,
		UseTLS:    cfg.S3.UseTLS,
		Trace:     cfg.S3.Trace,
	})
	if err != nil {
		logger.Fatal("Failed to initialize S3 storage", "error", err)
	}

	roller, err := rotation.NewFixedWindowRoller(rotation.Options{
		File:     cfg.Rotation.File,
		MinIndex: cfg.Rotation.MinIndex,
		MaxIndex: cfg.Rotation.MaxIndex,
		MaxSize:  maxSize,
	})
	if err != nil {
		logger.Fatal("Failed to initialize rotation", "error", err)
	}

	worker := uploader.New(s3storage, uploader.Options{
		Folder:    cfg.S3.Folder,
		QueueSize: cfg.Uploader.QueueSize,
	})

	rollingPolicy := policy.New(roller, worker, policy.Options{
		RollingOnExit: cfg.Policy.RollingOnExit,
		DrainTimeout:  drainTimeout,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	worker.Start(ctx)

	errChan := make(chan error, 1)
	if cfg.Metrics.Addr != "" {
		go metrics.Serve(ctx, cfg.Metrics.Addr, errChan)
	}

	// Handle SIGINT and SIGTERM for graceful shutdown
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	// Copy the log stream from stdin through the policy, one line at a
	// time so rotation happens on line boundaries.
	copyDone := make(chan error, 1)
	go func() {
		copyDone <- copyLines(os.Stdin, rollingPolicy)
	}()

	logger.Info("rollarc started", "file", cfg.Rotation.File, "bucket", cfg.S3.Bucket, "folder", cfg.S3.Folder)

	select {
	case sig := <-signalChan:
		logger.Info("Received signal - shutting down", "signal", sig.String())
	case err := <-copyDone:
		if err != nil {
			logger.Error("Input stream failed - shutting down", "error", err)
		} else {
			logger.Info("Input stream closed - shutting down")
		}
	case err := <-errChan:
		logger.Error("Metrics endpoint failed - shutting down", "error", err)
	}

	// The terminal sequence runs exactly once and swallows its own
	// failures so nothing here can keep the process from exiting.
	rollingPolicy.Shutdown()
	cancel()
}

// copyLines writes each input line to w, retaining line boundaries.
func copyLines(r *os.File, w *policy.Policy) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		// Copy out of the scanner's buffer before appending the newline.
		token := scanner.Bytes()
		line := make([]byte, 0, len(token)+1)
		line = append(line, token...)
		line = append(line, '\n')
		if _, err := w.Write(line); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// isFlagSet checks if a flag was explicitly set on the command line.
func isFlagSet(name string) bool {
	isSet := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			isSet = true
		}
	})
	return isSet
}
