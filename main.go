package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/portalops/deploy-environments/internal/audit"
	"github.com/portalops/deploy-environments/internal/events"
	"github.com/portalops/deploy-environments/internal/githubapi"
	"github.com/portalops/deploy-environments/internal/service"
	"github.com/portalops/deploy-environments/migrations"
)

var (
	listenAddress             string
	listenPort                int
	databaseDSN               string
	githubToken               string
	githubAppID               string
	githubInstallationID      int64
	githubPrivateKeyFile      string
	githubBaseURL             string
	mqUser                    string
	mqPass                    string
	mqHost                    string
	mqPort                    string
	startupConnectionAttempts int
	startupConnectionInterval int
	s3SecretAccessKey         string
	s3Origin                  string
	s3Bucket                  string
	s3Region                  string
	s3AccessKeyID             string
	s3useSSL                  bool
	disableEvents             bool
	disableS3Export           bool
	seedFile                  string
	enableDebug               bool
)

func main() {
	flag.StringVar(&listenAddress, "listen-address", "0.0.0.0", "Address on which to listen for incoming connections.")
	flag.IntVar(&listenPort, "listen-port", 7007, "Port the webservice is started on.")
	flag.StringVar(&databaseDSN, "database-dsn", "environments.sqlite", "Database DSN, an sqlite filename or postgres connection string.")
	flag.StringVar(&githubToken, "github-token", "", "GitHub personal access token (repo, workflow, repo_deployment scopes).")
	flag.StringVar(&githubAppID, "github-app-id", "", "GitHub App id, used instead of a token when set.")
	flag.Int64Var(&githubInstallationID, "github-installation-id", 0, "GitHub App installation id.")
	flag.StringVar(&githubPrivateKeyFile, "github-private-key-file", "", "Path to the GitHub App private key PEM.")
	flag.StringVar(&githubBaseURL, "github-base-url", "", "GitHub API base URL override, for GitHub Enterprise.")
	flag.StringVar(&mqUser, "rabbitmq-username", "guest", "The username of the rabbitmq user.")
	flag.StringVar(&mqPass, "rabbitmq-password", "guest", "The password for the rabbitmq user.")
	flag.StringVar(&mqHost, "rabbitmq-hostname", "localhost", "The hostname for the rabbitmq host.")
	flag.StringVar(&mqPort, "rabbitmq-port", "5672", "The port for the rabbitmq host.")
	flag.IntVar(&startupConnectionAttempts, "startup-connection-attempts", 10, "The number of startup attempts before exiting.")
	flag.IntVar(&startupConnectionInterval, "startup-connection-interval-seconds", 30, "The duration between startup attempts.")
	flag.StringVar(&s3SecretAccessKey, "secret-access-key", "minio123", "s3 secret access key to use.")
	flag.StringVar(&s3Origin, "s3-host", "localhost:9000", "The s3 host/origin to use.")
	flag.StringVar(&s3AccessKeyID, "access-key-id", "minio", "The s3 access key id to use.")
	flag.StringVar(&s3Bucket, "s3-bucket", "portal-deployments", "The s3 bucket name.")
	flag.StringVar(&s3Region, "s3-region", "", "The s3 region.")
	flag.BoolVar(&s3useSSL, "s3-usessl", true, "Use SSL with S3")
	flag.BoolVar(&disableEvents, "disable-events", false, "Set to true to run without publishing deployment events to the broker.")
	flag.BoolVar(&disableS3Export, "disable-s3-export", false, "Set to true to disable the history export endpoint.")
	flag.StringVar(&seedFile, "seed-file", "", "Optional YAML file with environment configurations to seed on startup.")
	flag.BoolVar(&enableDebug, "debug", false, "Enable debugging output")

	flag.Parse()

	// .env is optional and only used for local development
	_ = godotenv.Load()

	// get overrides from environment variables
	listenAddress = getEnv("LISTEN_ADDRESS", listenAddress)
	listenPort = getEnvInt("LISTEN_PORT", listenPort)
	databaseDSN = getEnv("DATABASE_DSN", databaseDSN)
	githubToken = getEnv("GITHUB_TOKEN", githubToken)
	githubAppID = getEnv("GITHUB_APP_ID", githubAppID)
	githubInstallationID = int64(getEnvInt("GITHUB_INSTALLATION_ID", int(githubInstallationID)))
	githubPrivateKeyFile = getEnv("GITHUB_PRIVATE_KEY_FILE", githubPrivateKeyFile)
	githubBaseURL = getEnv("GITHUB_BASE_URL", githubBaseURL)
	mqUser = getEnv("RABBITMQ_USERNAME", mqUser)
	mqPass = getEnv("RABBITMQ_PASSWORD", mqPass)
	mqHost = getEnv("RABBITMQ_ADDRESS", mqHost)
	mqPort = getEnv("RABBITMQ_PORT", mqPort)
	s3Origin = getEnv("S3_FILES_HOST", s3Origin)
	s3AccessKeyID = getEnv("S3_FILES_ACCESS_KEY_ID", s3AccessKeyID)
	s3SecretAccessKey = getEnv("S3_FILES_SECRET_ACCESS_KEY", s3SecretAccessKey)
	s3Bucket = getEnv("S3_FILES_BUCKET", s3Bucket)
	s3Region = getEnv("S3_FILES_REGION", s3Region)
	s3useSSL = getEnvBool("S3_USESSL", s3useSSL)
	disableEvents = getEnvBool("DISABLE_EVENTS", disableEvents)
	disableS3Export = getEnvBool("DISABLE_S3_EXPORT", disableS3Export)
	seedFile = getEnv("SEED_FILE", seedFile)
	enableDebug = getEnvBool("ENABLE_DEBUG", enableDebug)

	// If we enable debugging, we set the logging level to output debug for the default logger.
	debugLevel := slog.LevelInfo
	if enableDebug {
		debugLevel = slog.LevelDebug
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: debugLevel,
	})))

	tokens, err := buildTokenProvider()
	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}

	deployments, err := githubapi.NewService(tokens, slog.Default(), githubapi.ServiceOptions{
		BaseURL: githubBaseURL,
	})
	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}

	collaborators := service.Collaborators{
		Deployments: deployments,
	}

	if !disableEvents {
		broker := events.Broker{
			Hostname: mqHost,
			Port:     mqPort,
			Username: mqUser,
			Password: mqPass,
		}
		publisher, err := events.NewPublisher(broker, startupConnectionAttempts, startupConnectionInterval, slog.Default())
		if err != nil {
			slog.Error(err.Error())
			os.Exit(1)
		}
		defer publisher.Close()
		collaborators.Publisher = publisher
	}

	if !disableS3Export {
		collaborators.Exporter = audit.NewExporter(audit.S3{
			SecretAccessKey: s3SecretAccessKey,
			S3Origin:        s3Origin,
			AccessKeyId:     s3AccessKeyID,
			Bucket:          s3Bucket,
			Region:          s3Region,
			UseSSL:          s3useSSL,
		}, slog.Default())
	}

	db, err := service.SetUpDatabase(service.Dboptions{DSN: databaseDSN})
	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}

	if seedFile != "" {
		inserted, err := migrations.SeedFromFile(db, seedFile)
		if err != nil {
			slog.Error(err.Error())
			os.Exit(1)
		}
		slog.Info("seeded environment configurations", "file", seedFile, "inserted", inserted)
	}

	r, err := service.SetupRouter(db, collaborators)
	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}

	if err := r.Run(fmt.Sprintf("%v:%v", listenAddress, listenPort)); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

// buildTokenProvider prefers GitHub App credentials when configured and falls
// back to a personal access token.
func buildTokenProvider() (githubapi.TokenProvider, error) {
	if githubAppID != "" {
		if githubPrivateKeyFile == "" || githubInstallationID == 0 {
			return nil, fmt.Errorf("github-app-id set but github-private-key-file or github-installation-id missing")
		}
		pem, err := os.ReadFile(githubPrivateKeyFile)
		if err != nil {
			return nil, fmt.Errorf("unable to read GitHub App private key: %w", err)
		}
		return githubapi.NewAppTokenProvider(githubAppID, githubInstallationID, pem)
	}
	return githubapi.NewStaticTokenProvider(githubToken), nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// accepts fallback values 1, t, T, TRUE, true, True, 0, f, F, FALSE, false, False
// anything else is false.
func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		rVal, _ := strconv.ParseBool(value)
		return rVal
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		rVal, _ := strconv.ParseInt(value, 10, 32)
		return int(rVal)
	}
	return fallback
}
