package config

const (
	defaultConfigPath            = "~/.config/scingest/config.toml"
	homePlaceholder              = "{homepath}"
	defaultCatalogURL            = "http://localhost:8881"
	defaultUsername              = "ingestor"
	defaultMaxRequestTriesNumber = 100
	defaultRequestRetryInterval  = 1
	defaultRequestTimeout        = 30
	defaultScanDir               = "."
	defaultDebounce              = 5
	defaultPollTimeout           = 1
	defaultStopGraceMS           = 200
	defaultDatasetPostfix        = ".scan*"
	defaultDatablockPostfix      = ".origindatablock*"
	defaultGeneratorTimeout      = 120
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	indexFilePattern             = "scicat-datasets-%s.lst"
	ledgerFilePattern            = "scicat-ingested-datasets-%s.lst"
)

// DefaultRequestHeaders returns the JSON content headers sent with every catalog request.
func DefaultRequestHeaders() map[string]string {
	return map[string]string{
		"Content-Type": "application/json",
		"Accept":       "application/json",
	}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Catalog: Catalog{
			URL:                   defaultCatalogURL,
			Username:              defaultUsername,
			RequestHeaders:        DefaultRequestHeaders(),
			MaxRequestTriesNumber: defaultMaxRequestTriesNumber,
			RequestRetryInterval:  defaultRequestRetryInterval,
			RequestTimeout:        defaultRequestTimeout,
		},
		Beamtime: Beamtime{
			ScanDir:     defaultScanDir,
			Debounce:    defaultDebounce,
			PollTimeout: defaultPollTimeout,
			StopGraceMS: defaultStopGraceMS,
		},
		Metadata: Metadata{
			DatasetPostfix:   defaultDatasetPostfix,
			DatablockPostfix: defaultDatablockPostfix,
			GeneratorTimeout: defaultGeneratorTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
