package records

const (
	DEFAULT_BATCH_SIZE    = 5000
	DEFAULT_MAX_FILE_SIZE = 100 * 1024 * 1024 // 100 MiB
	DEFAULT_DELIMITER     = ','
	MAX_KEPT_REJECTIONS   = 100
)

// Config is the immutable ingestion configuration.
type Config struct {
	BatchSize        int   // records per bulk insert
	MaxFileSizeBytes int64 // declared sizes above this are refused before parsing
	Delimiter        rune
	ContinueOnReject bool // skip and count invalid records instead of aborting
}

// DefaultConfig returns the stock ingestion configuration.
func DefaultConfig() Config {
	return Config{
		BatchSize:        DEFAULT_BATCH_SIZE,
		MaxFileSizeBytes: DEFAULT_MAX_FILE_SIZE,
		Delimiter:        DEFAULT_DELIMITER,
	}
}

// Validate checks the configuration and fills in the delimiter default.
func (c Config) Validate() (Config, error) {
	if c.BatchSize <= 0 {
		return c, ErrInvalidBatchSize
	}
	if c.MaxFileSizeBytes <= 0 {
		return c, ErrInvalidMaxSize
	}
	if c.Delimiter == 0 {
		c.Delimiter = DEFAULT_DELIMITER
	}
	return c, nil
}
