package config

// this holds the resolved configuration values from CLI
//
//nolint:lll // readablity
var (
	BaseURL           string // base URL of the OpenF1 REST api (without /v1)
	TokenURL          string // token endpoint for OpenF1 credentials
	Username          string // OpenF1 username (OPENF1_USERNAME)
	Password          string // OpenF1 password (OPENF1_PASSWORD)
	SessionKey        int    // session to process
	MeetingKey        int    // optional meeting key
	RefreshInterval   string // interval between live refresh ticks
	StreamURL         string // URL of the OpenF1 live broker (NATS, OpenF1 credentials)
	PublishNatsURL    string // URL of the NATS server documents are published to
	ArchiveDB         string // connection string for the snapshot archive (postgresql:// or sqlite://)
	ArchiveRetention  int    // snapshots kept per session (0: all)
	NatsBucket        string // JetStream KV bucket for latest documents (empty: no bucket)
	Replay            bool   // live mode fed by the historical data of the session
	ReplaySpeed       float64
	Once              bool // live mode runs a single refresh and exits
	CircuitMap        string // path to circuit name -> geojson file mapping
	GeoJSONBaseURL    string // base URL for circuit geojson files
	Addr              string // listen addr for http server
	WaitForServices   string // duration to wait for other services to be ready
	LogLevel          string // sets the log level (zap log level values)
	SQLLogLevel       string // sets the log level for sql subsystem
	LogFormat         string // text vs json
	LogFilter         string // zapfilter rules, e.g. "info+:* debug:refresh"
	MigrationSource   string // location of migration files (empty: embedded)
	EnableTelemetry   bool   // enable telemetry
	TelemetryEndpoint string // endpoint for telemetry
)

const (
	DefaultBaseURL         = "https://api.openf1.org"
	DefaultTokenURL        = "https://api.openf1.org/token"
	DefaultRefreshInterval = "10s"
	DefaultGeoJSONBaseURL  = "https://raw.githubusercontent.com/bacinger/f1-circuits/master/circuits"
)
