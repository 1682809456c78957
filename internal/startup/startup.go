package startup

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"time"

	"clip-splitter/internal/logging"

	"github.com/gorilla/mux"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// Config holds all application configuration
type Config struct {
	Port           string
	MetricsPort    string
	MetricsEnabled bool

	DataDir   string
	UploadDir string
	ClipsDir  string
	StaticDir string

	MaxConcurrentJobs int
	RetentionWindow   time.Duration
	SweepInterval     time.Duration
	StorageQuota      int64
	MaxUploadSize     int64
	SegmentLength     float64

	VideoCRF     int
	VideoBitrate string
	VideoFPS     int
	VideoPreset  string
	Watermark    string

	FFmpegPath  string
	FFprobePath string

	LogStaticFiles  bool
	LogHealthChecks bool

	// Feature flags based on availability
	PostersEnabled bool
	StaticEnabled  bool
}

// Defaults applied when the corresponding variable is unset or invalid.
const (
	DefaultPort              = "5000"
	DefaultMetricsPort       = "9090"
	DefaultMaxConcurrentJobs = 2
	DefaultRetentionWindow   = 5 * time.Minute
	DefaultSweepInterval     = 5 * time.Minute
	DefaultStorageQuota      = 10 << 30
	DefaultMaxUploadSize     = 5 << 30
	DefaultSegmentLength     = 120 * time.Second
)

// LoadConfig loads and validates configuration from environment variables
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()

	section("CONFIGURATION")

	dataDir := getEnv("DATA_DIR", ".")
	uploadDir := getEnv("UPLOAD_DIR", "uploads")
	clipsDir := getEnv("CLIPS_DIR", "clips")
	staticDir := getEnv("STATIC_DIR", filepath.Join("client", "build"))
	port := getEnv("PORT", DefaultPort)
	metricsPort := getEnv("METRICS_PORT", DefaultMetricsPort)
	metricsEnabled := getEnvBool("METRICS_ENABLED", true)
	maxJobs := getEnvInt("MAX_CONCURRENT_JOBS", DefaultMaxConcurrentJobs)
	retentionWindow := getEnvDuration("RETENTION_WINDOW", DefaultRetentionWindow)
	sweepInterval := getEnvDuration("SWEEP_INTERVAL", DefaultSweepInterval)
	storageQuota := getEnvBytes("STORAGE_QUOTA", DefaultStorageQuota)
	maxUploadSize := getEnvBytes("MAX_UPLOAD_SIZE", DefaultMaxUploadSize)
	segmentLength := getEnvDuration("SEGMENT_LENGTH", DefaultSegmentLength)
	videoCRF := getEnvInt("VIDEO_CRF", 18)
	videoBitrate := getEnv("VIDEO_BITRATE", "4000k")
	videoFPS := getEnvInt("VIDEO_FPS", 30)
	videoPreset := getEnv("VIDEO_PRESET", "slower")
	watermark, ok := os.LookupEnv("WATERMARK_TEXT")
	if !ok {
		watermark = "@short.toons_"
	}
	postersEnabled := getEnvBool("POSTERS_ENABLED", true)
	ffmpegPath := getEnv("FFMPEG_PATH", "ffmpeg")
	ffprobePath := getEnv("FFPROBE_PATH", "ffprobe")
	logStaticFiles := getEnvBool("LOG_STATIC_FILES", false)
	logHealthChecks := getEnvBool("LOG_HEALTH_CHECKS", true)

	if maxJobs < 1 {
		logging.Warn("  MAX_CONCURRENT_JOBS must be at least 1, using default: %d", DefaultMaxConcurrentJobs)
		maxJobs = DefaultMaxConcurrentJobs
	}
	if retentionWindow <= 0 {
		logging.Warn("  RETENTION_WINDOW must be positive, using default: %v", DefaultRetentionWindow)
		retentionWindow = DefaultRetentionWindow
	}
	if sweepInterval <= 0 {
		logging.Warn("  SWEEP_INTERVAL must be positive, using default: %v", DefaultSweepInterval)
		sweepInterval = DefaultSweepInterval
	}
	if segmentLength < time.Second {
		logging.Warn("  SEGMENT_LENGTH must be at least 1s, using default: %v", DefaultSegmentLength)
		segmentLength = DefaultSegmentLength
	}

	logging.Info("  DATA_DIR:            %s", dataDir)
	logging.Info("  UPLOAD_DIR:          %s", uploadDir)
	logging.Info("  CLIPS_DIR:           %s", clipsDir)
	logging.Info("  STATIC_DIR:          %s", staticDir)
	logging.Info("  PORT:                %s", port)
	logging.Info("  METRICS_PORT:        %s", metricsPort)
	logging.Info("  METRICS_ENABLED:     %v", metricsEnabled)
	logging.Info("  MAX_CONCURRENT_JOBS: %d", maxJobs)
	logging.Info("  RETENTION_WINDOW:    %v", retentionWindow)
	logging.Info("  SWEEP_INTERVAL:      %v", sweepInterval)
	logging.Info("  STORAGE_QUOTA:       %s", quotaString(storageQuota))
	logging.Info("  MAX_UPLOAD_SIZE:     %s", FormatBytes(maxUploadSize))
	logging.Info("  SEGMENT_LENGTH:      %v", segmentLength)
	logging.Info("  VIDEO_CRF:           %d", videoCRF)
	logging.Info("  VIDEO_BITRATE:       %s", videoBitrate)
	logging.Info("  VIDEO_FPS:           %d", videoFPS)
	logging.Info("  VIDEO_PRESET:        %s", videoPreset)
	logging.Info("  WATERMARK_TEXT:      %q", watermark)
	logging.Info("  POSTERS_ENABLED:     %v", postersEnabled)
	logging.Info("  LOG_STATIC_FILES:    %v", logStaticFiles)
	logging.Info("  LOG_HEALTH_CHECKS:   %v", logHealthChecks)
	logging.Info("  LOG_LEVEL:           %s", logging.GetLevel())

	// Resolve paths
	logging.Info("")
	section("DIRECTORY SETUP")

	dataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	uploadDir = resolveUnder(dataDir, uploadDir)
	clipsDir = resolveUnder(dataDir, clipsDir)
	staticDir = resolveUnder(dataDir, staticDir)
	logging.Info("  Upload directory (absolute): %s", uploadDir)
	logging.Info("  Clips directory (absolute):  %s", clipsDir)

	config := &Config{
		Port:              port,
		MetricsPort:       metricsPort,
		MetricsEnabled:    metricsEnabled,
		DataDir:           dataDir,
		UploadDir:         uploadDir,
		ClipsDir:          clipsDir,
		StaticDir:         staticDir,
		MaxConcurrentJobs: maxJobs,
		RetentionWindow:   retentionWindow,
		SweepInterval:     sweepInterval,
		StorageQuota:      storageQuota,
		MaxUploadSize:     maxUploadSize,
		SegmentLength:     segmentLength.Seconds(),
		VideoCRF:          videoCRF,
		VideoBitrate:      videoBitrate,
		VideoFPS:          videoFPS,
		VideoPreset:       videoPreset,
		Watermark:         watermark,
		FFmpegPath:        ffmpegPath,
		FFprobePath:       ffprobePath,
		LogStaticFiles:    logStaticFiles,
		LogHealthChecks:   logHealthChecks,
		PostersEnabled:    postersEnabled,
	}

	// Uploads and clips are both required
	for _, dir := range []struct{ path, name string }{
		{uploadDir, "upload"},
		{clipsDir, "clips"},
	} {
		if err := ensureDirectory(dir.path, dir.name); err != nil {
			return nil, fmt.Errorf("%s directory error: %w", dir.name, err)
		}
		logging.Debug("  Testing %s directory write access...", dir.name)
		if err := testWriteAccess(dir.path); err != nil {
			return nil, fmt.Errorf("%s directory is not writable: %w", dir.name, err)
		}
		logging.Info("  [OK] %s directory is writable", dir.name)
	}

	// The UI is optional; the API works without it
	config.StaticEnabled = staticAvailable(staticDir)
	if !config.StaticEnabled {
		logging.Warn("  Static UI not found at %s, serving API only", staticDir)
	}

	// Summary
	logging.Info("")
	logging.Info("  Feature availability:")
	logging.Info("    Transcoding: ENABLED (required)")
	logging.Info("    Posters:     %s", enabledString(config.PostersEnabled))
	logging.Info("    Static UI:   %s", enabledString(config.StaticEnabled))
	logging.Info("    Metrics:     %s", enabledString(config.MetricsEnabled))

	return config, nil
}

// resolveUnder makes a relative path absolute against base.
func resolveUnder(base, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(base, path)
}

func staticAvailable(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, "index.html"))
	return err == nil && !info.IsDir()
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

func quotaString(quota int64) string {
	if quota <= 0 {
		return "unlimited"
	}
	return FormatBytes(quota)
}

// LogTranscoderInit checks that ffmpeg and ffprobe can be executed and
// reports whether both are usable.
func LogTranscoderInit(ffmpegPath, ffprobePath string) bool {
	logging.Info("")
	section("TRANSCODER INITIALIZATION")

	ok := true
	for _, bin := range []string{ffmpegPath, ffprobePath} {
		if err := checkBinary(bin); err != nil {
			logging.Warn("  %s check failed: %v", bin, err)
			logging.Warn("  Uploads will fail until %s is installed", bin)
			ok = false
			continue
		}
		logging.Info("  [OK] %s is available", bin)
	}
	return ok
}

// LogPosterInit logs poster generator configuration
func LogPosterInit(enabled bool) {
	if !enabled {
		logging.Info("  Posters disabled (POSTERS_ENABLED=false)")
		logging.Info("  Clip list will show default icons")
	}
}

// LogStorageInit logs the storage quota and the usage found at startup
func LogStorageInit(quota, used int64) {
	logging.Info("")
	section("STORAGE")
	logging.Info("  Quota:       %s", quotaString(quota))
	logging.Info("  In use:      %s", FormatBytes(used))
	if quota > 0 && used >= quota {
		logging.Warn("  Storage is already at quota; uploads will be rejected until the sweeper frees space")
	}
}

// LogSweeperInit logs retention sweeper configuration
func LogSweeperInit(window, interval time.Duration) {
	logging.Info("")
	section("RETENTION SWEEPER")
	logging.Info("  Retention window: %v", window)
	logging.Info("  Sweep interval:   %v", interval)
	logging.Info("  Starting sweeper...")
}

// LogSweeperStarted logs successful sweeper start
func LogSweeperStarted() {
	logging.Info("  [OK] Sweeper started")
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			// PathPrefix-less catch-all routes have no template
			pathTemplate = "/"
		}

		methods, err := route.GetMethods()
		if err != nil {
			// Route might not have methods specified (e.g., static file server)
			methods = []string{"*"}
		}

		name := route.GetName()

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   name,
			})
		}

		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs the access log switches, and at debug level every
// registered route grouped by its first path segment.
func LogHTTPRoutes(router *mux.Router, logStaticFiles, logHealthChecks bool) {
	logging.Info("")
	section("HTTP SERVER SETUP")

	if logging.IsDebugEnabled() {
		logRouteTable(router)
	}

	logging.Info("  HTTP logging enabled")
	logging.Info("    Static file logging:  %s", switchString(logStaticFiles, "LOG_STATIC_FILES"))
	logging.Info("    Health check logging: %s", switchString(logHealthChecks, "LOG_HEALTH_CHECKS"))
}

func logRouteTable(router *mux.Router) {
	routes, err := GetRoutes(router)
	if err != nil {
		logging.Warn("error walking routes: %v", err)
	}
	logging.Debug("  Registered routes (%d total):", len(routes))

	groups := make(map[string][]RouteInfo)
	for _, route := range routes {
		group := getRouteGroup(route.Path)
		groups[group] = append(groups[group], route)
	}
	for _, group := range slices.Sorted(maps.Keys(groups)) {
		label := cmp.Or(group, "root")
		logging.Debug("  [%s]", label)
		for _, route := range groups[group] {
			logging.Debug("    %-7s %s", route.Method, route.Path)
		}
	}
}

func switchString(on bool, env string) string {
	if on {
		return "ON"
	}
	return "OFF (set " + env + "=true to enable)"
}

// getRouteGroup returns the first segment of a route path
func getRouteGroup(path string) string {
	first, _, _ := strings.Cut(strings.TrimPrefix(path, "/"), "/")
	return first
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Port              string
	MetricsPort       string
	MetricsEnabled    bool
	MaxConcurrentJobs int
	StartupDuration   time.Duration
}

// LogServerStarted logs where the server is reachable.
func LogServerStarted(config ServerConfig) {
	metricsURL := "DISABLED"
	if config.MetricsEnabled {
		metricsURL = fmt.Sprintf("http://0.0.0.0:%s/metrics", config.MetricsPort)
	}

	logging.Info("")
	section("SERVER STARTED")
	logging.Info("  Startup time:  %v", config.StartupDuration)
	logging.Info("  Job slots:     %d", config.MaxConcurrentJobs)
	logging.Info("  Application:   http://0.0.0.0:%s", config.Port)
	logging.Info("  Upload:        POST http://0.0.0.0:%s/upload", config.Port)
	logging.Info("  Clips:         http://0.0.0.0:%s/clips/{project}/{file}", config.Port)
	logging.Info("  Metrics:       %s", metricsURL)
	logging.Info(rule)
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	section("SHUTDOWN INITIATED (received %s)", signal)
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

const rule = "------------------------------------------------------------"

func section(title string, args ...interface{}) {
	logging.Info(rule)
	logging.Info(title, args...)
	logging.Info(rule)
}

func printBanner() {
	banner := `
------------------------------------------------------------
   _____ _ _          _____       ___ __  __
  / ___/| (_)___     / ___/____  / (_) /_/ /____  _____
 / /   / / / __ \    \__ \/ __ \/ / / __/ __/ _ \/ ___/
/ /___/ / / /_/ /   ___/ / /_/ / / / /_/ /_/  __/ /
\____/_/_/ .___/   /____/ .___/_/_/\__/\__/\___/_/
        /_/            /_/
------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	section("SYSTEM INFORMATION")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}

	if logging.IsDebugEnabled() {
		logging.Debug("  Goroutines:      %d", runtime.NumGoroutine())

		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}

		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}

	logging.Info("")
}

func ensureDirectory(path, name string) error {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("  Created %s directory: %s", name, path)
		return nil
	case err != nil:
		return fmt.Errorf("failed to stat directory: %w", err)
	case !info.IsDir():
		return fmt.Errorf("%s exists but is not a directory", path)
	}

	if logging.IsDebugEnabled() {
		entries, _ := os.ReadDir(path)
		logging.Debug("  Using %s directory: %s (%d entries left from a previous run)", name, path, len(entries))
	}
	return nil
}

func testWriteAccess(dir string) error {
	f, err := os.CreateTemp(dir, ".write-test-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	if err := os.Remove(name); err != nil {
		logging.Warn("failed to remove write test file %s: %v", name, err)
	}
	return nil
}

func checkBinary(name string) error {
	path, err := exec.LookPath(name)
	if err != nil {
		return fmt.Errorf("%s not found in PATH", name)
	}
	logging.Debug("  %s path: %s", name, path)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, path, "-version")
	output, err := cmd.Output()
	if err != nil {
		return fmt.Errorf("failed to get %s version: %w", name, err)
	}

	first, _, _ := strings.Cut(string(output), "\n")
	logging.Debug("  %s version: %s", name, strings.TrimSpace(first))

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvParsed returns parse(value) for a set variable, or defaultValue
// when it is unset or does not parse.
func getEnvParsed[T any](key string, defaultValue T, kind string, parse func(string) (T, error)) T {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := parse(value)
	if err != nil {
		logging.Warn("Invalid %s value for %s: %q, using default: %v", kind, key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvBool(key string, defaultValue bool) bool {
	return getEnvParsed(key, defaultValue, "boolean", strconv.ParseBool)
}

func getEnvInt(key string, defaultValue int) int {
	return getEnvParsed(key, defaultValue, "integer", strconv.Atoi)
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	return getEnvParsed(key, defaultValue, "duration", time.ParseDuration)
}

func getEnvBytes(key string, defaultValue int64) int64 {
	return getEnvParsed(key, defaultValue, "size", ParseBytes)
}

var byteUnits = map[string]float64{
	"":    1,
	"b":   1,
	"k":   1 << 10,
	"kb":  1e3,
	"kib": 1 << 10,
	"m":   1 << 20,
	"mb":  1e6,
	"mib": 1 << 20,
	"g":   1 << 30,
	"gb":  1e9,
	"gib": 1 << 30,
	"t":   1 << 40,
	"tb":  1e12,
	"tib": 1 << 40,
}

// ParseBytes parses sizes such as "10GiB", "500MB", "1.5g" or a plain byte
// count. KB/MB/GB/TB are decimal; bare letters and the -iB forms are binary.
func ParseBytes(s string) (int64, error) {
	s = strings.TrimSpace(s)
	i := 0
	for i < len(s) && (s[i] >= '0' && s[i] <= '9' || s[i] == '.') {
		i++
	}
	if i == 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}

	n, err := strconv.ParseFloat(s[:i], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	mult, ok := byteUnits[strings.ToLower(strings.TrimSpace(s[i:]))]
	if !ok {
		return 0, fmt.Errorf("invalid size unit in %q", s)
	}

	v := n * mult
	if v > math.MaxInt64 {
		return 0, fmt.Errorf("size %q overflows", s)
	}
	return int64(v), nil
}

// FormatBytes renders a byte count with binary units, e.g. "1.5 GiB".
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
