package framework

// ServerConfig defines one server process under test.
type ServerConfig struct {
	// Binary is the path to the cybergym-server binary.
	Binary string
	// DataDir holds the record database and PoC artifacts; Cleanup
	// removes it unless KeepOnFailure is set.
	DataDir string
	// Host is the address the server binds.
	Host string
	// Port is the port the server binds; 0 picks a free one at Start.
	Port int
	// Salt is the submission checksum salt.
	Salt string
	// APIKey guards the operator endpoints.
	APIKey string
	// SweepInterval enables the background verification sweeper when
	// greater than zero (seconds).
	SweepInterval int
	// LogLevel sets the server's log level.
	LogLevel string
	// KeepOnFailure keeps the data directory around for debugging.
	KeepOnFailure bool
}

// TestingT is the subset of *testing.T the framework needs.
type TestingT interface {
	Logf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
	FailNow()
	Failed() bool
	Name() string
	Helper()
}
