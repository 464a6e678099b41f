// Package common provides shared constants used across the hushd
// daemon and client communication layer.
package common

// Environment variable names for configuration.
const (
	// DataDirEnv is the environment variable for the daemon state directory.
	DataDirEnv = "HUSHD_DATA_DIR"

	// RPCAddrEnv is the environment variable for the JSON-RPC HTTP address.
	RPCAddrEnv = "HUSHD_RPC_ADDR"

	// SocketAddrEnv is the environment variable for the raw JSON-RPC socket address.
	SocketAddrEnv = "HUSHD_SOCKET_ADDR"

	// CalendarURLEnv is the environment variable for the ICS calendar feed URL.
	CalendarURLEnv = "HUSHD_CALENDAR_URL"

	// DebugEnv is the environment variable to enable debug logging.
	DebugEnv = "HUSHD_DEBUG"
)
