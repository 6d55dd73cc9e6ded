// Package meta holds build identity shared by the CLI commands.
package meta

// Version is the pgward release version. It is reported to MCP clients
// during initialization and printed by the doctor command.
const Version = "0.3.0"
