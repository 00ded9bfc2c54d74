/*
Package log provides structured logging for cephdeploy using zerolog.

The package wraps a single global zerolog.Logger. Call Init once from main;
every other package derives a child logger carrying the field that matters
to it:

	logger := log.WithPhase("osds")
	logger.Info().Str("host", host).Str("device", dev).Msg("Deploying OSD")

# Fields

	component   package-level subsystem (remote, wait, registry, ...)
	cluster     cluster name of the run
	phase       setup phase currently entering or releasing
	host        host a remote command ran on

# Output

Console output with RFC3339 timestamps is the default. JSON output is enabled
with Config.JSONOutput and is what CI collectors should consume. Remote
commands are logged at debug level, phase transitions at info level and
teardown failures at error level.
*/
package log
