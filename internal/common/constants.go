package common

// NoUserName is reported when the owner of a process cannot be resolved.
const NoUserName = "NoUserName"

// ConsoleSessionName is used for session 1 when the session table has no entry for it.
const ConsoleSessionName = "console"

// RDPSessionNameFormat is used for any other session id missing from the session table.
const RDPSessionNameFormat = "rdp-tcp %d"

const ImageSuffix = ".exe"

const DefaultProcessDir = "Processes"
const DefaultSessionDir = "Sessions"
const DefaultLogDir = "Logs"
const DefaultProcessPrefix = "processes"
const DefaultSessionPrefix = "sessions"

const PipelineProcesses = "processes"
const PipelineSessions = "sessions"
const PipelineHousekeeping = "housekeeping"

// TimestampUTCLayout is the ISO-8601 layout of every timestamp column.
const TimestampUTCLayout = "2006-01-02T15:04:05Z"

// FileTimeLayout is the per-minute component of output file names.
const FileTimeLayout = "20060102-1504"

// LogTimeLayout is the time stamp of operational log lines.
const LogTimeLayout = "2006-01-02 15:04:05"
