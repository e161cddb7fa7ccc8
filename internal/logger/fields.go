package logger

// Standard field keys for structured logging. Use these consistently so log
// lines from the codec, the FSM, the tracker and the client driver can be
// joined on a common vocabulary.
const (
	// Session / connection
	KeySessionID  = "session_id"
	KeyRemoteAddr = "remote_addr"
	KeyPartner    = "partner"
	KeyServerID   = "server_id"
	KeyState      = "state"
	KeyPrevState  = "prev_state"

	// FPDU
	KeyPhase   = "phase"
	KeyType    = "type"
	KeyIDDst   = "id_dst"
	KeyIDSrc   = "id_src"
	KeyDiag    = "diagnostic"
	KeyPICount = "pi_count"

	// Transfer
	KeyTransferID   = "transfer_id"
	KeyVirtualFile  = "virtual_file"
	KeyPhysicalPath = "physical_path"
	KeyDirection    = "direction"
	KeyBytes        = "bytes"
	KeyArticles     = "articles"
	KeySyncNum      = "sync_num"
	KeyRestartPoint = "restart_point"
	KeyRetryCount   = "retry_count"

	// Errors / misc
	KeyError    = "error"
	KeyDuration = "duration_ms"
)
