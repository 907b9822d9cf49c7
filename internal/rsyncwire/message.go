package rsyncwire

import "unicode/utf8"

// Tag identifies which Message variant a frame's payload carries.
type Tag uint8

const (
	MsgData Tag = iota
	MsgFileListEntry
	MsgChecksums
	MsgInfo
	MsgWarning
	MsgError
	MsgErrorXfer
	MsgErrorSocket
	MsgErrorUtf8
	MsgLog
	MsgClient
	MsgRedo
	MsgStats
	MsgIoError
	MsgIoTimeout
	MsgNoop
	MsgErrorExit
	MsgSuccess
	MsgDeleted
	MsgNoSend
)

func (t Tag) String() string {
	switch t {
	case MsgData:
		return "Data"
	case MsgFileListEntry:
		return "FileListEntry"
	case MsgChecksums:
		return "Checksums"
	case MsgInfo:
		return "Info"
	case MsgWarning:
		return "Warning"
	case MsgError:
		return "Error"
	case MsgErrorXfer:
		return "ErrorXfer"
	case MsgErrorSocket:
		return "ErrorSocket"
	case MsgErrorUtf8:
		return "ErrorUtf8"
	case MsgLog:
		return "Log"
	case MsgClient:
		return "Client"
	case MsgRedo:
		return "Redo"
	case MsgStats:
		return "Stats"
	case MsgIoError:
		return "IoError"
	case MsgIoTimeout:
		return "IoTimeout"
	case MsgNoop:
		return "Noop"
	case MsgErrorExit:
		return "ErrorExit"
	case MsgSuccess:
		return "Success"
	case MsgDeleted:
		return "Deleted"
	case MsgNoSend:
		return "NoSend"
	default:
		return "Unknown"
	}
}

// textTags are the message variants whose payload is required to be
// valid UTF-8; a validation failure is reported as MsgErrorUtf8
// instead.
var textTags = map[Tag]bool{
	MsgInfo:    true,
	MsgWarning: true,
	MsgError:   true,
	MsgLog:     true,
}

// ValidatePayload checks the UTF-8 well-formedness constraint for text
// messages, returning ok=false (caller should emit MsgErrorUtf8) when
// violated.
func ValidatePayload(tag Tag, payload []byte) (ok bool) {
	if !textTags[tag] {
		return true
	}
	return utf8.Valid(payload)
}

// Message is a decoded frame payload paired with its logical channel and
// tag, the unit the demultiplexer's per-channel queues hold.
type Message struct {
	Channel uint8
	Tag     Tag
	Payload []byte
}
