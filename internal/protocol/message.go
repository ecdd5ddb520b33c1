// Package protocol implements the Baikal wire framing: a colon-delimited,
// zero-stuffed command/response frame shared by every transport the driver
// supports.
package protocol

// Command identifies a Baikal bus operation.
type Command uint8

const (
	CmdReset     Command = 0x01
	CmdGetInfo   Command = 0x02
	CmdSetOption Command = 0x03
	CmdSendWork  Command = 0x04
	CmdGetResult Command = 0x05
	CmdSetID     Command = 0x06
	CmdSetIdle   Command = 0x07
)

// Expected response frame lengths, keyed by command. These are the
// "resp total" column from the protocol table: header(5) + 2*payload + crlf(2).
const (
	RespLenShort  = 7  // RESET, SET_OPTION, SET_ID
	RespLenInfo   = 21 // GET_INFO
	RespLenResult = 23 // GET_RESULT
)

// MaxPayload bounds the unstuffed data a Message can carry, per the wire
// format's 512-byte data array.
const MaxPayload = 512

// Message is the unstuffed logical command/response exchanged with a miner.
type Message struct {
	MinerID uint8
	Cmd     Command
	Param   uint8
	Dest    uint8
	Data    []byte // len(Data) == Len, unstuffed
}

func (m *Message) Len() int {
	return len(m.Data)
}
