package wire

import (
	"fmt"
	"strconv"

	"github.com/mcoot/gamelobby-go/internal/model"
)

// Roles carried in p2p_info
const (
	PeerRoleHost   = "host"
	PeerRoleClient = "client"
)

// UploadHeader is the frame a client sends after ready, ahead of the raw
// artifact bytes
type UploadHeader struct {
	FileSize int64 `json:"file_size"`
}

// FileTransfer announces the raw artifact bytes that follow the frame
type FileTransfer struct {
	Name     string `json:"name"`
	Version  string `json:"version"`
	FileSize int64  `json:"file_size"`
}

// P2PInfo tells a player where the instance for its room is listening
type P2PInfo struct {
	Role        string
	RoomID      model.RoomID
	GameHost    string
	Port        int
	GameKind    string
	GameVersion string
	Ticket      string
}

// Response encodes the record as a p2p_info envelope with positional
// params (role, room_id, game_host, port, game_kind, game_version, ticket)
func (p P2PInfo) Response() Response {
	return NewResponse(model.SenderLobby, StatusP2PInfo, MsgGameReady,
		p.Role, string(p.RoomID), p.GameHost, strconv.Itoa(p.Port), p.GameKind, p.GameVersion, p.Ticket)
}

// Addr returns the host:port of the instance
func (p P2PInfo) Addr() string {
	return p.GameHost + ":" + strconv.Itoa(p.Port)
}

// ParseP2PInfo decodes a p2p_info envelope
func ParseP2PInfo(r Response) (P2PInfo, error) {
	if r.Status != StatusP2PInfo {
		return P2PInfo{}, fmt.Errorf("%w: expected %s, got %s", model.ErrBadRequest, StatusP2PInfo, r.Status)
	}
	port, err := strconv.Atoi(r.Param(3))
	if err != nil {
		return P2PInfo{}, fmt.Errorf("%w: bad port %q", model.ErrBadRequest, r.Param(3))
	}
	return P2PInfo{
		Role:        r.Param(0),
		RoomID:      model.RoomID(r.Param(1)),
		GameHost:    r.Param(2),
		Port:        port,
		GameKind:    r.Param(4),
		GameVersion: r.Param(5),
		Ticket:      r.Param(6),
	}, nil
}
