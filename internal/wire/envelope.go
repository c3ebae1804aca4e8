package wire

import (
	"fmt"
	"strconv"

	"github.com/mcoot/gamelobby-go/internal/model"
)

// Envelope status values
const (
	StatusCommand        = "command"
	StatusSuccess        = "success"
	StatusError          = "error"
	StatusStatus         = "status"
	StatusUpdate         = "update"
	StatusInvite         = "invite"
	StatusInviteDeclined = "invite_declined"
	StatusP2PInfo        = "p2p_info"
	StatusFileTransfer   = "file_transfer"
	StatusReady          = "ready"
)

// Client commands
const (
	CmdRegister     = "REGISTER"
	CmdLogin        = "LOGIN"
	CmdLogout       = "LOGOUT"
	CmdCreateRoom   = "CREATE_ROOM"
	CmdJoinRoom     = "JOIN_ROOM"
	CmdLeaveRoom    = "LEAVE_ROOM"
	CmdInvitePlayer = "INVITE_PLAYER"
	CmdAccept       = "ACCEPT"
	CmdDecline      = "DECLINE"
	CmdCheck        = "CHECK"
	CmdShowStatus   = "SHOW_STATUS"
	CmdStartGame    = "START_GAME"
	CmdUploadGame   = "UPLOAD_GAME"
	CmdUpdateGame   = "UPDATE_GAME"
	CmdDeleteGame   = "DELETE_GAME"
	CmdDownloadGame = "DOWNLOAD_GAME_FILE"
	CmdListAllGames = "LIST_ALL_GAMES"
	CmdListOwnGames = "LIST_OWN_GAMES"
	CmdLeaveReview  = "LEAVE_REVIEW"
	CmdGetReviews   = "GET_REVIEWS"
	CmdGameOver     = "GAME_OVER"
	CmdServerClosed = "SERVER_CLOSED"
	CmdGameEnded    = "GAME_ENDED"
	CmdGameAborted  = "GAME_ABORTED"
)

// Response messages the lobby inspects before relaying
const (
	MsgRegisterSuccess   = "REGISTER_SUCCESS"
	MsgLoginSuccess      = "LOGIN_SUCCESS"
	MsgLogoutSuccess     = "LOGOUT_SUCCESS"
	MsgCreateRoomSuccess = "CREATE_ROOM_SUCCESS"
	MsgJoinRoomSuccess   = "JOIN_ROOM_SUCCESS"
	MsgLeaveRoomSuccess  = "LEAVE_ROOM_SUCCESS"
	MsgInviteSent        = "INVITE_SENT"
	MsgDeclineSuccess    = "DECLINE_SUCCESS"
	MsgInvites           = "INVITES"
	MsgStatus            = "STATUS"
	MsgStartGameSuccess  = "START_GAME_SUCCESS"
	MsgUploadSuccess     = "UPLOAD_GAME_SUCCESS"
	MsgUpdateSuccess     = "UPDATE_GAME_SUCCESS"
	MsgDeleteSuccess     = "DELETE_GAME_SUCCESS"
	MsgDownloadReady     = "DOWNLOAD_GAME_FILE_READY"
	MsgGames             = "GAMES"
	MsgReviewSuccess     = "REVIEW_SUCCESS"
	MsgReviews           = "REVIEWS"
	MsgGameOverAck       = "GAME_OVER_ACK"
	MsgServerClosedAck   = "SERVER_CLOSED_ACK"
	MsgGameEndedAck      = "GAME_ENDED_ACK"
	MsgGameAbortedAck    = "GAME_ABORTED_ACK"
	MsgReadyForUpload    = "READY_FOR_UPLOAD"
	MsgFileTransfer      = "FILE_TRANSFER"
	MsgGameReady         = "GAME_READY"
)

// Command is a request envelope
type Command struct {
	Sender  string       `json:"sender"`
	Status  string       `json:"status"`
	Command string       `json:"command"`
	Params  []RawMessage `json:"params"`
}

// NewCommand builds a command envelope; params are JSON encoded
func NewCommand(sender, command string, params ...any) Command {
	return Command{
		Sender:  sender,
		Status:  StatusCommand,
		Command: command,
		Params:  rawParams(params),
	}
}

// Param returns parameter i as a string. JSON numbers and booleans are
// returned in their literal form.
func (c Command) Param(i int) (string, error) {
	if i >= len(c.Params) {
		return "", fmt.Errorf("%w: %s requires parameter %d", model.ErrBadRequest, c.Command, i+1)
	}
	return paramString(c.Params[i])
}

// OptionalParam returns parameter i as a string, or "" if absent or unreadable
func (c Command) OptionalParam(i int) string {
	if i >= len(c.Params) {
		return ""
	}
	s, err := paramString(c.Params[i])
	if err != nil {
		return ""
	}
	return s
}

// IntParam returns parameter i as an integer
func (c Command) IntParam(i int) (int, error) {
	s, err := c.Param(i)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: parameter %d is not an integer", model.ErrBadRequest, i+1)
	}
	return n, nil
}

// DecodeParam decodes parameter i into v
func (c Command) DecodeParam(i int, v any) error {
	if i >= len(c.Params) {
		return fmt.Errorf("%w: %s requires parameter %d", model.ErrBadRequest, c.Command, i+1)
	}
	if err := Unmarshal(c.Params[i], v); err != nil {
		return fmt.Errorf("%w: parameter %d: %v", model.ErrBadRequest, i+1, err)
	}
	return nil
}

// Append returns a copy of c with extra params appended
func (c Command) Append(params ...any) Command {
	out := c
	out.Params = append(append([]RawMessage(nil), c.Params...), rawParams(params)...)
	return out
}

// Notification routes a response to a user other than the requester
type Notification struct {
	Target   string      `json:"target"`
	Realm    model.Realm `json:"realm"`
	Response Response    `json:"response"`
}

// Response is a reply or notification envelope. Notify is only used
// between the database and the lobby and is never relayed to clients.
type Response struct {
	Sender  string         `json:"sender"`
	Status  string         `json:"status"`
	Message string         `json:"message"`
	Code    string         `json:"code,omitempty"`
	Params  []RawMessage   `json:"params,omitempty"`
	Notify  []Notification `json:"notify,omitempty"`
}

// NewResponse builds a response envelope with the given status
func NewResponse(sender, status, message string, params ...any) Response {
	return Response{
		Sender:  sender,
		Status:  status,
		Message: message,
		Params:  rawParams(params),
	}
}

// Success builds a success response
func Success(sender, message string, params ...any) Response {
	return NewResponse(sender, StatusSuccess, message, params...)
}

// Failure builds an error response carrying the wire code of err
func Failure(sender string, err error) Response {
	return Response{
		Sender:  sender,
		Status:  StatusError,
		Message: err.Error(),
		Code:    CodeOf(err),
	}
}

// Err returns the remote error carried by an error response, or nil
func (r Response) Err() error {
	if r.Status != StatusError {
		return nil
	}
	return &RemoteError{Code: r.Code, Message: r.Message}
}

// DecodeParam decodes parameter i into v
func (r Response) DecodeParam(i int, v any) error {
	if i >= len(r.Params) {
		return fmt.Errorf("%w: response %s has no parameter %d", model.ErrBadRequest, r.Message, i+1)
	}
	return Unmarshal(r.Params[i], v)
}

// Param returns parameter i as a string, or "" if absent
func (r Response) Param(i int) string {
	if i >= len(r.Params) {
		return ""
	}
	s, err := paramString(r.Params[i])
	if err != nil {
		return ""
	}
	return s
}

// Public returns r without lobby-internal routing data
func (r Response) Public() Response {
	r.Notify = nil
	return r
}

// AddNotify appends a notification for target
func (r *Response) AddNotify(target string, realm model.Realm, n Response) {
	r.Notify = append(r.Notify, Notification{Target: target, Realm: realm, Response: n})
}

func rawParams(params []any) []RawMessage {
	if len(params) == 0 {
		return nil
	}
	out := make([]RawMessage, len(params))
	for i, p := range params {
		data, err := Marshal(p)
		if err != nil {
			data = []byte("null")
		}
		out[i] = data
	}
	return out
}

func paramString(raw RawMessage) (string, error) {
	var v any
	if err := Unmarshal(raw, &v); err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrBadRequest, err)
	}
	switch t := v.(type) {
	case string:
		return t, nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(t), nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("%w: parameter is not a scalar", model.ErrBadRequest)
	}
}
