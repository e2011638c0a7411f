package protocol

import (
	"bytes"
	"fmt"
)

// EncodeRequest builds a C2S frame: int64 request id followed by the
// request union. The push sentinel id is rejected.
func EncodeRequest(requestID int64, req ClientRequest) ([]byte, error) {
	if requestID == ServerPushRequestID {
		return nil, fmt.Errorf("request id %d is reserved for server pushes", ServerPushRequestID)
	}
	w := &bytes.Buffer{}
	writeI64(w, requestID)
	writeU8(w, uint8(req.Kind()))
	req.encode(w)
	return w.Bytes(), nil
}

// DecodeRequest parses a C2S frame. Any malformed input yields a
// *ParseError and no partial value.
func DecodeRequest(data []byte) (int64, ClientRequest, error) {
	r := bytes.NewReader(data)

	requestID, err := readI64(r, "request id")
	if err != nil {
		return 0, nil, err
	}
	if requestID == ServerPushRequestID {
		return 0, nil, parseErrorf("request id %d is reserved for server pushes", ServerPushRequestID)
	}

	kind, err := readU8(r, "request kind")
	if err != nil {
		return 0, nil, err
	}
	if RequestKind(kind) >= requestKindCount {
		return 0, nil, parseErrorf("unknown request kind 0x%02X", kind)
	}

	var req ClientRequest
	switch RequestKind(kind) {
	case KindLogin:
		req, err = decodeLoginRequest(r)
	case KindLogout:
		req, err = decodeLogoutRequest(r)
	case KindCreateSession:
		req, err = decodeCreateSessionRequest(r)
	case KindUpdateSession:
		req, err = decodeUpdateSessionRequest(r)
	case KindDestroySession:
		req, err = decodeDestroySessionRequest(r)
	case KindFindSessions:
		req, err = decodeFindSessionsRequest(r)
	case KindQueryServerUtcTime:
		req, err = decodeQueryServerUtcTimeRequest(r)
	case KindStartMatchmaking:
		req, err = decodeStartMatchmakingRequest(r)
	case KindCancelMatchmaking:
		req, err = decodeCancelMatchmakingRequest(r)
	}
	if err != nil {
		return 0, nil, err
	}
	if err := finish(r); err != nil {
		return 0, nil, err
	}
	return requestID, req, nil
}

// EncodeResponse builds a correlated S2C frame. Encoding a result with
// the push sentinel id is rejected so the two frame shapes stay
// distinguishable by their leading field.
func EncodeResponse(requestID int64, res ServerResult) ([]byte, error) {
	if requestID == ServerPushRequestID {
		return nil, fmt.Errorf("cannot encode a correlated response with the push sentinel id")
	}
	w := &bytes.Buffer{}
	writeI64(w, requestID)
	writeU8(w, uint8(res.Kind()))
	res.encode(w)
	return w.Bytes(), nil
}

// EncodePush builds an uncorrelated S2C frame carrying a server push.
func EncodePush(push ServerPush) []byte {
	w := &bytes.Buffer{}
	writeI64(w, ServerPushRequestID)
	writeU8(w, uint8(push.PushKind()))
	push.encode(w)
	return w.Bytes()
}

// ServerFrame is one decoded S2C frame: either a correlated result
// (RequestID != 0, Result set) or a push (RequestID == 0, Push set).
type ServerFrame struct {
	RequestID int64
	Result    ServerResult
	Push      ServerPush
}

// DecodeServerFrame parses an S2C frame, disambiguating result and push
// by the leading request id.
func DecodeServerFrame(data []byte) (ServerFrame, error) {
	r := bytes.NewReader(data)

	requestID, err := readI64(r, "request id")
	if err != nil {
		return ServerFrame{}, err
	}

	if requestID == ServerPushRequestID {
		kind, err := readU8(r, "push kind")
		if err != nil {
			return ServerFrame{}, err
		}
		if PushKind(kind) >= pushKindCount {
			return ServerFrame{}, parseErrorf("unknown push kind 0x%02X", kind)
		}
		var push ServerPush
		switch PushKind(kind) {
		case KindServerNotice:
			push, err = decodeServerNoticePush(r)
		}
		if err != nil {
			return ServerFrame{}, err
		}
		if err := finish(r); err != nil {
			return ServerFrame{}, err
		}
		return ServerFrame{Push: push}, nil
	}

	kind, err := readU8(r, "result kind")
	if err != nil {
		return ServerFrame{}, err
	}
	if RequestKind(kind) >= requestKindCount {
		return ServerFrame{}, parseErrorf("unknown result kind 0x%02X", kind)
	}

	var res ServerResult
	switch RequestKind(kind) {
	case KindLogin:
		res, err = decodeLoginResult(r)
	case KindLogout:
		res, err = decodeLogoutResult(r)
	case KindCreateSession:
		res, err = decodeCreateSessionResult(r)
	case KindUpdateSession:
		res, err = decodeUpdateSessionResult(r)
	case KindDestroySession:
		res, err = decodeDestroySessionResult(r)
	case KindFindSessions:
		res, err = decodeFindSessionsResult(r)
	case KindQueryServerUtcTime:
		res, err = decodeQueryServerUtcTimeResult(r)
	case KindStartMatchmaking:
		res, err = decodeStartMatchmakingResult(r)
	case KindCancelMatchmaking:
		res, err = decodeCancelMatchmakingResult(r)
	}
	if err != nil {
		return ServerFrame{}, err
	}
	if err := finish(r); err != nil {
		return ServerFrame{}, err
	}
	return ServerFrame{RequestID: requestID, Result: res}, nil
}
