package protocol

import "strings"

// Stream protocol verbs.
const (
	CmdSearch   = "SEARCH"
	CmdRequest  = "REQUEST"
	RespFound   = "FOUND"
	RespMissing = "NOT_FOUND"
	RespStart   = "START"
)

// Request is the first line a requester writes on a stream connection.
type Request struct {
	Command  string
	FileID   string
	FileName string // REQUEST only, may be empty
}

func Search(fileID string) Request { return Request{Command: CmdSearch, FileID: fileID} }

func Fetch(fileID, fileName string) Request {
	return Request{Command: CmdRequest, FileID: fileID, FileName: fileName}
}

// Encode renders the request as a newline terminated line.
func (r Request) Encode() []byte {
	if r.Command == CmdRequest {
		return []byte(r.Command + ":" + r.FileID + ":" + r.FileName + "\n")
	}
	return []byte(r.Command + ":" + r.FileID + "\n")
}

// ParseRequest decodes a request line. Surrounding whitespace and the line
// terminator are ignored.
func ParseRequest(line string) (Request, error) {
	cmd, rest, ok := splitKind(strings.TrimSpace(line))
	if !ok {
		return Request{}, malformed("request %q", truncate(line))
	}

	switch cmd {
	case CmdSearch:
		id := strings.TrimSpace(rest)
		if id == "" {
			return Request{}, malformed("empty file id")
		}
		return Search(id), nil

	case CmdRequest:
		id, name, _ := strings.Cut(rest, ":")
		id = strings.TrimSpace(id)
		if id == "" {
			return Request{}, malformed("empty file id")
		}
		return Fetch(id, strings.TrimSpace(name)), nil

	default:
		return Request{}, malformed("unknown command %q", truncate(cmd))
	}
}

// Response is the first line a holder writes back.
type Response struct {
	Kind string // FOUND, NOT_FOUND or START
	Arg  string // file id for FOUND, file name for START
}

func Found(fileID string) Response   { return Response{Kind: RespFound, Arg: fileID} }
func NotFound() Response             { return Response{Kind: RespMissing} }
func Start(fileName string) Response { return Response{Kind: RespStart, Arg: fileName} }

func (r Response) Encode() []byte {
	if r.Kind == RespMissing {
		return []byte(RespMissing + "\n")
	}
	return []byte(r.Kind + ":" + r.Arg + "\n")
}

// ParseResponse decodes a response line.
func ParseResponse(line string) (Response, error) {
	line = strings.TrimSpace(line)
	if line == RespMissing {
		return NotFound(), nil
	}

	kind, rest, ok := splitKind(line)
	if !ok {
		return Response{}, malformed("response %q", truncate(line))
	}
	switch kind {
	case RespFound, RespStart:
		return Response{Kind: kind, Arg: strings.TrimSpace(rest)}, nil
	case RespMissing:
		return NotFound(), nil
	default:
		return Response{}, malformed("unknown response %q", truncate(kind))
	}
}
