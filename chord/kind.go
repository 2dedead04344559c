package chord

import (
	"go.dedis.ch/peerpaste/task"
	"golang.org/x/xerrors"
)

const (
	KindQuery              task.Kind = "query"
	KindFindSuccessor      task.Kind = "find_successor"
	KindGetSuccessorList   task.Kind = "get_successor_list"
	KindGetPredAndSuccList task.Kind = "get_pred_and_succ_list"
	KindGetSelfAndSuccList task.Kind = "get_self_and_succ_list"
	KindNotify             task.Kind = "notify"
	KindCheckPredecessor   task.Kind = "check_predecessor"
	KindJoin               task.Kind = "join"
	KindStabilize          task.Kind = "stabilize"
	KindBroadcastFileList  task.Kind = "broadcast_filelist"
	KindGetFile            task.Kind = "get_file"
)

var (
	// ErrNotReady is returned by tasks that need routing state the node
	// does not have yet.
	ErrNotReady = xerrors.New("routing table not ready")
	// ErrMalformed rejects a message with the wrong payload for its type.
	ErrMalformed = xerrors.New("malformed message")
	// ErrUnknownRequest is returned for request types the ring does not
	// serve.
	ErrUnknownRequest = xerrors.New("unknown request type")
	// ErrNotFound is returned when a requested file is not held.
	ErrNotFound = xerrors.New("file not found")
)
