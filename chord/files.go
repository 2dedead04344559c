package chord

import (
	"go.dedis.ch/peerpaste/task"
	"go.dedis.ch/peerpaste/types"
	"golang.org/x/xerrors"
)

// BroadcastFileList walks the ring with the file list of its origin. Every
// node on the way fetches the files it misses from the origin. The walk
// stops at the first node already listed in the message.
type BroadcastFileList struct {
	*task.Base
	c *Chord

	req       types.RequestObject
	fetches   []*GetFile
	remaining int
}

func newBroadcastFileList(c *Chord) *BroadcastFileList {
	return &BroadcastFileList{Base: task.NewBase(KindBroadcastFileList), c: c}
}

func serveBroadcastFileList(c *Chord, req types.RequestObject) *BroadcastFileList {
	return &BroadcastFileList{Base: task.NewBase(KindBroadcastFileList), c: c, req: req}
}

func (b *BroadcastFileList) CreateRequest() {
	self, ok := b.c.rt.TryGetSelf()
	if !ok {
		b.Fail(xerrors.Errorf("broadcast: %w", ErrNotReady))
		return
	}
	successor, ok := b.c.rt.TryGetSuccessor()
	if !ok || successor.Equal(self) {
		// alone on the ring
		b.Complete()
		return
	}

	b.forward(successor, []types.Peer{self}, b.c.store.Files())
	b.Complete()
}

func (b *BroadcastFileList) HandleRequest() {
	msg := b.req.Message
	self, ok := b.c.rt.TryGetSelf()
	if !ok {
		b.Fail(xerrors.Errorf("serve broadcast: %w", ErrNotReady))
		return
	}
	for _, p := range msg.Peers {
		if p.Equal(self) {
			b.Complete()
			return
		}
	}

	origin := msg.Peers[0]
	for _, f := range msg.Files {
		if b.c.store.Exists(f.Name) {
			continue
		}
		fetch := newGetFile(b.c, origin, f)
		b.fetches = append(b.fetches, fetch)
		b.remaining++
	}

	if successor, ok := b.c.rt.TryGetSuccessor(); ok && !successor.Equal(self) {
		b.forward(successor, append(msg.Peers, self), msg.Files)
	}

	if b.remaining == 0 {
		b.Complete()
		return
	}
	for _, fetch := range b.fetches {
		b.c.engine.Spawn(b, fetch, false)
	}
}

func (b *BroadcastFileList) OnDependencyDone(dep task.Task) {
	if dep.State() == task.Failed {
		b.c.Warn().Err(dep.Err()).Msg("failed to fetch file")
	}
	b.remaining--
	if b.remaining == 0 {
		b.Complete()
	}
}

func (b *BroadcastFileList) forward(to types.Peer, peers []types.Peer, files []types.FileInfo) {
	req := b.c.request(types.BroadcastFileListType, to, peers...)
	req.Message.SetFileList(files)
	b.c.engine.Reply(b, req)
}

// FileChunkSize is the most file bytes a get_file response carries. A
// chunk stays well under a datagram once base64 encoded.
const FileChunkSize = 16 * 1024

// GetFile copies one file from a remote node into the local storage, one
// chunk per request. Each request asks for the bytes past Offset.
type GetFile struct {
	*task.Base
	c *Chord

	from types.Peer
	file types.FileInfo
	buf  []byte
	req  types.RequestObject
}

func newGetFile(c *Chord, from types.Peer, file types.FileInfo) *GetFile {
	return &GetFile{Base: task.NewBase(KindGetFile), c: c, from: from, file: file}
}

func serveGetFile(c *Chord, req types.RequestObject) *GetFile {
	return &GetFile{Base: task.NewBase(KindGetFile), c: c, req: req, file: req.Message.Files[0]}
}

func (g *GetFile) CreateRequest() {
	g.requestChunk()
}

func (g *GetFile) requestChunk() {
	want := g.file
	want.Offset = uint64(len(g.buf))

	req := g.c.request(types.GetFileType, g.from)
	req.Message.SetFileList([]types.FileInfo{want})
	g.c.engine.Request(g, req, g.handleResponse)
}

func (g *GetFile) handleResponse(resp types.RequestObject) {
	if resp.Message.Header.ResponseCode == types.CodeNotFound {
		g.Fail(xerrors.Errorf("get file %s from %s: %w", g.file.Name, g.from.Addr(), ErrNotFound))
		return
	}
	files := resp.Message.Files
	if len(files) != 1 || files[0].Offset != uint64(len(g.buf)) {
		g.Fail(xerrors.Errorf("get file %s: chunk out of order: %w", g.file.Name, ErrMalformed))
		return
	}
	total := files[0].Size
	chunk := resp.Message.Data
	if len(chunk) > FileChunkSize || uint64(len(g.buf)+len(chunk)) > total {
		g.Fail(xerrors.Errorf("get file %s: oversized chunk: %w", g.file.Name, ErrMalformed))
		return
	}
	if len(chunk) == 0 && uint64(len(g.buf)) < total {
		g.Fail(xerrors.Errorf("get file %s: empty chunk at %d: %w", g.file.Name, len(g.buf), ErrMalformed))
		return
	}
	g.buf = append(g.buf, chunk...)

	if uint64(len(g.buf)) < total {
		g.Touch()
		g.requestChunk()
		return
	}

	if g.file.Hash != "" && types.ContentHash(g.buf) != g.file.Hash {
		g.Fail(xerrors.Errorf("get file %s: content does not match its hash: %w", g.file.Name, ErrMalformed))
		return
	}
	if err := g.c.store.Put(g.buf, g.file.Name); err != nil {
		g.Fail(xerrors.Errorf("get file %s: %v", g.file.Name, err))
		return
	}
	g.c.Debug().Msgf("fetched %s (%d bytes) from %s", g.file.Name, len(g.buf), g.from)
	g.Complete()
}

// HandleRequest answers with the chunk of the file starting at the
// requested offset.
func (g *GetFile) HandleRequest() {
	resp, err := g.req.Message.GenerateResponse()
	if err != nil {
		g.Fail(err)
		return
	}

	data, err := g.c.store.Get(g.file.Name)
	if err != nil || g.file.Offset > uint64(len(data)) {
		resp.Header.ResponseCode = types.CodeNotFound
	} else {
		end := g.file.Offset + FileChunkSize
		if end > uint64(len(data)) {
			end = uint64(len(data))
		}
		info := types.NewFileInfo(g.file.Name, data)
		info.Offset = g.file.Offset
		resp.SetData(data[g.file.Offset:end])
		resp.SetFileList([]types.FileInfo{info})
	}

	g.c.engine.Reply(g, g.req.WithMessage(resp))
	g.Complete()
}
