package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
	"go.dedis.ch/peerpaste/peer"
)

// Shell commands, one per line:
//
//	put "some text" [via 127.0.0.1:4000]
//	get <id> [via 127.0.0.1:4000]
//	eput "secret text" [via ...]
//	eget <key+id> [via ...]
//	join 127.0.0.1:4000
//	lookup <id>
//	locate 127.0.0.1:4000
//	ring | files | sync | help | quit
var shellLexer = lexer.MustSimple([]lexer.Rule{
	{`Keyword`, `(?i)\b(PUT|GET|EPUT|EGET|VIA|JOIN|LOOKUP|LOCATE|RING|FILES|SYNC|HELP|QUIT)\b`, nil},
	{`String`, `"(?:\\.|[^"])*"`, nil},
	{`Addr`, `[a-zA-Z0-9\.\-]+:\d+`, nil},
	{`Ident`, `[a-zA-Z0-9_]+`, nil},
	{"comment", `#[^\n]*`, nil},
	{"whitespace", `\s+`, nil},
})

// Command is a parsed shell line. Exactly one field is set.
type Command struct {
	Put    *PutCmd `  "put" @@`
	Get    *GetCmd `| "get" @@`
	EPut   *PutCmd `| "eput" @@`
	EGet   *GetCmd `| "eget" @@`
	Join   *string `| "join" @Addr`
	Lookup *string `| "lookup" @Ident`
	Locate *string `| "locate" @Addr`
	Ring   bool    `| @"ring"`
	Files  bool    `| @"files"`
	Sync   bool    `| @"sync"`
	Help   bool    `| @"help"`
	Quit   bool    `| @"quit"`
}

type PutCmd struct {
	Data string `@String`
	Via  string `( "via" @Addr )?`
}

type GetCmd struct {
	ID  string `@Ident`
	Via string `( "via" @Addr )?`
}

var shellParser = participle.MustBuild(&Command{},
	participle.Lexer(shellLexer),
	participle.CaseInsensitive("Keyword"),
	participle.Unquote("String"),
)

// ParseCommand parses one shell line.
func ParseCommand(line string) (Command, error) {
	cmd := &Command{}
	err := shellParser.ParseString("", line, cmd)
	return *cmd, err
}

type shell struct {
	node    peer.Peer
	timeout time.Duration
	out     io.Writer
}

// run executes the commands read from in until quit or end of input.
func (s *shell) run(in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	fmt.Fprint(s.out, "> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			cmd, err := ParseCommand(line)
			if err != nil {
				fmt.Fprintf(s.out, "error: %v (try help)\n", err)
			} else if cmd.Quit {
				return nil
			} else {
				s.exec(cmd)
			}
		}
		fmt.Fprint(s.out, "> ")
	}
	return scanner.Err()
}

func (s *shell) exec(cmd Command) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	var err error
	switch {
	case cmd.Put != nil:
		var id string
		id, err = s.node.Put(ctx, cmd.Put.Via, []byte(cmd.Put.Data))
		s.println(id)

	case cmd.Get != nil:
		var data []byte
		data, err = s.node.Get(ctx, cmd.Get.Via, cmd.Get.ID)
		s.println(string(data))

	case cmd.EPut != nil:
		var keyAndID string
		keyAndID, err = s.node.PutEncrypted(ctx, cmd.EPut.Via, []byte(cmd.EPut.Data))
		s.println(keyAndID)

	case cmd.EGet != nil:
		var data []byte
		data, err = s.node.GetEncrypted(ctx, cmd.EGet.Via, cmd.EGet.ID)
		s.println(string(data))

	case cmd.Join != nil:
		err = s.node.Join(ctx, *cmd.Join)
		if err == nil {
			s.println("joined the ring of " + *cmd.Join)
		}

	case cmd.Lookup != nil:
		p, e := s.node.Lookup(ctx, *cmd.Lookup)
		err = e
		if err == nil {
			s.println(p.String())
		}

	case cmd.Locate != nil:
		p, e := s.node.Locate(ctx, *cmd.Locate)
		err = e
		if err == nil {
			s.println(p.String())
		}

	case cmd.Ring:
		s.println(s.node.RoutingInfo().String())

	case cmd.Files:
		for _, f := range s.node.Files() {
			fmt.Fprintf(s.out, "%s %s\n", f.Name, f.Hash)
		}

	case cmd.Sync:
		s.node.BroadcastFiles()

	case cmd.Help:
		s.println(help)
	}

	if err != nil {
		fmt.Fprintf(s.out, "error: %v\n", err)
	}
}

func (s *shell) println(text string) {
	if text != "" {
		fmt.Fprintln(s.out, text)
	}
}

const help = `put "text" [via addr]    store a paste, prints its id
get id [via addr]        print a paste
eput "text" [via addr]   store an encrypted paste, prints key and id
eget keyid [via addr]    print an encrypted paste
join addr                join the ring of addr
lookup id                print the peer responsible for id
locate addr              print where we would sit on the ring of addr
ring                     print the routing table
files                    list local pastes
sync                     replicate local pastes to the successors
quit`
